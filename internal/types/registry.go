// Package types implements the PHI type registry (C1): the canonical
// enumeration of PHI types, custom/discovered type registration, and the
// alias-resolution and prompt-rendering logic every other component depends
// on.
//
// Unlike the source's singleton-with-lazy-attribute-lookup registry, this
// Registry is an explicit, constructor-injected dependency: callers hold a
// *Registry and pass it where needed, which makes every consumer testable in
// isolation without a shared global.
package types

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// PHIType is the closed enumeration of canonical PHI types.
type PHIType string

// Canonical PHI types. CUSTOM and OTHER are meta-types: never emitted as
// selectable prompt entries, explained inline instead.
const (
	Name                PHIType = "NAME"
	Date                PHIType = "DATE"
	Location             PHIType = "LOCATION"
	ID                    PHIType = "ID"
	MedicalRecordNumber   PHIType = "MEDICAL_RECORD_NUMBER"
	AccountNumber         PHIType = "ACCOUNT_NUMBER"
	Contact               PHIType = "CONTACT"
	Phone                 PHIType = "PHONE"
	Fax                   PHIType = "FAX"
	Email                 PHIType = "EMAIL"
	URL                   PHIType = "URL"
	IPAddress             PHIType = "IP_ADDRESS"
	AgeOver89             PHIType = "AGE_OVER_89"
	AgeOver90             PHIType = "AGE_OVER_90"
	Biometric             PHIType = "BIOMETRIC"
	Photo                 PHIType = "PHOTO"
	HospitalName          PHIType = "HOSPITAL_NAME"
	DepartmentName        PHIType = "DEPARTMENT_NAME"
	WardNumber            PHIType = "WARD_NUMBER"
	BedNumber             PHIType = "BED_NUMBER"
	RareDisease           PHIType = "RARE_DISEASE"
	GeneticInfo           PHIType = "GENETIC_INFO"
	DeviceID              PHIType = "DEVICE_ID"
	Certificate           PHIType = "CERTIFICATE"
	SSN                   PHIType = "SSN"
	InsuranceNumber       PHIType = "INSURANCE_NUMBER"
	Custom                PHIType = "CUSTOM"
	Other                 PHIType = "OTHER"
)

// baseTypes lists every non-meta PHIType in declaration order, used to seed
// the registry and to answer GetBaseTypeNames.
var baseTypes = []PHIType{
	Name, Date, Location, ID, MedicalRecordNumber, AccountNumber, Contact,
	Phone, Fax, Email, URL, IPAddress, AgeOver89, AgeOver90, Biometric, Photo,
	HospitalName, DepartmentName, WardNumber, BedNumber, RareDisease,
	GeneticInfo, DeviceID, Certificate, SSN, InsuranceNumber,
}

// baseDescriptions holds the bilingual seed description for every base type.
var baseDescriptions = map[PHIType]string{
	Name:                "Names (姓名)",
	Date:                "Dates except year (日期，年份除外)",
	Location:            "Geographic subdivisions smaller than state (地點)",
	ID:                  "General identifiers (一般識別碼)",
	MedicalRecordNumber: "Medical record numbers (病歷號)",
	AccountNumber:       "Account numbers (帳號)",
	Contact:             "General contact information (一般聯絡資訊)",
	Phone:               "Phone numbers (電話號碼)",
	Fax:                 "Fax numbers (傳真號碼)",
	Email:               "Email addresses (電子郵件)",
	URL:                 "URLs (網址)",
	IPAddress:           "IP addresses (IP 位址)",
	AgeOver89:           "Ages over 89 (年齡 >89)",
	AgeOver90:           "Ages over 90, stricter (年齡 >90)",
	Biometric:           "Biometric identifiers (生物特徵識別)",
	Photo:               "Photographs (照片)",
	HospitalName:        "Hospital names (醫院名稱)",
	DepartmentName:      "Department names (科室名稱)",
	WardNumber:          "Ward numbers (病房號)",
	BedNumber:           "Bed numbers (床號)",
	RareDisease:         "Rare diseases, highly identifiable (罕見疾病)",
	GeneticInfo:         "Genetic information (基因資訊)",
	DeviceID:            "Device identifiers (設備識別碼)",
	Certificate:         "Certificate/license numbers (證書號碼)",
	SSN:                 "Social Security Number (社會安全號碼)",
	InsuranceNumber:     "Insurance numbers (保險號碼)",
}

// Source identifies where a RegisteredType entry came from.
type Source string

const (
	SourceBase       Source = "base"
	SourceCustom     Source = "custom"
	SourceRAG        Source = "rag"
	SourceDiscovered Source = "discovered"
)

// RegisteredType is one entry in the registry.
type RegisteredType struct {
	Name            string
	Description     string
	Source          Source
	BaseType        PHIType // set when Source == base
	RegulationSource string
	Examples        []string
	Aliases         []string
}

// IsBaseType reports whether this entry is one of the 26 canonical types.
func (rt RegisteredType) IsBaseType() bool { return rt.Source == SourceBase }

// DisplayName is how the type is rendered to the LLM: the bare name for base
// types, "CUSTOM:<name>" otherwise.
func (rt RegisteredType) DisplayName() string {
	if rt.IsBaseType() {
		return rt.Name
	}
	return "CUSTOM:" + rt.Name
}

// Registry holds canonical, custom, RAG-discovered and model-discovered PHI
// types and the alias table used to normalise raw LLM output.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*RegisteredType // keyed by uppercase name
	aliases map[string]string          // lowercase alias -> entry key

	onDiscovered []func(name string)
}

// NewRegistry builds a Registry pre-seeded with the 26 base PHI types plus a
// small default alias table (e.g. Traditional Chinese labels).
func NewRegistry() *Registry {
	r := &Registry{
		entries: make(map[string]*RegisteredType),
		aliases: make(map[string]string),
	}
	for _, bt := range baseTypes {
		r.entries[string(bt)] = &RegisteredType{
			Name:        string(bt),
			Description: baseDescriptions[bt],
			Source:      SourceBase,
			BaseType:    bt,
		}
	}
	r.seedDefaultAliases()
	return r
}

func (r *Registry) seedDefaultAliases() {
	defaults := map[string]PHIType{
		"姓名":     Name,
		"日期":     Date,
		"地址":     Location,
		"地點":     Location,
		"電話":     Phone,
		"手機":     Phone,
		"傳真":     Fax,
		"電子郵件":   Email,
		"病歷號":    MedicalRecordNumber,
		"身份證字號": ID,
		"patient": Name,
		"dob":     Date,
	}
	for alias, t := range defaults {
		r.aliases[strings.ToLower(alias)] = string(t)
	}
}

// OnDiscovered registers a callback fired every time a previously-unknown
// CUSTOM type name is recorded via RecordDiscoveredType.
func (r *Registry) OnDiscovered(fn func(name string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDiscovered = append(r.onDiscovered, fn)
}

// ErrEmptyName is returned by RegisterCustomType when name is empty.
var ErrEmptyName = fmt.Errorf("types: custom type name cannot be empty")

// RegisterCustomType adds a custom entry. Silent no-op on a name collision
// unless overwrite is true. Returns ErrEmptyName for an empty name.
func (r *Registry) RegisterCustomType(name, description string, examples, aliases []string, overwrite bool) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyName
	}
	key := strings.ToUpper(name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists && !overwrite {
		return nil
	}
	r.entries[key] = &RegisteredType{
		Name:        name,
		Description: description,
		Source:      SourceCustom,
		Examples:    examples,
		Aliases:     aliases,
	}
	for _, a := range aliases {
		r.aliases[strings.ToLower(a)] = key
	}
	return nil
}

// RegisterRAGType adds a custom entry discovered via regulation retrieval.
func (r *Registry) RegisterRAGType(name, description, regulationSource string, examples []string) {
	key := strings.ToUpper(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return
	}
	r.entries[key] = &RegisteredType{
		Name:             name,
		Description:      description,
		Source:           SourceRAG,
		RegulationSource:  regulationSource,
		Examples:         examples,
	}
}

// RecordDiscoveredType idempotently records a CUSTOM:name the identifier
// encountered that the registry had not previously seen, then fires every
// OnDiscovered subscriber. No-op if the name is already known.
func (r *Registry) RecordDiscoveredType(name, description string) {
	key := strings.ToUpper(name)

	r.mu.Lock()
	_, known := r.entries[key]
	if !known {
		if description == "" {
			description = fmt.Sprintf("Discovered type: %s", name)
		}
		r.entries[key] = &RegisteredType{
			Name:        name,
			Description: description,
			Source:      SourceDiscovered,
		}
	}
	callbacks := append([]func(string){}, r.onDiscovered...)
	r.mu.Unlock()

	if !known {
		for _, cb := range callbacks {
			cb(name)
		}
	}
}

// MapAlias resolves a raw type string from an LLM (or any external source)
// into a canonical PHIType plus, for CUSTOM results, the custom type name.
// Resolution order:
//  1. Exact match against a canonical enum spelling.
//  2. "CUSTOM:" prefix -> (CUSTOM, suffix); records the suffix as discovered.
//  3. Alias lookup in the registry.
//  4. Anything else -> (CUSTOM, cleaned name); recorded as discovered.
func (r *Registry) MapAlias(raw string) (PHIType, string) {
	trimmed := strings.TrimSpace(raw)

	if isBaseSpelling(trimmed) {
		return PHIType(strings.ToUpper(trimmed)), ""
	}

	if rest, ok := strings.CutPrefix(trimmed, "CUSTOM:"); ok {
		rest = strings.TrimSpace(rest)
		r.RecordDiscoveredType(rest, "")
		return Custom, rest
	}

	r.mu.RLock()
	key, hasAlias := r.aliases[strings.ToLower(trimmed)]
	r.mu.RUnlock()
	if hasAlias {
		r.mu.RLock()
		entry := r.entries[key]
		r.mu.RUnlock()
		if entry != nil {
			if entry.IsBaseType() {
				return entry.BaseType, ""
			}
			return Custom, entry.Name
		}
	}

	cleaned := trimmed
	if cleaned == "" {
		cleaned = "UNKNOWN"
	}
	r.RecordDiscoveredType(cleaned, "")
	return Custom, cleaned
}

func isBaseSpelling(s string) bool {
	up := strings.ToUpper(s)
	for _, bt := range baseTypes {
		if string(bt) == up {
			return true
		}
	}
	return up == string(Custom) || up == string(Other)
}

// GetType returns the registered entry for name, if known.
func (r *Registry) GetType(name string) (RegisteredType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.ToUpper(name)]
	if !ok {
		return RegisteredType{}, false
	}
	return *e, true
}

// IsKnownType reports whether name (base, custom, rag or discovered) exists.
func (r *Registry) IsKnownType(name string) bool {
	_, ok := r.GetType(name)
	return ok
}

// PromptFormat selects the rendering of GetTypesForPrompt.
type PromptFormat int

const (
	FormatList PromptFormat = iota
	FormatJSON
	FormatMarkdown
)

// GetTypesForPrompt renders the selectable type list for the identification
// prompt. CUSTOM and OTHER are always skipped: they are meta-types explained
// inline by the caller, never selectable entries.
func (r *Registry) GetTypesForPrompt(format PromptFormat, includeBase, includeCustom, includeDescriptions bool) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bySource := map[Source][]*RegisteredType{}
	for _, e := range r.entries {
		if e.Name == string(Custom) || e.Name == string(Other) {
			continue
		}
		if e.IsBaseType() && !includeBase {
			continue
		}
		if !e.IsBaseType() && !includeCustom {
			continue
		}
		bySource[e.Source] = append(bySource[e.Source], e)
	}
	for _, list := range bySource {
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}

	var b strings.Builder
	order := []Source{SourceBase, SourceCustom, SourceRAG, SourceDiscovered}

	switch format {
	case FormatMarkdown:
		for _, src := range order {
			entries := bySource[src]
			if len(entries) == 0 {
				continue
			}
			fmt.Fprintf(&b, "### %s\n", strings.ToUpper(string(src)))
			for _, e := range entries {
				writeLine(&b, e, includeDescriptions, "- ")
			}
		}
	case FormatJSON:
		b.WriteString("{")
		first := true
		for _, src := range order {
			for _, e := range bySource[src] {
				if !first {
					b.WriteString(",")
				}
				first = false
				fmt.Fprintf(&b, "%q:%q", e.DisplayName(), e.Description)
			}
		}
		b.WriteString("}")
	default: // FormatList
		for _, src := range order {
			for _, e := range bySource[src] {
				writeLine(&b, e, includeDescriptions, "")
			}
		}
		b.WriteString("For new/unknown types, use: CUSTOM:<type_name>\n")
	}
	return b.String()
}

func writeLine(b *strings.Builder, e *RegisteredType, includeDescriptions bool, bullet string) {
	if includeDescriptions && e.Description != "" {
		fmt.Fprintf(b, "%s%s: %s\n", bullet, e.DisplayName(), e.Description)
	} else {
		fmt.Fprintf(b, "%s%s\n", bullet, e.DisplayName())
	}
}

// TypeEnumValues returns every selectable label for structured-output schema
// validation: base type names plus "CUSTOM:<name>" for every known non-base
// entry.
func (r *Registry) TypeEnumValues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	values := make([]string, 0, len(r.entries))
	for _, bt := range baseTypes {
		values = append(values, string(bt))
	}
	for _, e := range r.entries {
		if !e.IsBaseType() {
			values = append(values, "CUSTOM:"+e.Name)
		}
	}
	sort.Strings(values)
	return values
}

// ClearDiscoveredTypes removes every entry whose Source is SourceDiscovered.
func (r *Registry) ClearDiscoveredTypes() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, e := range r.entries {
		if e.Source == SourceDiscovered {
			delete(r.entries, k)
		}
	}
}

// ExportedType is the round-trip wire form used by Export/Import.
type ExportedType struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Source           Source   `json:"source"`
	RegulationSource string   `json:"regulationSource,omitempty"`
	Examples         []string `json:"examples,omitempty"`
	Aliases          []string `json:"aliases,omitempty"`
}

// Export returns every custom- or rag-sourced entry, for persistence or
// transfer to another Registry via Import.
func (r *Registry) Export() []ExportedType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ExportedType, 0)
	for _, e := range r.entries {
		if e.Source != SourceCustom && e.Source != SourceRAG {
			continue
		}
		out = append(out, ExportedType{
			Name: e.Name, Description: e.Description, Source: e.Source,
			RegulationSource: e.RegulationSource, Examples: e.Examples, Aliases: e.Aliases,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Import loads exported entries into the registry, skipping any name already
// present. Returns the count of entries actually imported.
func (r *Registry) Import(types []ExportedType) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, t := range types {
		key := strings.ToUpper(t.Name)
		if _, exists := r.entries[key]; exists {
			continue
		}
		r.entries[key] = &RegisteredType{
			Name: t.Name, Description: t.Description, Source: t.Source,
			RegulationSource: t.RegulationSource, Examples: t.Examples, Aliases: t.Aliases,
		}
		for _, a := range t.Aliases {
			r.aliases[strings.ToLower(a)] = key
		}
		count++
	}
	return count
}
