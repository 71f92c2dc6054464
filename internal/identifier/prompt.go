package identifier

import (
	"fmt"
	"sort"
	"strings"

	"ai-deid-pipeline/internal/tools"
	"ai-deid-pipeline/internal/types"
)

const maxHintSamples = 5

// systemPreamble designates the model as a PHI expert. Kept short and
// language-neutral; the dynamic sections below carry the actual contract.
const systemPreamble = `You are a clinical-text PHI identification expert. Given a chunk of ` +
	`medical record text, find every span that identifies a patient, relative, ` +
	`employer, or household member, per the PHI type list and regulatory context ` +
	`provided below. Respond only with the requested structured JSON.`

// RenderPrompt assembles the (system, user) message pair sent to the
// provider. registry supplies the dynamic type list, regulationContext is
// either retrieved regulation snippets (already formatted by the retriever
// package) or the built-in minimal context, hints are pre-scan tool results
// to surface as a "pre-scan hints" block, and chunkText is the text under
// analysis.
func RenderPrompt(registry *types.Registry, regulationContext string, hints []tools.Result, chunkText, language string) (system, user string) {
	var sysBuf strings.Builder
	sysBuf.WriteString(systemPreamble)
	if language != "" {
		fmt.Fprintf(&sysBuf, "\n\nRespond using language: %s.", language)
	}
	sysBuf.WriteString("\n\nRecognized PHI types:\n")
	sysBuf.WriteString(registry.GetTypesForPrompt(types.FormatList, true, true, true))

	var userBuf strings.Builder
	userBuf.WriteString("Regulatory context:\n")
	userBuf.WriteString(strings.TrimSpace(regulationContext))
	userBuf.WriteString("\n\n")

	if len(hints) > 0 {
		userBuf.WriteString("=== Pre-scan hints ===\n")
		userBuf.WriteString(renderHints(hints))
		userBuf.WriteString("=== End pre-scan hints ===\n\n")
	}

	userBuf.WriteString("Text to analyze:\n")
	userBuf.WriteString(chunkText)

	return sysBuf.String(), userBuf.String()
}

// renderHints groups hints by PHI type, deduplicates by text, and shows at
// most maxHintSamples sample texts per type plus a count of the remainder.
func renderHints(hints []tools.Result) string {
	byType := make(map[types.PHIType][]string)
	seen := make(map[types.PHIType]map[string]bool)
	order := make([]types.PHIType, 0)

	for _, h := range hints {
		if seen[h.Type] == nil {
			seen[h.Type] = make(map[string]bool)
			order = append(order, h.Type)
		}
		if seen[h.Type][h.Text] {
			continue
		}
		seen[h.Type][h.Text] = true
		byType[h.Type] = append(byType[h.Type], h.Text)
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	var buf strings.Builder
	for _, t := range order {
		texts := byType[t]
		shown := texts
		remainder := 0
		if len(texts) > maxHintSamples {
			shown = texts[:maxHintSamples]
			remainder = len(texts) - maxHintSamples
		}
		fmt.Fprintf(&buf, "%s: %s", t, strings.Join(shown, ", "))
		if remainder > 0 {
			fmt.Fprintf(&buf, " (+%d more)", remainder)
		}
		buf.WriteString("\n")
	}
	return buf.String()
}
