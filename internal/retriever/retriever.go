// Package retriever implements the regulation retriever: a thin wrapper over
// an external vector store exposing context snippets relevant to PHI
// detection, with a built-in minimal-context fallback when no store is
// configured or the store fails.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"ai-deid-pipeline/internal/types"
)

// Document is a retrieved regulation snippet.
type Document struct {
	PageContent string
	Metadata    map[string]any
}

// Source returns the "source" metadata field, or "" if absent.
func (d Document) Source() string {
	if v, ok := d.Metadata["source"].(string); ok {
		return v
	}
	return ""
}

// Retriever is the consumed interface for regulation context lookup. Its
// failure is never fatal to the caller: implementations return an error, and
// callers fall back to MinimalContext.
type Retriever interface {
	// Retrieve returns up to k documents relevant to query. filter may be
	// nil; supported filter keys are implementation-specific.
	Retrieve(ctx context.Context, query string, k int, filter map[string]any) ([]Document, error)
	// GetPHIDefinitions returns regulation text describing each given type,
	// a bulk variant of Retrieve used to build the system prompt's
	// regulatory-grounding section.
	GetPHIDefinitions(ctx context.Context, phiTypes []types.PHIType) ([]Document, error)
}

// minimalContext is the built-in HIPAA Safe Harbor summary substituted when
// no vector store is configured, or when Retrieve/GetPHIDefinitions fails.
// It is deliberately terse: a fallback, not a replacement for real
// regulatory grounding.
const minimalContext = `HIPAA Safe Harbor de-identification standard (45 CFR 164.514(b)(2)): a
record is considered de-identified when the following identifiers of the
individual, relatives, employers, or household members are removed: names;
geographic subdivisions smaller than a state; all elements of dates (except
year) directly related to an individual, including birth date, admission
date, discharge date, death date, and all ages over 89; telephone and fax
numbers; email addresses; Social Security numbers; medical record numbers;
health plan beneficiary numbers; account numbers; certificate/license
numbers; vehicle identifiers; device identifiers; URLs; IP addresses;
biometric identifiers; full-face photographs; and any other unique
identifying number, characteristic, or code.`

// MinimalContext returns the built-in fallback context as a single Document.
func MinimalContext() Document {
	return Document{
		PageContent: strings.TrimSpace(minimalContext),
		Metadata:    map[string]any{"source": "hipaa_safe_harbor_builtin"},
	}
}

// FallbackRetriever is a Retriever that always returns MinimalContext. It is
// used when no vector store is configured at all, so the identifier's
// "retriever failed, substitute minimal context, record rag_used=false"
// policy applies uniformly whether or not a real store exists.
type FallbackRetriever struct{}

// Retrieve ignores its arguments and returns the built-in minimal context.
func (FallbackRetriever) Retrieve(_ context.Context, _ string, _ int, _ map[string]any) ([]Document, error) {
	return []Document{MinimalContext()}, nil
}

// GetPHIDefinitions ignores its arguments and returns the built-in minimal
// context.
func (FallbackRetriever) GetPHIDefinitions(_ context.Context, _ []types.PHIType) ([]Document, error) {
	return []Document{MinimalContext()}, nil
}

// WithFallback wraps a Retriever so that any error from Retrieve or
// GetPHIDefinitions is swallowed and replaced with MinimalContext, and
// reports whether the real retriever was used via ragUsed. Per the
// retriever's "failure is never fatal" contract, callers should use this
// wrapper rather than handling retriever errors themselves.
type WithFallback struct {
	Inner Retriever
}

// Retrieve delegates to Inner, falling back to MinimalContext on error or
// when Inner is nil.
func (w WithFallback) Retrieve(ctx context.Context, query string, k int, filter map[string]any) ([]Document, bool, error) {
	if w.Inner == nil {
		return []Document{MinimalContext()}, false, nil
	}
	docs, err := w.Inner.Retrieve(ctx, query, k, filter)
	if err != nil || len(docs) == 0 {
		return []Document{MinimalContext()}, false, nil
	}
	return docs, true, nil
}

// GetPHIDefinitions delegates to Inner, falling back to MinimalContext on
// error or when Inner is nil.
func (w WithFallback) GetPHIDefinitions(ctx context.Context, phiTypes []types.PHIType) ([]Document, bool, error) {
	if w.Inner == nil {
		return []Document{MinimalContext()}, false, nil
	}
	docs, err := w.Inner.GetPHIDefinitions(ctx, phiTypes)
	if err != nil || len(docs) == 0 {
		return []Document{MinimalContext()}, false, nil
	}
	return docs, true, nil
}

// FormatDocuments renders documents as the identifier's prompt expects:
// "[source]\ncontent", joined by blank lines.
func FormatDocuments(docs []Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		src := d.Source()
		if src == "" {
			src = "unknown"
		}
		parts = append(parts, fmt.Sprintf("[%s]\n%s", src, strings.TrimSpace(d.PageContent)))
	}
	return strings.Join(parts, "\n\n")
}
