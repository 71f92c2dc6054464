// Package deiderr defines the error kinds used throughout the
// de-identification pipeline and the propagation policy between components.
//
// Kinds map directly to the error taxonomy every component is built against:
// chunk-local failures (LLMError, RetrieverError) are captured as data by the
// chunk processor and never escape it; only CheckpointError, InvalidInput and
// Internal are allowed to propagate out of a job boundary.
package deiderr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for propagation-policy decisions.
type Kind int

const (
	// KindInvalidInput marks bad caller input: missing file, unreadable path,
	// chunk overlap >= chunk size. Non-retryable, surfaced to the caller.
	KindInvalidInput Kind = iota
	// KindLoader marks a file-format-specific load failure. Fails the file;
	// the job continues.
	KindLoader
	// KindLLM marks a structured-output validation failure, timeout, or
	// transport error talking to the LLM provider. Recorded against the
	// chunk; the chunk yields zero entities; the job continues.
	KindLLM
	// KindRetriever marks a vector-store failure. Logged; minimal context is
	// substituted; never user-visible.
	KindRetriever
	// KindCheckpoint marks a checkpoint read/write failure (disk full,
	// permission). The job aborts: resumability is a core guarantee.
	KindCheckpoint
	// KindCancelled marks cooperative cancellation. The checkpoint already
	// reflects committed chunks.
	KindCancelled
	// KindInternal marks an invariant violation. Fails loudly with context.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindLoader:
		return "loader"
	case KindLLM:
		return "llm"
	case KindRetriever:
		return "retriever"
	case KindCheckpoint:
		return "checkpoint"
	case KindCancelled:
		return "cancelled"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a typed, wrappable pipeline error.
type Error struct {
	Kind Kind
	Op   string // component/operation that raised it, e.g. "chunker.ProcessFile"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err if it (or something it wraps) is an *Error,
// otherwise KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsChunkLocal reports whether an error of this kind must stay local to a
// chunk (captured into a ChunkResult) rather than propagate to the job
// boundary.
func IsChunkLocal(kind Kind) bool {
	switch kind {
	case KindLLM, KindRetriever:
		return true
	default:
		return false
	}
}

// Propagates reports whether an error of this kind is allowed to escape the
// job boundary (CheckpointError, InvalidInput, Internal).
func Propagates(kind Kind) bool {
	switch kind {
	case KindCheckpoint, KindInvalidInput, KindInternal:
		return true
	default:
		return false
	}
}
