// Package output manages result/report/checkpoint paths and crash-safe
// persistence for the de-identification pipeline.
//
// All JSON document writes go through WriteJSONAtomic so that a concurrent
// reader (a status CLI, a dashboard) never observes a torn file: the full
// content is written to a temp file in the same directory, then swapped into
// place with a single rename. JSONL streams are the exception: AppendJSONLFlush
// appends each record to the file in place.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSONAtomic marshals v as indented JSON and writes it to path using a
// temp-file-then-rename so readers never observe a partial write.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("output: marshal %s: %w", path, err)
	}
	return WriteBytesAtomic(path, append(data, '\n'))
}

// WriteBytesAtomic writes data to path atomically via a temp file + rename in
// the same directory, so the rename is guaranteed atomic on the same filesystem.
func WriteBytesAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("output: create temp in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck // best-effort cleanup
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp, not user input
		return fmt.Errorf("output: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp, not user input
		return fmt.Errorf("output: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil { // #nosec G703 -- paths from trusted config
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp, not user input
		return fmt.Errorf("output: rename %s -> %s: %w", tmpName, path, err)
	}
	return nil
}

// AppendJSONLFlush appends one JSON-encoded record followed by a newline to
// path, opening in append mode and flushing (closing) before returning, so
// each record is durable even if the process is killed before the next one.
func AppendJSONLFlush(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("output: marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G703 -- trusted config path
	if err != nil {
		return fmt.Errorf("output: open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("output: append %s: %w", path, err)
	}
	return f.Sync()
}
