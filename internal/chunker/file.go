package chunker

import (
	"context"
	"fmt"
	"os"
)

// ProcessFile streams ChunkResults for a file at path, reading windows from
// a seekable source rather than buffering the whole file, per the FIFO
// memory discipline.
func (c *Chunker) ProcessFile(ctx context.Context, path string, resume bool, fn ProcessFunc) (<-chan ChunkResult, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("chunker: opening %s: %w", path, err)
	}
	sig, err := fileSignature1MiB(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("chunker: signing %s: %w", path, err)
	}

	out, err := c.stream(ctx, path, sig, int(sig.TotalSize), resume, func(ci ChunkInfo) string {
		buf := make([]byte, ci.Size)
		if _, err := f.ReadAt(buf, int64(ci.StartPos)); err != nil {
			c.log.Errorf("chunk_read", "reading %s at %d: %v", path, ci.StartPos, err)
		}
		return string(buf)
	}, fn)
	if err != nil {
		f.Close()
		return nil, err
	}

	// Close the file once the stream is fully drained.
	done := make(chan ChunkResult)
	go func() {
		defer close(done)
		defer f.Close()
		for r := range out {
			done <- r
		}
	}()
	return done, nil
}
