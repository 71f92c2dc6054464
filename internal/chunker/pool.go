package chunker

import "context"

// runPool runs work over pending items with at most maxConc running
// concurrently, and returns a channel that emits results in the same order
// as pending (chunk_id ascending), regardless of completion order. This is
// the priority-queue-by-chunk_id reassembly the concurrency model calls
// for, implemented as one result slot per item rather than an explicit heap
// since pending is already sorted. Dispatch and collection both run
// concurrently with the caller so results stream out as soon as the
// in-order slot is ready, and a cancelled ctx stops further dispatch within
// one in-flight chunk's latency.
func runPool(ctx context.Context, pending []ChunkInfo, maxConc int, work func(context.Context, ChunkInfo) ChunkResult) <-chan ChunkResult {
	out := make(chan ChunkResult)
	slots := make([]chan ChunkResult, len(pending))
	for i := range slots {
		slots[i] = make(chan ChunkResult, 1)
	}

	go func() {
		sem := make(chan struct{}, maxConc)
		for i, ci := range pending {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			i, ci := i, ci
			go func() {
				defer func() { <-sem }()
				slots[i] <- work(ctx, ci)
			}()
		}
	}()

	go func() {
		defer close(out)
		for i := range slots {
			select {
			case r := <-slots[i]:
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
