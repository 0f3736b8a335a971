package orchestrationtest

import (
	"context"
	"time"

	"github.com/relaylabs/voxrelay/internal/orchestration/synth"
)

// FakePipeline streams a fixed set of chunks, with an optional delay between
// each so tests can interleave a barge-in mid-stream.
type FakePipeline struct {
	Chunks []synth.Chunk
	Delay  time.Duration
}

func (p *FakePipeline) GenerateStream(ctx context.Context, text string) (<-chan synth.Chunk, <-chan error) {
	out := make(chan synth.Chunk)
	errs := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errs)
		for _, c := range p.Chunks {
			if p.Delay > 0 {
				select {
				case <-time.After(p.Delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errs
}
