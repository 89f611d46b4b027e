// Package pump implements ResamplerPump, the goroutine that drains the
// capture-side ring buffer through a resampler.Resampler and writes the
// converted bytes into the render-side ring buffer. Grounded on
// original_source/src/AudioRouter.cpp's resamplerLoop: fixed-size chunk
// reads, poll-on-empty, a drain message on stop.
package pump

import (
	"context"
	"time"

	"github.com/lowlatency/audiobridge/internal/resampler"
	"github.com/lowlatency/audiobridge/internal/ringbuffer"
)

// chunkBytes mirrors the original's 4096-byte read quantum.
const chunkBytes = 4096

// pollInterval is how often the pump checks an empty source ring, matching
// the original's WaitForSingleObject(stopEvent, 1) 1ms poll.
const pollInterval = time.Millisecond

// Pump bridges src and dst through a resampler.Resampler, running on its
// own goroutine until Stop is called.
type Pump struct {
	src, dst   *ringbuffer.RingBuffer
	res        *resampler.Resampler
	blockAlign int
	done       chan struct{}
	stopped    chan struct{}
}

// New returns a Pump that reads blockAlign-aligned chunks from src,
// pushes them through res, and writes the result to dst.
func New(src, dst *ringbuffer.RingBuffer, res *resampler.Resampler, blockAlign int) *Pump {
	return &Pump{
		src:        src,
		dst:        dst,
		res:        res,
		blockAlign: blockAlign,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Start launches the pump loop.
func (p *Pump) Start(ctx context.Context) {
	go p.loop(ctx)
}

// Stop signals the pump to flush remaining input and exit, and blocks
// until it has.
func (p *Pump) Stop() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	<-p.stopped
}

func (p *Pump) loop(ctx context.Context) {
	defer close(p.stopped)

	buf := make([]byte, roundDown(chunkBytes, p.blockAlign))
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case <-p.done:
			p.flush()
			return
		default:
		}

		n := p.src.Read(buf)
		if n == 0 {
			select {
			case <-ctx.Done():
				p.flush()
				return
			case <-p.done:
				p.flush()
				return
			case <-ticker.C:
			}
			continue
		}

		if err := p.res.Push(buf[:n]); err != nil {
			continue
		}
		out, err := p.res.Drain()
		if err != nil || len(out) == 0 {
			continue
		}
		p.dst.Write(out)
	}
}

func (p *Pump) flush() {
	out, err := p.res.Flush()
	if err != nil || len(out) == 0 {
		return
	}
	p.dst.Write(out)
}

func roundDown(n, multiple int) int {
	if multiple <= 0 {
		return n
	}
	return (n / multiple) * multiple
}
