package pump

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowlatency/audiobridge/internal/audioformat"
	"github.com/lowlatency/audiobridge/internal/resampler"
	"github.com/lowlatency/audiobridge/internal/ringbuffer"
)

func TestPumpMovesDataFromSrcToDst(t *testing.T) {
	in := audioformat.Format{SampleRate: 48000, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}
	out := audioformat.Format{SampleRate: 44100, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}

	res := resampler.New()
	outcome, err := res.Configure(in, out)
	require.NoError(t, err)
	require.Equal(t, resampler.Ready, outcome)

	src := ringbuffer.New(1 << 20)
	dst := ringbuffer.New(1 << 20)
	src.Write(make([]byte, 48000*in.BlockAlign())) // 1 second of silence

	p := New(src, dst, res, in.BlockAlign())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	time.Sleep(100 * time.Millisecond)
	cancel()
	p.Stop()

	assert.Greater(t, dst.AvailableRead(), 0)
}

func TestPumpStopFlushesRemainingInput(t *testing.T) {
	in := audioformat.Format{SampleRate: 48000, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}
	out := audioformat.Format{SampleRate: 44100, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}

	res := resampler.New()
	_, err := res.Configure(in, out)
	require.NoError(t, err)

	src := ringbuffer.New(1 << 16)
	dst := ringbuffer.New(1 << 16)
	// Fewer frames than the resampler's filter context (120 frames), so
	// Drain alone never emits anything for this input; it all sits in
	// the resampler's pending buffer until a final Flush forces it out.
	src.Write(make([]byte, 50*in.BlockAlign()))

	p := New(src, dst, res, in.BlockAlign())
	ctx := context.Background()
	p.Start(ctx)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, dst.AvailableRead(), "Drain should not emit output for input shorter than the filter context")

	p.Stop()

	assert.Greater(t, dst.AvailableRead(), 0, "Stop's flush should push the resampler's buffered input into dst")
}
