package resampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/lowlatency/audiobridge/internal/audioformat"
)

func stereo48kFloat() audioformat.Format {
	return audioformat.Format{SampleRate: 48000, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}
}

func stereo44kFloat() audioformat.Format {
	return audioformat.Format{SampleRate: 44100, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}
}

func TestConfigureIdenticalFormatsIsNoOp(t *testing.T) {
	r := New()
	f := stereo48kFloat()
	outcome, err := r.Configure(f, f)
	require.NoError(t, err)
	assert.Equal(t, NoOp, outcome)
}

func TestConfigureDifferentRateIsReady(t *testing.T) {
	r := New()
	outcome, err := r.Configure(stereo48kFloat(), stereo44kFloat())
	require.NoError(t, err)
	assert.Equal(t, Ready, outcome)
}

func TestConfigureChannelMismatchIsUnsupported(t *testing.T) {
	r := New()
	in := stereo48kFloat()
	out := in
	out.Channels = 1
	outcome, err := r.Configure(in, out)
	assert.Equal(t, Unsupported, outcome)
	assert.Error(t, err)
}

func TestPushDrainNeverPanicsOnArbitraryByteSlices(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New()
		outcome, err := r.Configure(stereo48kFloat(), stereo44kFloat())
		require.NoError(t, err)
		require.Equal(t, Ready, outcome)

		chunks := rapid.SliceOfN(rapid.SliceOfN(rapid.Byte(), 0, 4096), 0, 10).Draw(t, "chunks")
		for _, c := range chunks {
			require.NoError(t, r.Push(c))
			_, err := r.Drain()
			require.NoError(t, err)
		}
		_, err = r.Flush()
		require.NoError(t, err)
	})
}

func TestUpsampleProducesMoreBytesThanInput(t *testing.T) {
	r := New()
	in := audioformat.Format{SampleRate: 22050, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}
	out := stereo48kFloat()
	outcome, err := r.Configure(in, out)
	require.NoError(t, err)
	require.Equal(t, Ready, outcome)

	input := make([]byte, 22050/10*in.BlockAlign())
	require.NoError(t, r.Push(input))
	drained, err := r.Drain()
	require.NoError(t, err)
	flushed, err := r.Flush()
	require.NoError(t, err)

	assert.Greater(t, len(drained)+len(flushed), len(input))
}

func TestPCM16RoundTripStaysInRange(t *testing.T) {
	in := audioformat.Format{SampleRate: 48000, Channels: 1, ContainerBits: 16, ValidBits: 16, Encoding: audioformat.PCM}
	out := in

	for i := 0; i < 100; i++ {
		s := float32(i-50) / 50
		buf := make([]byte, 2)
		encodeSample(buf, s, out)
		decoded := decodeSample(buf, in)
		assert.InDelta(t, s, decoded, 0.001)
	}
}
