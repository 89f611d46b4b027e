package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowlatency/audiobridge/internal/audioformat"
	"github.com/lowlatency/audiobridge/internal/device"
	"github.com/lowlatency/audiobridge/internal/device/mock"
	"github.com/lowlatency/audiobridge/internal/ringbuffer"
)

func TestOpenSharedUsesMixFormat(t *testing.T) {
	mix := audioformat.Format{SampleRate: 48000, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}
	dev := mock.NewDevice("cap1", "Mock Capture", device.Capture, mix)
	ring := ringbuffer.New(4096)

	ep, err := Open(dev, ring, false)
	require.NoError(t, err)
	assert.True(t, ep.Format().Equal(mix))
}

func TestOpenExclusiveTriesPriorityListInOrder(t *testing.T) {
	mix := audioformat.Format{SampleRate: 48000, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}
	dev := mock.NewDevice("cap1", "Mock Capture", device.Capture, mix)
	dev.SupportedExclusive = []audioformat.Format{audioformat.ExclusivePriority[2].Format()}
	ring := ringbuffer.New(4096)

	ep, err := Open(dev, ring, true)
	require.NoError(t, err)
	assert.True(t, ep.Format().Equal(audioformat.ExclusivePriority[2].Format()))
}

func TestOpenExclusiveRetriesOnceOnMisalignment(t *testing.T) {
	mix := audioformat.Format{SampleRate: 48000, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}
	dev := mock.NewDevice("cap1", "Mock Capture", device.Capture, mix)
	dev.MisalignOnce = true
	dev.AlignedFrames = 512
	ring := ringbuffer.New(4096)

	ep, err := Open(dev, ring, true)
	require.NoError(t, err)
	assert.True(t, ep.Format().Equal(audioformat.ExclusivePriority[0].Format()))
}

func TestCaptureWritesIntoRingBuffer(t *testing.T) {
	mix := audioformat.Format{SampleRate: 48000, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}
	dev := mock.NewDevice("cap1", "Mock Capture", device.Capture, mix)
	ring := ringbuffer.New(1 << 20)

	ep, err := Open(dev, ring, false)
	require.NoError(t, err)
	require.NoError(t, ep.Start())
	defer ep.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Greater(t, ring.AvailableRead(), 0)
}

func TestStopIsIdempotent(t *testing.T) {
	mix := audioformat.Format{SampleRate: 48000, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}
	dev := mock.NewDevice("cap1", "Mock Capture", device.Capture, mix)
	ring := ringbuffer.New(4096)
	ep, err := Open(dev, ring, false)
	require.NoError(t, err)
	require.NoError(t, ep.Start())

	require.NoError(t, ep.Stop())
	require.NoError(t, ep.Stop())
}
