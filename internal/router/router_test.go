package router

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowlatency/audiobridge/internal/audioformat"
	"github.com/lowlatency/audiobridge/internal/device"
	"github.com/lowlatency/audiobridge/internal/device/mock"
)

func sharedMix() audioformat.Format {
	return audioformat.Format{SampleRate: 48000, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float}
}

func newTestEnum() (*mock.Enumerator, *mock.Device, *mock.Device) {
	capDev := mock.NewDevice("cap1", "Mock Capture", device.Capture, sharedMix())
	renDev := mock.NewDevice("ren1", "Mock Render", device.Render, sharedMix())
	return mock.NewEnumerator(capDev, renDev), capDev, renDev
}

func TestStartStopHappyPath(t *testing.T) {
	enum, _, _ := newTestEnum()
	r := New(enum, nil)

	err := r.Start("cap1", "ren1", false)
	require.NoError(t, err)
	assert.Equal(t, Running, r.GetStatus().State)

	time.Sleep(30 * time.Millisecond)

	require.NoError(t, r.Stop())
	assert.Equal(t, Stopped, r.GetStatus().State)
}

func TestStopIsIdempotent(t *testing.T) {
	enum, _, _ := newTestEnum()
	r := New(enum, nil)
	require.NoError(t, r.Start("cap1", "ren1", false))
	require.NoError(t, r.Stop())
	require.NoError(t, r.Stop())
	assert.Equal(t, Stopped, r.GetStatus().State)
}

func TestStartUnknownCaptureDeviceIsDeviceNotFound(t *testing.T) {
	enum, _, _ := newTestEnum()
	r := New(enum, nil)

	err := r.Start("does-not-exist", "ren1", false)
	require.Error(t, err)
	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, DeviceNotFound, rerr.Kind)
	assert.Equal(t, Errored, r.GetStatus().State)
}

func TestStartWithDifferentRatesEngagesResampler(t *testing.T) {
	capDev := mock.NewDevice("cap1", "Mock Capture", device.Capture, audioformat.Format{
		SampleRate: 48000, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float,
	})
	renDev := mock.NewDevice("ren1", "Mock Render", device.Render, audioformat.Format{
		SampleRate: 44100, Channels: 2, ContainerBits: 32, ValidBits: 32, Encoding: audioformat.Float,
	})
	enum := mock.NewEnumerator(capDev, renDev)
	r := New(enum, nil)

	require.NoError(t, r.Start("cap1", "ren1", false))
	defer r.Stop()

	assert.True(t, r.GetStatus().Resampling)
}

func TestRuntimeLostTransitionsToErrored(t *testing.T) {
	enum, capDev, _ := newTestEnum()
	r := New(enum, nil)

	require.NoError(t, r.Start("cap1", "ren1", false))
	assert.Equal(t, Running, r.GetStatus().State)

	capDev.SimulateDeviceLost()

	require.Eventually(t, func() bool {
		return r.GetStatus().State == Errored
	}, time.Second, 10*time.Millisecond)

	status := r.GetStatus()
	var rerr *Error
	require.True(t, errors.As(status.LastError, &rerr))
	assert.Equal(t, RuntimeLost, rerr.Kind)
}

func TestRestartingAnActiveSessionStopsThePrevious(t *testing.T) {
	enum, _, _ := newTestEnum()
	r := New(enum, nil)

	require.NoError(t, r.Start("cap1", "ren1", false))
	require.NoError(t, r.Start("cap1", "ren1", false))
	defer r.Stop()

	assert.Equal(t, Running, r.GetStatus().State)
}
