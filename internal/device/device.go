// Package device declares the capture/render hardware abstraction that
// the rest of the router is built against, so negotiation and retry
// logic can run identically over a real malgo backend or a test mock.
package device

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/lowlatency/audiobridge/internal/audioformat"
)

// Flow identifies which direction a device moves audio.
type Flow int

const (
	Capture Flow = iota
	Render
)

func (f Flow) String() string {
	if f == Render {
		return "render"
	}
	return "capture"
}

// ShareMode mirrors WASAPI's two initialization modes.
type ShareMode int

const (
	Shared ShareMode = iota
	Exclusive
)

func (m ShareMode) String() string {
	if m == Exclusive {
		return "exclusive"
	}
	return "shared"
}

// Config requests how a Device should be opened.
type Config struct {
	Format       audioformat.Format
	ShareMode    ShareMode
	PeriodFrames uint32 // requested period size; 0 lets the backend pick its minimum
}

// DataCallback is invoked from the device's real-time thread once per
// period. For a capture device, in carries the frames just captured and
// out is nil. For a render device, out must be filled with frames to
// play and in is nil. frameCount is the number of frames represented by
// the buffer, not its byte length.
type DataCallback func(out, in []byte, frameCount uint32)

// Device is one opened audio endpoint. Implementations must be safe for
// the lifecycle Init -> Start -> Stop -> Uninit, called from a single
// owning goroutine; the DataCallback itself runs on whatever thread the
// backend's real-time callback uses.
type Device interface {
	// MixFormat probes the endpoint's shared-mode mix format without
	// acquiring exclusive ownership.
	MixFormat() (audioformat.Format, error)
	// Init opens the device with the given configuration and registers
	// cb to be invoked each period. It returns BufferSizeNotAlignedError
	// if cfg.PeriodFrames must be re-requested at an aligned value.
	Init(cfg Config, cb DataCallback) error
	// BufferFrames returns the negotiated period size in frames. Valid
	// only after a successful Init.
	BufferFrames() uint32
	Start() error
	Stop() error
	Uninit() error
}

// BufferSizeNotAlignedError is returned by Init when the requested period
// size is not a multiple of the device's required alignment; AlignedFrames
// carries the value Init should be retried with, mirroring
// AUDCLNT_E_BUFFER_SIZE_NOT_ALIGNED.
type BufferSizeNotAlignedError struct {
	AlignedFrames uint32
}

func (e *BufferSizeNotAlignedError) Error() string {
	return fmt.Sprintf("device: buffer size not aligned, retry with %d frames", e.AlignedFrames)
}

// AsBufferSizeNotAligned is a convenience errors.As wrapper.
func AsBufferSizeNotAligned(err error) (*BufferSizeNotAlignedError, bool) {
	var a *BufferSizeNotAlignedError
	if errors.As(err, &a) {
		return a, true
	}
	return nil, false
}

// AlignedPeriodDuration computes the exclusive-mode buffer duration, in
// 100-nanosecond units, for a period of alignedFrames at sampleRate, as
// the ceiling of 10000000 * alignedFrames / sampleRate.
func AlignedPeriodDuration(alignedFrames uint32, sampleRate uint32) time.Duration {
	hundredNs := math.Ceil(10000000.0 * float64(alignedFrames) / float64(sampleRate))
	return time.Duration(hundredNs) * 100 * time.Nanosecond
}

// InitWithAlignmentRetry calls dev.Init(cfg, cb), and on
// BufferSizeNotAlignedError retries exactly once with cfg.PeriodFrames
// set to the aligned value the device reported. A second misalignment
// (or any other error) is returned to the caller as-is; spec.md §4.3
// treats a repeat misalignment as that candidate failing outright rather
// than retrying indefinitely.
func InitWithAlignmentRetry(dev Device, cfg Config, cb DataCallback) error {
	err := dev.Init(cfg, cb)
	if aligned, ok := AsBufferSizeNotAligned(err); ok {
		cfg.PeriodFrames = aligned.AlignedFrames
		err = dev.Init(cfg, cb)
	}
	return err
}

// Info describes one enumerated endpoint.
type Info struct {
	ID           string
	FriendlyName string
	Flow         Flow
}

// Enumerator lists and opens devices by id.
type Enumerator interface {
	Devices(flow Flow) ([]Info, error)
	Open(info Info) (Device, error)
}
