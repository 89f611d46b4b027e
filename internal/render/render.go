// Package render implements the render-side endpoint: shared/exclusive
// format negotiation (trying the capture-negotiated format before
// falling through the exclusive-mode priority list) and reading frames
// out of a ring buffer, zero-filling and counting an underrun on a short
// read rather than blocking the real-time callback.
package render

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lowlatency/audiobridge/internal/audioformat"
	"github.com/lowlatency/audiobridge/internal/device"
	"github.com/lowlatency/audiobridge/internal/ringbuffer"
)

// Endpoint is a negotiated, running (or stopped) render device bound to
// a ring buffer.
type Endpoint struct {
	dev    device.Device
	format audioformat.Format
	ring   *ringbuffer.RingBuffer

	underrunCount atomic.Uint64
	// opened is true for the lifetime between a successful Open and the
	// matching Stop, independent of whether Start was ever called.
	// running is true only while the device is actually delivering
	// callbacks. Stop must release the device whenever opened is true,
	// since Open alone already holds the device handle (exclusively, in
	// exclusive mode).
	opened       atomic.Bool
	running      atomic.Bool
	lastCallback atomic.Int64
}

// Open negotiates a format against dev and initializes it bound to ring.
// In exclusive mode, preferred (the capture endpoint's negotiated
// format, if any) is tried first, then audioformat.ExclusivePriority in
// order, each with a single buffer-alignment retry.
func Open(dev device.Device, ring *ringbuffer.RingBuffer, exclusive bool, preferred *audioformat.Format) (*Endpoint, error) {
	ep := &Endpoint{dev: dev, ring: ring}

	cb := func(out, _ []byte, _ uint32) {
		if !ep.running.Load() {
			zero(out)
			return
		}
		ep.lastCallback.Store(time.Now().UnixNano())
		n := ep.ring.Read(out)
		if n < len(out) {
			ep.underrunCount.Add(1)
			zero(out[n:])
		}
	}

	if !exclusive {
		mix, err := dev.MixFormat()
		if err != nil {
			return nil, fmt.Errorf("render: query mix format: %w", err)
		}
		cfg := device.Config{Format: mix, ShareMode: device.Shared}
		if err := device.InitWithAlignmentRetry(dev, cfg, cb); err != nil {
			return nil, fmt.Errorf("render: init shared device: %w", err)
		}
		ep.format = mix
		ep.opened.Store(true)
		return ep, nil
	}

	candidates := make([]audioformat.Candidate, 0, len(audioformat.ExclusivePriority)+1)
	if preferred != nil {
		candidates = append(candidates, audioformat.Candidate{
			Channels:      preferred.Channels,
			SampleRate:    preferred.SampleRate,
			ValidBits:     preferred.ValidBits,
			ContainerBits: preferred.ContainerBits,
			Encoding:      preferred.Encoding,
		})
	}
	candidates = append(candidates, audioformat.ExclusivePriority...)

	var lastErr error
	for _, candidate := range candidates {
		format := candidate.Format()
		cfg := device.Config{Format: format, ShareMode: device.Exclusive}
		if err := device.InitWithAlignmentRetry(dev, cfg, cb); err != nil {
			lastErr = err
			continue
		}
		ep.format = format
		ep.opened.Store(true)
		return ep, nil
	}
	return nil, fmt.Errorf("render: no exclusive format candidate accepted: %w", lastErr)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Format returns the negotiated render format.
func (ep *Endpoint) Format() audioformat.Format { return ep.format }

// BufferFrames returns the negotiated period size in frames.
func (ep *Endpoint) BufferFrames() uint32 { return ep.dev.BufferFrames() }

// UnderrunCount returns the number of periods that had to be padded with
// silence because the ring buffer ran dry.
func (ep *Endpoint) UnderrunCount() uint64 { return ep.underrunCount.Load() }

// IsRunning reports whether Start has been called without a matching Stop.
func (ep *Endpoint) IsRunning() bool { return ep.running.Load() }

// SinceLastCallback returns how long it has been since the device last
// delivered a period callback, measured from the moment Start was called.
// It is used by the router's watchdog to detect a device that has
// disappeared mid-stream (spec.md §7) rather than one that was cleanly
// stopped.
func (ep *Endpoint) SinceLastCallback() time.Duration {
	last := ep.lastCallback.Load()
	if last == 0 {
		return 0
	}
	return time.Since(time.Unix(0, last))
}

// SetRingBuffer rebinds the endpoint to a different ring buffer. The
// router uses this to splice a resampler pump's output ring in when
// capture and render formats disagree, per §4.6 step 5.
func (ep *Endpoint) SetRingBuffer(ring *ringbuffer.RingBuffer) {
	ep.ring = ring
}

// Start begins pulling frames from the ring buffer for playback.
func (ep *Endpoint) Start() error {
	ep.lastCallback.Store(time.Now().UnixNano())
	ep.running.Store(true)
	if err := ep.dev.Start(); err != nil {
		ep.running.Store(false)
		return fmt.Errorf("render: start device: %w", err)
	}
	return nil
}

// Stop halts playback and releases the device. It releases the device
// handle whenever Open succeeded, whether or not Start was ever called,
// so a rollback after a failed negotiation step downstream doesn't leak
// an exclusively-held device. It is safe to call more than once.
func (ep *Endpoint) Stop() error {
	if !ep.opened.CompareAndSwap(true, false) {
		return nil
	}
	var err error
	if ep.running.Swap(false) {
		if e := ep.dev.Stop(); e != nil {
			err = fmt.Errorf("render: stop device: %w", e)
		}
	}
	if e := ep.dev.Uninit(); e != nil && err == nil {
		err = fmt.Errorf("render: uninit device: %w", e)
	}
	return err
}
