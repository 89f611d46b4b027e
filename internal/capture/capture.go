// Package capture implements the capture-side endpoint: shared/exclusive
// format negotiation against a device.Device and writing captured frames
// into a ring buffer, dropping on overrun rather than blocking the
// real-time callback.
package capture

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lowlatency/audiobridge/internal/audioformat"
	"github.com/lowlatency/audiobridge/internal/device"
	"github.com/lowlatency/audiobridge/internal/ringbuffer"
)

// Endpoint is a negotiated, running (or stopped) capture device bound to
// a ring buffer.
type Endpoint struct {
	dev    device.Device
	format audioformat.Format
	ring   *ringbuffer.RingBuffer

	overrunCount atomic.Uint64
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
// In shared mode the device's own mix format is used as-is. In exclusive
// mode the candidates in audioformat.ExclusivePriority are tried in
// order, each with a single buffer-alignment retry, until one succeeds.
func Open(dev device.Device, ring *ringbuffer.RingBuffer, exclusive bool) (*Endpoint, error) {
	ep := &Endpoint{dev: dev, ring: ring}

	cb := func(_, in []byte, _ uint32) {
		if !ep.running.Load() {
			return
		}
		ep.lastCallback.Store(time.Now().UnixNano())
		if len(in) == 0 {
			return
		}
		n := ep.ring.Write(in)
		if n < len(in) {
			ep.overrunCount.Add(1)
		}
	}

	if !exclusive {
		mix, err := dev.MixFormat()
		if err != nil {
			return nil, fmt.Errorf("capture: query mix format: %w", err)
		}
		cfg := device.Config{Format: mix, ShareMode: device.Shared}
		if err := device.InitWithAlignmentRetry(dev, cfg, cb); err != nil {
			return nil, fmt.Errorf("capture: init shared device: %w", err)
		}
		ep.format = mix
		ep.opened.Store(true)
		return ep, nil
	}

	var lastErr error
	for _, candidate := range audioformat.ExclusivePriority {
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
	return nil, fmt.Errorf("capture: no exclusive format candidate accepted: %w", lastErr)
}

// Format returns the negotiated capture format.
func (ep *Endpoint) Format() audioformat.Format { return ep.format }

// BufferFrames returns the negotiated period size in frames.
func (ep *Endpoint) BufferFrames() uint32 { return ep.dev.BufferFrames() }

// OverrunCount returns the number of periods that were partly or wholly
// dropped because the ring buffer had no room for them.
func (ep *Endpoint) OverrunCount() uint64 { return ep.overrunCount.Load() }

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

// Start begins delivering captured frames into the ring buffer.
func (ep *Endpoint) Start() error {
	ep.lastCallback.Store(time.Now().UnixNano())
	ep.running.Store(true)
	if err := ep.dev.Start(); err != nil {
		ep.running.Store(false)
		return fmt.Errorf("capture: start device: %w", err)
	}
	return nil
}

// Stop halts capture and releases the device. It releases the device
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
			err = fmt.Errorf("capture: stop device: %w", e)
		}
	}
	if e := ep.dev.Uninit(); e != nil && err == nil {
		err = fmt.Errorf("capture: uninit device: %w", e)
	}
	return err
}
