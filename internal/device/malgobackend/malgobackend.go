// Package malgobackend implements internal/device.Device and
// internal/device.Enumerator on top of github.com/gen2brain/malgo, the
// same miniaudio binding the teacher uses for capture and playback.
package malgobackend

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/lowlatency/audiobridge/internal/audioformat"
	"github.com/lowlatency/audiobridge/internal/device"
)

// Enumerator lists and opens malgo devices against a shared context.
type Enumerator struct {
	ctx *malgo.AllocatedContext
}

// NewEnumerator initializes a malgo context. The caller must call Close
// when the enumerator is no longer needed.
func NewEnumerator() (*Enumerator, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgobackend: init context: %w", err)
	}
	return &Enumerator{ctx: ctx}, nil
}

// Close releases the underlying malgo context.
func (e *Enumerator) Close() error {
	if e.ctx == nil {
		return nil
	}
	if err := e.ctx.Uninit(); err != nil {
		return err
	}
	e.ctx.Free()
	e.ctx = nil
	return nil
}

func (e *Enumerator) Devices(flow device.Flow) ([]device.Info, error) {
	kind := malgo.Capture
	if flow == device.Render {
		kind = malgo.Playback
	}
	infos, err := e.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("malgobackend: enumerate %s devices: %w", flow, err)
	}
	out := make([]device.Info, 0, len(infos))
	for _, di := range infos {
		out = append(out, device.Info{
			ID:           di.ID.String(),
			FriendlyName: di.Name(),
			Flow:         flow,
		})
	}
	return out, nil
}

func (e *Enumerator) Open(info device.Info) (device.Device, error) {
	return &Device{ctx: e.ctx, info: info}, nil
}

// Device is a single malgo-backed capture or render endpoint.
type Device struct {
	ctx  *malgo.AllocatedContext
	info device.Info

	mu           sync.Mutex
	dev          *malgo.Device
	bufferFrames uint32
	running      atomic.Bool
}

func (d *Device) malgoType() malgo.DeviceType {
	if d.info.Flow == device.Render {
		return malgo.Playback
	}
	return malgo.Capture
}

// MixFormat reports a shared-mode format via a throwaway device
// init/uninit, the same tempDevice probe idiom the teacher's
// Capturer.Start uses to learn the device's native rate before committing
// to a configuration. Only the sample rate comes from the probe; the
// format is always reported as stereo 32-bit float.
func (d *Device) MixFormat() (audioformat.Format, error) {
	cfg := malgo.DefaultDeviceConfig(d.malgoType())
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = 2
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = 2

	tempDevice, err := malgo.InitDevice(d.ctx.Context, cfg, malgo.DeviceCallbacks{})
	if err != nil {
		return audioformat.Format{}, fmt.Errorf("malgobackend: probe mix format: %w", err)
	}
	defer tempDevice.Uninit()

	rate := tempDevice.SampleRate()
	channels := uint16(2)
	return audioformat.Format{
		SampleRate:    rate,
		Channels:      channels,
		ContainerBits: 32,
		ValidBits:     32,
		Encoding:      audioformat.Float,
		ChannelMask:   audioformat.ChannelMaskFor(channels),
	}, nil
}

// Init opens the device against cfg.Format and registers cb as the
// period callback. malgo/miniaudio's own backend handles buffer-size
// alignment internally, so BufferSizeNotAlignedError is never produced by
// this implementation; it exists purely at the device.Device interface
// level for backends (and the test mock) that need to model it.
func (d *Device) Init(cfg device.Config, cb device.DataCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	malgoCfg := malgo.DefaultDeviceConfig(d.malgoType())
	fmt32 := cfg.Format.Encoding == audioformat.Float && cfg.Format.ContainerBits == 32
	format := malgo.FormatS16
	switch {
	case fmt32:
		format = malgo.FormatF32
	case cfg.Format.ContainerBits == 24:
		format = malgo.FormatS24
	case cfg.Format.ContainerBits == 32:
		format = malgo.FormatS32
	case cfg.Format.ContainerBits == 8:
		format = malgo.FormatU8
	}

	if d.info.Flow == device.Render {
		malgoCfg.Playback.Format = format
		malgoCfg.Playback.Channels = uint32(cfg.Format.Channels)
		malgoCfg.Playback.DeviceID = nil
	} else {
		malgoCfg.Capture.Format = format
		malgoCfg.Capture.Channels = uint32(cfg.Format.Channels)
		malgoCfg.Capture.DeviceID = nil
	}
	malgoCfg.SampleRate = cfg.Format.SampleRate
	if cfg.PeriodFrames > 0 {
		malgoCfg.PeriodSizeInFrames = cfg.PeriodFrames
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, in []byte, frameCount uint32) {
			if !d.running.Load() {
				return
			}
			cb(out, in, frameCount)
		},
	}

	dev, err := malgo.InitDevice(d.ctx.Context, malgoCfg, callbacks)
	if err != nil {
		return fmt.Errorf("malgobackend: init %s device: %w", d.info.Flow, err)
	}
	d.dev = dev
	d.bufferFrames = dev.BufferSize()
	return nil
}

func (d *Device) BufferFrames() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bufferFrames
}

func (d *Device) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev == nil {
		return fmt.Errorf("malgobackend: Start before Init")
	}
	d.running.Store(true)
	if err := d.dev.Start(); err != nil {
		d.running.Store(false)
		return fmt.Errorf("malgobackend: start %s device: %w", d.info.Flow, err)
	}
	return nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running.Store(false)
	if d.dev == nil {
		return nil
	}
	if err := d.dev.Stop(); err != nil {
		return fmt.Errorf("malgobackend: stop %s device: %w", d.info.Flow, err)
	}
	return nil
}

func (d *Device) Uninit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dev == nil {
		return nil
	}
	d.dev.Uninit()
	d.dev = nil
	return nil
}
