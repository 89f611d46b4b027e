// Package mock provides a device.Device/device.Enumerator pair driven
// entirely in-process, so router and endpoint tests can exercise
// negotiation, retry, and underrun/overrun behavior without real
// hardware.
package mock

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lowlatency/audiobridge/internal/audioformat"
	"github.com/lowlatency/audiobridge/internal/device"
)

// Enumerator is a fixed, in-memory device catalog for tests.
type Enumerator struct {
	mu      sync.Mutex
	devices map[string]*Device
}

// NewEnumerator builds an Enumerator from the given devices, keyed by
// their Info.ID.
func NewEnumerator(devices ...*Device) *Enumerator {
	e := &Enumerator{devices: make(map[string]*Device)}
	for _, d := range devices {
		e.devices[d.info.ID] = d
	}
	return e
}

func (e *Enumerator) Devices(flow device.Flow) ([]device.Info, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []device.Info
	for _, d := range e.devices {
		if d.info.Flow == flow {
			out = append(out, d.info)
		}
	}
	return out, nil
}

func (e *Enumerator) Open(info device.Info) (device.Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.devices[info.ID]
	if !ok {
		return nil, fmt.Errorf("mock: no such device %q", info.ID)
	}
	return d, nil
}

// Device is a mock capture or render endpoint. MixFormatValue is
// returned verbatim by MixFormat. SupportedExclusive restricts which
// candidates Init accepts in exclusive mode (nil accepts any). Setting
// MisalignOnce causes the first exclusive Init call to fail with
// BufferSizeNotAlignedError, exercising spec §8 scenario 6.
type Device struct {
	info               device.Info
	MixFormatValue     audioformat.Format
	SupportedExclusive []audioformat.Format
	MisalignOnce       bool
	AlignedFrames      uint32
	PeriodFrames       uint32

	mu           sync.Mutex
	misaligned   bool
	negotiated   audioformat.Format
	cb           device.DataCallback
	running      atomic.Bool
	stop         chan struct{}
	wg           sync.WaitGroup
	tickInterval time.Duration

	// Capture feed / render sink, called on each simulated period tick:
	// FeedFunc supplies the captured bytes in place of a zero-filled
	// period, SinkFunc receives each rendered period after the callback.
	FeedFunc func(frameCount uint32) []byte
	SinkFunc func(data []byte, frameCount uint32)
}

// NewDevice constructs a mock device with a default 10ms synthetic
// period tick.
func NewDevice(id, name string, flow device.Flow, mixFormat audioformat.Format) *Device {
	return &Device{
		info:           device.Info{ID: id, FriendlyName: name, Flow: flow},
		MixFormatValue: mixFormat,
		tickInterval:   10 * time.Millisecond,
		PeriodFrames:   480,
	}
}

func (d *Device) Info() device.Info { return d.info }

func (d *Device) MixFormat() (audioformat.Format, error) {
	return d.MixFormatValue, nil
}

func (d *Device) Init(cfg device.Config, cb device.DataCallback) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cfg.ShareMode == device.Exclusive {
		if d.MisalignOnce && !d.misaligned {
			d.misaligned = true
			aligned := d.AlignedFrames
			if aligned == 0 {
				aligned = cfg.PeriodFrames
			}
			return &device.BufferSizeNotAlignedError{AlignedFrames: aligned}
		}
		if d.SupportedExclusive != nil {
			ok := false
			for _, f := range d.SupportedExclusive {
				if f.Equal(cfg.Format) {
					ok = true
					break
				}
			}
			if !ok {
				return fmt.Errorf("mock: exclusive format %s not supported", cfg.Format)
			}
		}
	}

	d.negotiated = cfg.Format
	d.cb = cb
	if cfg.PeriodFrames > 0 {
		d.PeriodFrames = cfg.PeriodFrames
	}
	return nil
}

func (d *Device) BufferFrames() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.PeriodFrames
}

func (d *Device) Start() error {
	d.mu.Lock()
	if d.cb == nil {
		d.mu.Unlock()
		return fmt.Errorf("mock: Start before Init")
	}
	d.stop = make(chan struct{})
	d.mu.Unlock()

	d.running.Store(true)
	d.wg.Add(1)
	go d.runLoop()
	return nil
}

func (d *Device) runLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	blockAlign := d.negotiated.BlockAlign()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			if !d.running.Load() {
				continue
			}
			frames := d.PeriodFrames
			if d.info.Flow == device.Capture {
				var in []byte
				if d.FeedFunc != nil {
					in = d.FeedFunc(frames)
				} else {
					in = make([]byte, int(frames)*blockAlign)
				}
				d.cb(nil, in, frames)
			} else {
				out := make([]byte, int(frames)*blockAlign)
				d.cb(out, nil, frames)
				if d.SinkFunc != nil {
					d.SinkFunc(out, frames)
				}
			}
		}
	}
}

// SimulateDeviceLost stops the simulated real-time thread without going
// through Stop/Uninit, modeling a device that disappears mid-stream
// (spec.md §7) rather than one a caller cleanly stops. Callbacks simply
// stop arriving, exactly as they would if the hardware vanished under a
// real backend; it is up to the caller to notice the gap.
func (d *Device) SimulateDeviceLost() {
	d.mu.Lock()
	stopCh := d.stop
	d.mu.Unlock()
	if stopCh != nil {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}
}

func (d *Device) Stop() error {
	d.running.Store(false)
	d.mu.Lock()
	stopCh := d.stop
	d.mu.Unlock()
	if stopCh != nil {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}
	d.wg.Wait()
	return nil
}

func (d *Device) Uninit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cb = nil
	return nil
}
