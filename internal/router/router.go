// Package router implements the Router supervisor: the Stopped/Running/
// Error state machine that owns a capture endpoint, a render endpoint,
// the ring buffer(s) between them, and the resampler pump when the two
// endpoints negotiate different formats. Grounded on
// original_source/src/AudioRouter.h/.cpp for the start/stop step
// ordering and the pre-buffering gate, and on the teacher's
// cmd/assistant/main.go for the Go-idiomatic lifecycle/logging shape.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/lowlatency/audiobridge/internal/audioformat"
	"github.com/lowlatency/audiobridge/internal/capture"
	"github.com/lowlatency/audiobridge/internal/device"
	"github.com/lowlatency/audiobridge/internal/enumerate"
	"github.com/lowlatency/audiobridge/internal/pump"
	"github.com/lowlatency/audiobridge/internal/render"
	"github.com/lowlatency/audiobridge/internal/resampler"
	"github.com/lowlatency/audiobridge/internal/ringbuffer"
)

// State is the router's lifecycle state, per spec.md §4.6.
type State int

const (
	Stopped State = iota
	Running
	Errored
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Errored:
		return "error"
	default:
		return "stopped"
	}
}

// ringBufferMillis is the 500ms buffering target the primary ring buffer
// is sized against, matching the original's
// 48000 * 8 * 500 / 1000 byte allocation.
const ringBufferMillis = 500

// preBufferPollMax is the maximum number of 1ms polls the pre-buffering
// gate waits through before giving up and starting render anyway,
// matching the original's loop bound of 500 iterations.
const preBufferPollMax = 500

// watchdogInterval is how often the running-session watchdog polls each
// endpoint's last-callback timestamp for staleness.
const watchdogInterval = 20 * time.Millisecond

// watchdogTimeout is how long an endpoint may go without a period
// callback before the watchdog considers the device gone; spec.md §7's
// "device disappeared mid-stream" scenario. Generous relative to any
// realistic period size so ordinary scheduling jitter never trips it.
const watchdogTimeout = 150 * time.Millisecond

// Status is a point-in-time snapshot returned by GetStatus.
type Status struct {
	State               State
	SessionID           uuid.UUID
	CaptureFormat       audioformat.Format
	RenderFormat        audioformat.Format
	Resampling          bool
	OverrunCount        uint64
	UnderrunCount       uint64
	CaptureBufferFrames uint32
	RenderBufferFrames  uint32
	LastError           error
}

// Router supervises one active capture -> [resampler] -> render session.
type Router struct {
	enum   device.Enumerator
	logger *log.Logger

	mu         sync.Mutex
	state      State
	sessionID  uuid.UUID
	lastError  error
	captureDev device.Device
	renderDev  device.Device
	captureEp  *capture.Endpoint
	renderEp   *render.Endpoint
	res        *resampler.Resampler
	pump       *pump.Pump
	ringA      *ringbuffer.RingBuffer
	ringB      *ringbuffer.RingBuffer
	cancel     context.CancelFunc
	stopWatch  chan struct{}
}

// New returns a Stopped Router backed by enum for device lookup.
func New(enum device.Enumerator, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{enum: enum, logger: logger, state: Stopped}
}

// Start negotiates and starts a capture -> render route, per the
// ordering in spec.md §4.6: stop any previous session, allocate the
// primary ring buffer, initialize capture then render, configure the
// resampler (splicing in a second ring buffer and the pump only when
// Ready), start capture, run the pre-buffering gate, then start render.
func (r *Router) Start(captureID, renderID string, exclusive bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()

	sessionID := uuid.New()
	logger := r.logger.With("session", sessionID.String())
	logger.Info("starting session", "capture", captureID, "render", renderID, "exclusive", exclusive)

	captureInfo, ok, err := enumerate.FindByID(r.enum, device.Capture, captureID)
	if err != nil || !ok {
		return r.failLocked(newError(DeviceNotFound, "capture device not found", err))
	}
	renderInfo, ok, err := enumerate.FindByID(r.enum, device.Render, renderID)
	if err != nil || !ok {
		return r.failLocked(newError(DeviceNotFound, "render device not found", err))
	}

	captureDev, err := r.enum.Open(captureInfo)
	if err != nil {
		return r.failLocked(newError(DeviceBusy, "open capture device", err))
	}
	renderDev, err := r.enum.Open(renderInfo)
	if err != nil {
		return r.failLocked(newError(DeviceBusy, "open render device", err))
	}

	blockAlign := audioformat.RingBufferFormat.BlockAlign()
	ringSize := int(audioformat.RingBufferFormat.SampleRate) * blockAlign * ringBufferMillis / 1000
	ringA := ringbuffer.New(ringSize)

	captureEp, err := capture.Open(captureDev, ringA, exclusive)
	if err != nil {
		kind := InitFailed
		if exclusive {
			kind = UnsupportedFormat
		}
		return r.failLocked(newError(kind, "negotiate capture format", err))
	}

	captureFormat := captureEp.Format()
	renderEp, err := render.Open(renderDev, ringA, exclusive, &captureFormat)
	if err != nil {
		_ = captureEp.Stop()
		kind := InitFailed
		if exclusive {
			kind = UnsupportedFormat
		}
		return r.failLocked(newError(kind, "negotiate render format", err))
	}

	res := resampler.New()
	outcome, err := res.Configure(captureEp.Format(), renderEp.Format())
	if err != nil && outcome == resampler.Unsupported {
		_ = captureEp.Stop()
		_ = renderEp.Stop()
		return r.failLocked(newError(UnsupportedFormat, "configure resampler", err))
	}

	var ringB *ringbuffer.RingBuffer
	var p *pump.Pump
	var cancel context.CancelFunc
	if outcome == resampler.Ready {
		ringB = ringbuffer.New(ringSize)
		renderEp.SetRingBuffer(ringB)
		p = pump.New(ringA, ringB, res, captureEp.Format().BlockAlign())
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		p.Start(ctx)
		logger.Info("resampler engaged", "capture_format", captureEp.Format().String(), "render_format", renderEp.Format().String())
	}

	if err := captureEp.Start(); err != nil {
		if p != nil {
			cancel()
			p.Stop()
		}
		_ = captureEp.Stop()
		_ = renderEp.Stop()
		return r.failLocked(newError(InitFailed, "start capture", err))
	}

	renderSource := ringA
	if ringB != nil {
		renderSource = ringB
	}
	preBufferTarget := int(renderEp.BufferFrames()) * renderEp.Format().BlockAlign() * 2
	for i := 0; i < preBufferPollMax; i++ {
		if renderSource.AvailableRead() >= preBufferTarget {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := renderEp.Start(); err != nil {
		_ = captureEp.Stop()
		_ = renderEp.Stop()
		if p != nil {
			cancel()
			p.Stop()
		}
		return r.failLocked(newError(InitFailed, "start render", err))
	}

	r.sessionID = sessionID
	r.captureDev = captureDev
	r.renderDev = renderDev
	r.captureEp = captureEp
	r.renderEp = renderEp
	r.res = res
	r.pump = p
	r.ringA = ringA
	r.ringB = ringB
	r.cancel = cancel
	r.state = Running
	r.lastError = nil

	stopWatch := make(chan struct{})
	r.stopWatch = stopWatch
	go r.watchLoop(captureEp, renderEp, stopWatch)

	logger.Info("session running")
	return nil
}

// watchLoop polls both endpoints' last-callback timestamps while a
// session is running and reports a RuntimeLost failure the first time
// either one goes silent for longer than watchdogTimeout. It exits when
// stop is closed (normal Stop/restart) or once it reports a loss.
func (r *Router) watchLoop(captureEp *capture.Endpoint, renderEp *render.Endpoint, stop <-chan struct{}) {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if d := captureEp.SinceLastCallback(); d > watchdogTimeout {
				r.reportRuntimeLost("capture", fmt.Errorf("no callback for %s", d))
				return
			}
			if d := renderEp.SinceLastCallback(); d > watchdogTimeout {
				r.reportRuntimeLost("render", fmt.Errorf("no callback for %s", d))
				return
			}
		}
	}
}

// reportRuntimeLost transitions a running session to Errored with a
// RuntimeLost error and tears it down, per spec.md §7: "Worker exits
// cleanly; Router transitions to Error; no auto-restart."
func (r *Router) reportRuntimeLost(source string, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Running {
		return
	}
	logger := r.logger.With("session", r.sessionID.String())
	logger.Error("device lost mid-stream", "source", source, "err", cause)
	r.teardown(Errored, newError(RuntimeLost, fmt.Sprintf("%s device stopped producing callbacks", source), cause))
}

// Stop tears the active session down in reverse dependency order (pump,
// then capture, then render, then the ring buffers) and is safe to call
// when no session is running.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
	return nil
}

func (r *Router) stopLocked() {
	r.teardown(Stopped, nil)
}

// teardown releases every resource the active session holds and lands
// the router in target with cause recorded as the last error. It is a
// no-op unless a session is actually Running, so both an explicit Stop
// and a watchdog-reported loss can call it unconditionally.
func (r *Router) teardown(target State, cause error) {
	if r.state != Running {
		return
	}
	logger := r.logger.With("session", r.sessionID.String())

	if r.stopWatch != nil {
		close(r.stopWatch)
		r.stopWatch = nil
	}
	if r.cancel != nil {
		r.cancel()
	}
	if r.pump != nil {
		r.pump.Stop()
	}
	if r.captureEp != nil {
		if err := r.captureEp.Stop(); err != nil {
			logger.Warn("stop capture", "err", err)
		}
	}
	if r.renderEp != nil {
		if err := r.renderEp.Stop(); err != nil {
			logger.Warn("stop render", "err", err)
		}
	}
	if r.ringA != nil {
		r.ringA.Reset()
	}
	if r.ringB != nil {
		r.ringB.Reset()
	}

	r.captureEp = nil
	r.renderEp = nil
	r.res = nil
	r.pump = nil
	r.ringA = nil
	r.ringB = nil
	r.cancel = nil
	r.state = target
	r.lastError = cause
	if target == Stopped {
		logger.Info("session stopped")
	}
}

func (r *Router) failLocked(err *Error) error {
	r.state = Errored
	r.lastError = err
	r.logger.Error("session failed", "kind", err.Kind.String(), "err", err)
	return err
}

// GetStatus returns a snapshot of the router's current state.
func (r *Router) GetStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{State: r.state, SessionID: r.sessionID, LastError: r.lastError}
	if r.captureEp != nil {
		st.CaptureFormat = r.captureEp.Format()
		st.OverrunCount = r.captureEp.OverrunCount()
		st.CaptureBufferFrames = r.captureEp.BufferFrames()
	}
	if r.renderEp != nil {
		st.RenderFormat = r.renderEp.Format()
		st.UnderrunCount = r.renderEp.UnderrunCount()
		st.RenderBufferFrames = r.renderEp.BufferFrames()
	}
	st.Resampling = r.pump != nil
	return st
}
