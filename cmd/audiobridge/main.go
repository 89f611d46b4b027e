// Audio Bridge - a real-time PCM routing daemon between one capture
// endpoint and one render endpoint, with WASAPI-style exclusive/shared
// negotiation, pre-buffering, and underrun/overrun handling.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lowlatency/audiobridge/internal/config"
	"github.com/lowlatency/audiobridge/internal/device"
	"github.com/lowlatency/audiobridge/internal/device/malgobackend"
	"github.com/lowlatency/audiobridge/internal/enumerate"
	"github.com/lowlatency/audiobridge/internal/logging"
	"github.com/lowlatency/audiobridge/internal/router"
	"github.com/lowlatency/audiobridge/internal/settings"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Verbose)
	logger.Info("audio bridge starting")

	enum, err := malgobackend.NewEnumerator()
	if err != nil {
		logger.Fatal("failed to initialize audio backend", "err", err)
	}
	defer enum.Close()

	if cfg.ListDevices {
		listDevices(enum, logger)
		return
	}

	store := settings.NewFileStore(cfg.SettingsPath)
	saved, err := store.Load()
	if err != nil {
		logger.Warn("failed to load settings", "err", err)
	}

	captureID := firstNonEmpty(cfg.CaptureDeviceID, saved.CaptureDevice)
	renderID := firstNonEmpty(cfg.RenderDeviceID, saved.RenderDevice)
	exclusive := cfg.Exclusive

	r := router.New(enum, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if cfg.AutoStart {
		if err := r.Start(captureID, renderID, exclusive); err != nil {
			logger.Error("failed to start route", "err", err)
		} else {
			logger.Info("route started", "capture", captureID, "render", renderID, "exclusive", exclusive)
			_ = store.Save(settings.Settings{
				CaptureDevice: captureID,
				RenderDevice:  renderID,
				ExclusiveMode: exclusive,
				AutoStart:     cfg.AutoStart,
			})
		}
	}

	var statusTicker *time.Ticker
	var statusChan <-chan time.Time
	if cfg.StatusInterval > 0 {
		statusTicker = time.NewTicker(time.Duration(cfg.StatusInterval) * time.Second)
		statusChan = statusTicker.C
		defer statusTicker.Stop()
	}

	for {
		select {
		case <-sigChan:
			logger.Info("shutting down")
			done := make(chan struct{})
			go func() {
				_ = r.Stop()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				logger.Warn("shutdown timed out waiting for router")
			}
			return
		case <-statusChan:
			status := r.GetStatus()
			logger.Info("status",
				"state", status.State.String(),
				"resampling", status.Resampling,
				"overruns", status.OverrunCount,
				"underruns", status.UnderrunCount,
			)
		}
	}
}

func listDevices(enum *malgobackend.Enumerator, logger *log.Logger) {
	for _, flow := range []device.Flow{device.Capture, device.Render} {
		infos, err := enumerate.List(enum, flow)
		if err != nil {
			logger.Info("failed to enumerate devices", "flow", flow.String(), "err", err)
			continue
		}
		for _, info := range infos {
			logger.Info("device", "flow", flow.String(), "id", info.ID, "name", info.FriendlyName)
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
