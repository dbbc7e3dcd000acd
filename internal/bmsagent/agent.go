package bmsagent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/arbiter"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/hub"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/server"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/transport"
	"github.com/autopeer-io/autopeer-bms/internal/pkg/metrics"
	"github.com/autopeer-io/autopeer-bms/pkg/log"
	"github.com/autopeer-io/autopeer-bms/pkg/options"
)

const observeInterval = time.Second

type Agent struct {
	deviceID string
	opts     *options.CanOptions

	arbiter *arbiter.Arbiter
	pump    *transport.Pump
	hub     *hub.Hub
	servers *server.Manager

	// report receives the detection statistics on shutdown.
	report io.Writer
}

func (a *Agent) DeviceID() string {
	return a.deviceID
}

func (a *Agent) Arbiter() *arbiter.Arbiter {
	return a.arbiter
}

func (a *Agent) Run(ctx context.Context) error {
	log.Info("Starting cpeer-bms-agent", "deviceID", a.deviceID, "decoders", a.arbiter.DecoderCount())

	if !a.arbiter.InitializeAll() {
		log.Warn("Some decoders failed to initialize")
	}
	if !a.arbiter.StartAll() {
		log.Warn("Some decoders failed to start")
	}
	if err := a.applyProtocol(a.opts); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.servers.Start(gctx)
	})
	g.Go(func() error {
		if err := a.pump.Run(gctx); err != nil {
			return fmt.Errorf("frame pump stopped: %w", err)
		}
		stats := a.pump.Stats()
		log.Info("CAN source finished", "received", stats.Received, "handled", stats.Handled, "ignored", stats.Ignored)
		return nil
	})
	if a.hub != nil {
		g.Go(func() error {
			return a.hub.Run(gctx)
		})
	}
	g.Go(func() error {
		a.observe(gctx)
		return nil
	})

	err := g.Wait()
	log.Info("Agent shutting down...")

	a.arbiter.StopAll()
	a.writeReport()
	log.Sync()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Reload applies protocol selection changes from a reloaded configuration.
// Decoder set, threshold and source are fixed for the life of the process.
func (a *Agent) Reload(opts *options.CanOptions) error {
	if opts == nil {
		return nil
	}
	return a.applyProtocol(opts)
}

func (a *Agent) applyProtocol(opts *options.CanOptions) error {
	v, err := opts.PinnedVendor()
	if err != nil {
		return err
	}

	if v == core.VendorNone {
		if !a.arbiter.AutoDetect() {
			a.arbiter.SetAutoDetect(true)
		}
		return nil
	}

	if active := a.arbiter.Active(); active != nil && active.Vendor() == v && !a.arbiter.AutoDetect() {
		return nil
	}
	if !a.arbiter.SelectProtocol(v) {
		return fmt.Errorf("protocol %s is not among the registered decoders", v)
	}
	return nil
}

func (a *Agent) onDetected(d core.Decoder) {
	if a.hub != nil {
		a.hub.Announce(d)
	}
}

// observe mirrors the arbiter snapshot into the gauges exposed on /metrics.
func (a *Agent) observe(ctx context.Context) {
	ticker := time.NewTicker(observeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.updateGauges()
		}
	}
}

func (a *Agent) updateGauges() {
	s, ok := a.arbiter.Data()
	if !ok {
		metrics.Connected.Set(0)
		return
	}

	metrics.Connected.Set(1)
	metrics.Battery.WithLabelValues("voltage").Set(s.Voltage)
	metrics.Battery.WithLabelValues("current").Set(s.Current)
	metrics.Battery.WithLabelValues("soc").Set(s.SOC)
	metrics.Battery.WithLabelValues("temperature").Set(s.Temperature)
	metrics.Battery.WithLabelValues("cycles").Set(float64(s.Cycles))
}

func (a *Agent) writeReport() {
	w := a.report
	if w == nil {
		w = os.Stdout
	}
	if err := a.arbiter.WriteDetectionStats(w); err != nil {
		log.Error(err, "Failed to write detection statistics")
	}
}
