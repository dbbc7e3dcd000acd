package transport

import (
	"context"
	"sync/atomic"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
	"github.com/autopeer-io/autopeer-bms/internal/pkg/metrics"
)

// DefaultQueueSize matches the receive queue depth of the reference hardware.
const DefaultQueueSize = 20

// FrameHandler consumes one frame and reports whether it was decoded.
type FrameHandler func(core.Frame) bool

// PumpStats counts frames that went through the pump.
type PumpStats struct {
	Received uint64 `json:"received"`
	Handled  uint64 `json:"handled"`
	Ignored  uint64 `json:"ignored"`
}

// Pump moves frames from a Source into a bounded queue and drains the queue
// on a single goroutine, so the handler never runs concurrently with itself.
type Pump struct {
	source    Source
	handler   FrameHandler
	queueSize int
	logger    logr.Logger

	received atomic.Uint64
	handled  atomic.Uint64
	ignored  atomic.Uint64
}

func NewPump(source Source, handler FrameHandler, queueSize int, logger logr.Logger) *Pump {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &Pump{
		source:    source,
		handler:   handler,
		queueSize: queueSize,
		logger:    logger.WithValues("source", source.Name()),
	}
}

// Run blocks until the source is exhausted or ctx is cancelled, and every
// queued frame has been handled.
func (p *Pump) Run(ctx context.Context) error {
	queue := make(chan core.Frame, p.queueSize)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		return p.source.Run(gctx, queue)
	})

	g.Go(func() error {
		received := metrics.FramesReceived.WithLabelValues(p.source.Name())
		for f := range queue {
			p.received.Add(1)
			received.Inc()
			if p.handler(f) {
				p.handled.Add(1)
			} else {
				p.ignored.Add(1)
			}
		}
		return nil
	})

	p.logger.Info("Frame pump started", "queue", p.queueSize)
	err := g.Wait()
	p.logger.Info("Frame pump stopped", "received", p.received.Load(), "handled", p.handled.Load())
	return err
}

func (p *Pump) Stats() PumpStats {
	return PumpStats{
		Received: p.received.Load(),
		Handled:  p.handled.Load(),
		Ignored:  p.ignored.Load(),
	}
}
