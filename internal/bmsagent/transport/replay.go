package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
)

// ErrEmptyCapture is returned when a looping replay finds no usable frames.
var ErrEmptyCapture = errors.New("capture contains no frames")

// Opener returns a fresh reader over a capture log.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// Replay feeds frames from a candump -L capture. Unlike a live bus it blocks
// on a full queue instead of dropping.
type Replay struct {
	name     string
	open     Opener
	realtime bool
	loop     bool
	logger   logr.Logger
	wait     func(ctx context.Context, d time.Duration) error

	replayed atomic.Uint64
	skipped  atomic.Uint64
}

type ReplayOption func(*Replay)

// WithRealtime paces frames by the gaps between their capture timestamps.
func WithRealtime(enabled bool) ReplayOption {
	return func(r *Replay) { r.realtime = enabled }
}

func WithLoop(enabled bool) ReplayOption {
	return func(r *Replay) { r.loop = enabled }
}

func WithReplayLogger(l logr.Logger) ReplayOption {
	return func(r *Replay) { r.logger = l }
}

func NewReplay(name string, open Opener, opts ...ReplayOption) *Replay {
	r := &Replay{
		name:   name,
		open:   open,
		logger: logr.Discard(),
		wait:   sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithValues("source", name)
	return r
}

func NewFileReplay(path string, opts ...ReplayOption) *Replay {
	return NewReplay("file:"+path, func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	}, opts...)
}

func NewObjectReplay(store ObjectStore, key string, opts ...ReplayOption) *Replay {
	return NewReplay("s3:"+key, func(ctx context.Context) (io.ReadCloser, error) {
		return store.Open(ctx, key)
	}, opts...)
}

func (r *Replay) Name() string {
	return r.name
}

func (r *Replay) Stats() SourceStats {
	return SourceStats{
		Received: r.replayed.Load(),
		Skipped:  r.skipped.Load(),
	}
}

func (r *Replay) Run(ctx context.Context, out chan<- core.Frame) error {
	for pass := 1; ; pass++ {
		n, err := r.playOnce(ctx, out)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		r.logger.V(1).Info("Capture replay finished", "pass", pass, "frames", n)
		if !r.loop {
			return nil
		}
		if n == 0 {
			return fmt.Errorf("%s: %w", r.name, ErrEmptyCapture)
		}
	}
}

func (r *Replay) playOnce(ctx context.Context, out chan<- core.Frame) (int, error) {
	rc, err := r.open(ctx)
	if err != nil {
		return 0, fmt.Errorf("open capture %s: %w", r.name, err)
	}
	defer rc.Close()

	var (
		sent    int
		lineNo  int
		prev    time.Time
		scanner = bufio.NewScanner(rc)
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rec, err := ParseCandumpLine(line)
		if err != nil || rec.Remote {
			r.skipped.Add(1)
			if err != nil {
				r.logger.V(1).Info("Skipping capture line", "line", lineNo, "err", err.Error())
			}
			continue
		}

		if r.realtime && !prev.IsZero() {
			if gap := rec.Time.Sub(prev); gap > 0 {
				if err := r.wait(ctx, gap); err != nil {
					return sent, nil
				}
			}
		}
		prev = rec.Time

		select {
		case out <- rec.Frame:
			sent++
			r.replayed.Add(1)
		case <-ctx.Done():
			return sent, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return sent, fmt.Errorf("read capture %s: %w", r.name, err)
	}
	return sent, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
