package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-logr/logr"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
	"github.com/autopeer-io/autopeer-bms/internal/pkg/metrics"
	"github.com/autopeer-io/autopeer-bms/pkg/options"
)

// ErrUnsupported is returned by sources that cannot run on this platform.
var ErrUnsupported = errors.New("transport not supported on this platform")

// Source produces CAN frames until its context is cancelled or it runs dry.
type Source interface {
	// Name identifies the source in logs and metrics.
	Name() string

	// Run writes frames to out. It returns nil when ctx is cancelled or the
	// source is exhausted. It never closes out.
	Run(ctx context.Context, out chan<- core.Frame) error
}

// Offer hands f to out without blocking, the way a receive interrupt fills a
// hardware queue. It returns false and counts a drop when out is full.
func Offer(out chan<- core.Frame, f core.Frame, source string) bool {
	select {
	case out <- f:
		return true
	default:
		metrics.FramesDropped.WithLabelValues(source).Inc()
		return false
	}
}

// SourceConfig describes which source NewSource builds.
type SourceConfig struct {
	// URL selects the source:
	//   socketcan://can0
	//   file:///var/lib/bms/capture.log
	//   s3://bucket/captures/pack.log  (bucket may be empty to use S3Options.BucketName)
	URL string

	// Realtime paces replayed frames by their capture timestamps.
	Realtime bool

	// Loop restarts a replay from the top when it reaches the end.
	Loop bool

	S3     *options.S3Options
	Logger logr.Logger
}

// NewSource builds the Source described by cfg.
func NewSource(cfg SourceConfig) (Source, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid source url %q: %w", cfg.URL, err)
	}

	logger := cfg.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	replayOpts := []ReplayOption{
		WithRealtime(cfg.Realtime),
		WithLoop(cfg.Loop),
		WithReplayLogger(logger),
	}

	switch strings.ToLower(u.Scheme) {
	case "socketcan", "can":
		iface := u.Host
		if iface == "" {
			iface = u.Opaque
		}
		if iface == "" {
			return nil, fmt.Errorf("socketcan source needs an interface name, e.g. socketcan://can0")
		}
		return NewSocketCAN(iface, WithSocketLogger(logger)), nil

	case "file", "":
		path := u.Path
		if u.Host != "" {
			path = u.Host + u.Path
		}
		if path == "" {
			path = u.Opaque
		}
		if path == "" {
			return nil, fmt.Errorf("file source needs a path, e.g. file:///var/lib/bms/capture.log")
		}
		return NewFileReplay(path, replayOpts...), nil

	case "s3":
		if cfg.S3 == nil {
			return nil, fmt.Errorf("s3 source requires s3 options")
		}
		bucket := u.Host
		if bucket == "" {
			bucket = cfg.S3.BucketName
		}
		key := strings.TrimPrefix(u.Path, "/")
		if key == "" {
			return nil, fmt.Errorf("s3 source needs an object key, e.g. s3://captures/pack.log")
		}
		store, err := NewMinIOStore(cfg.S3, bucket)
		if err != nil {
			return nil, err
		}
		return NewObjectReplay(store, key, replayOpts...), nil
	}

	return nil, fmt.Errorf("unsupported source scheme %q", u.Scheme)
}
