package arbiter

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
	"github.com/autopeer-io/autopeer-bms/internal/pkg/metrics"
)

// DefaultThreshold is the number of successful parses a protocol needs before
// auto-detection promotes it.
const DefaultThreshold = 5

// Routing outcomes, used as metric labels.
const (
	OutcomeParsed         = "parsed"
	OutcomeRejected       = "rejected"
	OutcomeUnclaimed      = "unclaimed"
	OutcomePinnedMismatch = "pinned_mismatch"
)

// DetectionHandler is called once each time auto-detection promotes a decoder.
type DetectionHandler func(d core.Decoder)

// DetectionStats is the per decoder arbitration bookkeeping.
type DetectionStats struct {
	Name       string      `json:"name"`
	Vendor     core.Vendor `json:"vendor"`
	MatchCount uint32      `json:"matchCount"`
	LastMatch  time.Time   `json:"lastMatch"`
}

type entry struct {
	decoder core.Decoder
	stats   DetectionStats
}

// Arbiter owns the registered decoders, routes frames to them and decides
// which one feeds the published snapshot.
//
// RouteFrame must be called from a single goroutine. All other methods are
// safe for concurrent use.
type Arbiter struct {
	threshold uint32
	freshness time.Duration
	clock     clock.PassiveClock
	logger    logr.Logger
	handlers  []DetectionHandler

	mu         sync.RWMutex
	entries    []*entry
	active     core.Decoder
	autoDetect bool
	mode       *modeMachine
}

type Option func(*Arbiter)

func WithThreshold(n uint32) Option {
	return func(a *Arbiter) {
		if n > 0 {
			a.threshold = n
		}
	}
}

// WithFreshness sets the window used by IsConnected and Data.
func WithFreshness(d time.Duration) Option {
	return func(a *Arbiter) {
		if d > 0 {
			a.freshness = d
		}
	}
}

func WithClock(c clock.PassiveClock) Option {
	return func(a *Arbiter) { a.clock = c }
}

func WithLogger(l logr.Logger) Option {
	return func(a *Arbiter) { a.logger = l }
}

func WithDetectionHandler(h DetectionHandler) Option {
	return func(a *Arbiter) {
		if h != nil {
			a.handlers = append(a.handlers, h)
		}
	}
}

// New creates an arbiter in auto-detect mode with no decoders.
func New(opts ...Option) *Arbiter {
	a := &Arbiter{
		threshold:  DefaultThreshold,
		freshness:  core.DefaultFreshness,
		clock:      clock.RealClock{},
		logger:     logr.Discard(),
		autoDetect: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.mode = newModeMachine(a.logger)
	return a
}

// Register appends a decoder. Registration order decides precedence when
// several decoders accept the same identifier.
func (a *Arbiter) Register(d core.Decoder) error {
	if d == nil {
		return core.ErrNilDecoder
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range a.entries {
		if e.decoder.Vendor() == d.Vendor() {
			a.logger.Info("Registering a second decoder for the same vendor; the first one wins", "vendor", d.Vendor().String())
			break
		}
	}

	a.entries = append(a.entries, &entry{
		decoder: d,
		stats:   DetectionStats{Name: d.Name(), Vendor: d.Vendor()},
	})
	metrics.ActiveProtocol.WithLabelValues(d.Name()).Set(0)
	a.logger.V(1).Info("Registered protocol", "protocol", d.Name())
	return nil
}

// InitializeAll initializes every decoder, even after a failure.
func (a *Arbiter) InitializeAll() bool {
	return a.each("initialize", core.Decoder.Initialize)
}

func (a *Arbiter) StartAll() bool {
	return a.each("start", core.Decoder.Start)
}

// StopAll stops every decoder and clears the active one. It is idempotent.
func (a *Arbiter) StopAll() bool {
	ok := a.each("stop", core.Decoder.Stop)

	a.mu.Lock()
	a.setActive(nil)
	a.mode.fire(EventRelease)
	a.mu.Unlock()
	return ok
}

func (a *Arbiter) each(op string, fn func(core.Decoder) bool) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ok := true
	for _, e := range a.entries {
		if !fn(e.decoder) {
			a.logger.Error(fmt.Errorf("%s failed", op), "Protocol lifecycle call failed", "protocol", e.decoder.Name())
			ok = false
		}
	}
	return ok
}

// SetAutoDetect turns arbitration on or off. Turning it on drops the active
// decoder; turning it off freezes whatever is active. Match counts are kept.
func (a *Arbiter) SetAutoDetect(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.autoDetect = enabled
	if enabled {
		a.setActive(nil)
		a.mode.fire(EventAuto)
	} else {
		a.mode.fire(EventFreeze)
	}
	a.logger.Info("Auto-detection changed", "enabled", enabled)
}

func (a *Arbiter) AutoDetect() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.autoDetect
}

// SelectProtocol pins the first decoder registered for v and disables
// auto-detection. It returns false without changing state if v is not registered.
func (a *Arbiter) SelectProtocol(v core.Vendor) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range a.entries {
		if e.decoder.Vendor() == v {
			a.autoDetect = false
			a.setActive(e.decoder)
			a.mode.fire(EventSelect)
			a.logger.Info("Protocol selected manually", "protocol", e.decoder.Name())
			return true
		}
	}

	a.logger.Info("Cannot select unregistered protocol", "vendor", v.String())
	return false
}

// SelectProtocolByName resolves name with core.ParseVendor and pins it.
func (a *Arbiter) SelectProtocolByName(name string) error {
	v, err := core.ParseVendor(name)
	if err != nil {
		return err
	}
	if !a.SelectProtocol(v) {
		return fmt.Errorf("%w: %s is not registered", core.ErrUnknownVendor, v)
	}
	return nil
}

// RouteFrame delivers one frame.
//
// While a decoder is pinned it alone sees the frames it accepts; anything
// else is dropped. Otherwise the first registered decoder that accepts the
// identifier parses it, and a successful parse counts towards promotion. The
// frame is never offered to a second decoder.
func (a *Arbiter) RouteFrame(id uint32, data []byte) bool {
	a.mu.Lock()

	if a.active != nil && !a.autoDetect {
		d := a.active
		if !d.Accepts(id) {
			a.mu.Unlock()
			metrics.FramesRouted.WithLabelValues(OutcomePinnedMismatch).Inc()
			return false
		}
		ok := d.Parse(id, data)
		a.mu.Unlock()
		a.recordOutcome(ok)
		return ok
	}

	for _, e := range a.entries {
		if !e.decoder.Accepts(id) {
			continue
		}

		var detected core.Decoder
		ok := e.decoder.Parse(id, data)
		if ok {
			e.stats.MatchCount++
			e.stats.LastMatch = a.clock.Now()
			metrics.ProtocolMatches.WithLabelValues(e.stats.Name).Inc()

			if a.active == nil && e.stats.MatchCount >= a.threshold {
				a.setActive(e.decoder)
				a.mode.fire(EventPromote)
				detected = e.decoder
			}
		}
		a.mu.Unlock()

		a.recordOutcome(ok)
		if detected != nil {
			a.announce(detected)
		}
		return true
	}

	a.mu.Unlock()
	metrics.FramesRouted.WithLabelValues(OutcomeUnclaimed).Inc()
	return false
}

// RouteCANFrame is RouteFrame for a transport frame.
func (a *Arbiter) RouteCANFrame(f core.Frame) bool {
	return a.RouteFrame(f.ID, f.Payload())
}

func (a *Arbiter) recordOutcome(ok bool) {
	if ok {
		metrics.FramesRouted.WithLabelValues(OutcomeParsed).Inc()
		return
	}
	metrics.FramesRouted.WithLabelValues(OutcomeRejected).Inc()
}

func (a *Arbiter) announce(d core.Decoder) {
	metrics.ProtocolDetections.WithLabelValues(d.Name()).Inc()
	a.logger.Info("Protocol auto-detected", "protocol", d.Name(), "vendor", d.Vendor().String())
	for _, h := range a.handlers {
		h(d)
	}
}

// setActive must be called with mu held.
func (a *Arbiter) setActive(d core.Decoder) {
	if a.active != nil {
		metrics.ActiveProtocol.WithLabelValues(a.active.Name()).Set(0)
	}
	a.active = d
	if d != nil {
		metrics.ActiveProtocol.WithLabelValues(d.Name()).Set(1)
	}
}

// Active returns the decoder feeding the snapshot, or nil.
func (a *Arbiter) Active() core.Decoder {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.active
}

// IsConnected reports the active decoder's liveness, or whether any decoder
// is live when none is active.
func (a *Arbiter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.active != nil {
		return a.active.IsConnected(a.freshness)
	}
	for _, e := range a.entries {
		if e.decoder.IsConnected(a.freshness) {
			return true
		}
	}
	return false
}

// Data returns the active decoder's snapshot, falling back to the first
// connected decoder when none is active.
func (a *Arbiter) Data() (core.Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.active != nil {
		return a.snapshotOf(a.active)
	}
	for _, e := range a.entries {
		if e.decoder.IsConnected(a.freshness) {
			if s, ok := a.snapshotOf(e.decoder); ok {
				return s, true
			}
		}
	}
	return core.Snapshot{}, false
}

func (a *Arbiter) snapshotOf(d core.Decoder) (core.Snapshot, bool) {
	s, _ := d.Data()
	s.Connected = d.IsConnected(a.freshness)
	return s, s.Connected
}

func (a *Arbiter) DecoderCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Decoders returns the registered decoders in registration order.
func (a *Arbiter) Decoders() []core.Decoder {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]core.Decoder, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.decoder)
	}
	return out
}

// Stats returns a copy of the detection statistics in registration order.
func (a *Arbiter) Stats() []DetectionStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]DetectionStats, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.stats)
	}
	return out
}

// ResetStats clears detection statistics and decoder counters, and drops the active decoder.
func (a *Arbiter) ResetStats() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, e := range a.entries {
		e.stats.MatchCount = 0
		e.stats.LastMatch = time.Time{}
		e.decoder.ResetStats()
	}
	a.setActive(nil)
	a.mode.fire(EventRelease)
	a.logger.Info("Protocol statistics reset")
}

// Mode returns the current arbitration state.
func (a *Arbiter) Mode() Mode {
	return a.mode.mode()
}
