package protocol

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
)

// Plausibility bounds shared by every vendor.
var (
	voltageRange     = bounds{40, 60}
	socRange         = bounds{0, 100}
	temperatureRange = bounds{-20, 60}
	cellRange        = bounds{1, 5}
)

type bounds struct{ lo, hi float64 }

// Option configures a decoder at construction time.
type Option func(*base)

// WithClock replaces the wall clock used for freshness checks.
func WithClock(c clock.PassiveClock) Option {
	return func(b *base) { b.clock = c }
}

func WithLogger(l logr.Logger) Option {
	return func(b *base) { b.logger = l }
}

// base carries the bookkeeping every decoder shares: snapshot ownership,
// connectivity and counters. Vendor types embed it and only add decoding.
type base struct {
	name   string
	vendor core.Vendor
	clock  clock.PassiveClock
	logger logr.Logger

	mu         sync.RWMutex
	snapshot   core.Snapshot
	lastUpdate time.Time
	connected  bool
	messages   uint32
	errors     uint32
	lastErr    error
}

func (b *base) init(name string, vendor core.Vendor, opts []Option) {
	b.name = name
	b.vendor = vendor
	b.clock = clock.RealClock{}
	b.logger = logr.Discard()
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.WithValues("protocol", name)
}

func (b *base) Name() string        { return b.name }
func (b *base) Vendor() core.Vendor { return b.vendor }

// Initialize resets connectivity, counters and the snapshot, then stamps the vendor tag.
func (b *base) Initialize() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
	b.logger.V(1).Info("Protocol initialized")
	return true
}

// reset must be called with mu held.
func (b *base) reset() {
	b.snapshot = core.Snapshot{Vendor: b.vendor}
	b.lastUpdate = time.Time{}
	b.connected = false
	b.messages = 0
	b.errors = 0
	b.lastErr = nil
}

func (b *base) Start() bool {
	b.logger.V(1).Info("Protocol started")
	return true
}

func (b *base) Stop() bool {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	b.logger.V(1).Info("Protocol stopped")
	return true
}

func (b *base) IsConnected(window time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isConnected(window)
}

func (b *base) isConnected(window time.Duration) bool {
	if !b.connected || b.lastUpdate.IsZero() {
		return false
	}
	return b.clock.Since(b.lastUpdate) < window
}

func (b *base) Data() (core.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.snapshot
	s.Connected = b.isConnected(core.DefaultFreshness)
	s.LastUpdate = b.lastUpdate
	return s, s.Connected
}

func (b *base) DataAge() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastUpdate.IsZero() {
		return 0
	}
	return b.clock.Since(b.lastUpdate)
}

func (b *base) Stats() (messages, errors uint32) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.messages, b.errors
}

func (b *base) ResetStats() {
	b.mu.Lock()
	b.messages = 0
	b.errors = 0
	b.lastErr = nil
	b.mu.Unlock()
}

func (b *base) LastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastErr
}

// finish records the outcome of one Parse call. Exactly one of the two
// counters moves per frame. Must be called with mu held.
func (b *base) finish(id uint32, err error) bool {
	if err != nil {
		b.errors++
		b.lastErr = fmt.Errorf("frame 0x%X: %w", id, err)
		b.logger.V(2).Info("Frame rejected", "id", id, "reason", err.Error())
		return false
	}
	b.lastUpdate = b.clock.Now()
	b.connected = true
	b.messages++
	return true
}

func checkLength(data []byte) error {
	if len(data) < core.MinFrameLength {
		return fmt.Errorf("%w: %d bytes", core.ErrFrameTooShort, len(data))
	}
	return nil
}

// The setters below leave the previous value in place when the new one is implausible.

func (b *base) setVoltage(v float64) error {
	if !InRange(v, voltageRange.lo, voltageRange.hi) {
		return fmt.Errorf("voltage %.2f V: %w", v, core.ErrOutOfRange)
	}
	b.snapshot.Voltage = v
	return nil
}

func (b *base) setSOC(v float64) error {
	if !InRange(v, socRange.lo, socRange.hi) {
		return fmt.Errorf("soc %.1f %%: %w", v, core.ErrOutOfRange)
	}
	b.snapshot.SOC = v
	return nil
}

func (b *base) setTemperature(v float64) error {
	if !InRange(v, temperatureRange.lo, temperatureRange.hi) {
		return fmt.Errorf("temperature %.1f C: %w", v, core.ErrOutOfRange)
	}
	b.snapshot.Temperature = v
	return nil
}

func (b *base) setCellRange(lo, hi float64) error {
	if !InRange(lo, cellRange.lo, cellRange.hi) || !InRange(hi, cellRange.lo, cellRange.hi) || lo > hi {
		return fmt.Errorf("cell voltages %.3f..%.3f V: %w", lo, hi, core.ErrOutOfRange)
	}
	b.snapshot.CellVoltageMin = lo
	b.snapshot.CellVoltageMax = hi
	return nil
}
