package arbiter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/protocol"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	clock     *clocktesting.FakePassiveClock
	arbiter   *Arbiter
	pylontech *protocol.Pylontech
	daly      *protocol.Daly
	jk        *protocol.JKBMS
	detected  []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{clock: clocktesting.NewFakePassiveClock(epoch)}
	f.arbiter = New(
		WithClock(f.clock),
		WithDetectionHandler(func(d core.Decoder) { f.detected = append(f.detected, d.Name()) }),
	)
	f.pylontech = protocol.NewPylontech(protocol.WithClock(f.clock))
	f.daly = protocol.NewDaly(protocol.WithClock(f.clock))
	f.jk = protocol.NewJKBMS(protocol.WithClock(f.clock))

	for _, d := range []core.Decoder{f.pylontech, f.daly, f.jk} {
		if err := f.arbiter.Register(d); err != nil {
			t.Fatalf("Register(%s): %v", d.Name(), err)
		}
	}
	if !f.arbiter.InitializeAll() || !f.arbiter.StartAll() {
		t.Fatal("lifecycle fan-out failed")
	}
	return f
}

func dalyVoltage(raw uint16) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint16(out, raw)
	return out
}

func jkVoltage(mv uint32) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out, mv)
	return out
}

func (f *fixture) sendDaly(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if !f.arbiter.RouteFrame(protocol.DalyVoltageID, dalyVoltage(5200)) {
			t.Fatalf("DALY frame %d not routed", i)
		}
	}
}

func (f *fixture) sendJK(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if !f.arbiter.RouteFrame(protocol.JKBaseID|protocol.JKMsgVoltage, jkVoltage(51000)) {
			t.Fatalf("JK frame %d not routed", i)
		}
	}
}

func matchCount(a *Arbiter, v core.Vendor) uint32 {
	for _, s := range a.Stats() {
		if s.Vendor == v {
			return s.MatchCount
		}
	}
	return 0
}

func TestDetectionThreshold(t *testing.T) {
	f := newFixture(t)

	for i := 1; i <= 4; i++ {
		f.sendDaly(t, 1)
		if f.arbiter.Active() != nil {
			t.Fatalf("decoder promoted after %d frames", i)
		}
		if f.arbiter.Mode() != ModeDetecting {
			t.Fatalf("mode = %s after %d frames", f.arbiter.Mode(), i)
		}
	}

	f.sendDaly(t, 1)
	if f.arbiter.Active() != core.Decoder(f.daly) {
		t.Fatalf("active = %v after 5th frame, want DALY", f.arbiter.Active())
	}
	if f.arbiter.Mode() != ModeDetected {
		t.Errorf("mode = %s, want %s", f.arbiter.Mode(), ModeDetected)
	}

	f.sendDaly(t, 3)
	if len(f.detected) != 1 || f.detected[0] != f.daly.Name() {
		t.Errorf("detection events = %v, want exactly one for DALY", f.detected)
	}
	if got := matchCount(f.arbiter, core.VendorDALY); got != 8 {
		t.Errorf("match count = %d, want 8", got)
	}
}

func TestMatchCountsAreCumulative(t *testing.T) {
	f := newFixture(t)

	f.sendDaly(t, 4)
	f.sendJK(t, 4)
	if f.arbiter.Active() != nil {
		t.Fatal("no decoder should be active yet")
	}

	f.sendDaly(t, 1)
	if f.arbiter.Active() != core.Decoder(f.daly) {
		t.Fatalf("active = %v, want DALY", f.arbiter.Active())
	}
	if got := matchCount(f.arbiter, core.VendorJKBMS); got != 4 {
		t.Errorf("JK match count = %d, want 4", got)
	}

	// JK keeps counting but cannot displace the active decoder.
	f.sendJK(t, 10)
	if f.arbiter.Active() != core.Decoder(f.daly) {
		t.Errorf("active changed to %v", f.arbiter.Active())
	}
}

func TestResetStatsRestartsArbitration(t *testing.T) {
	f := newFixture(t)

	f.sendDaly(t, 4)
	f.arbiter.ResetStats()
	f.sendDaly(t, 1)
	if f.arbiter.Active() != nil {
		t.Fatal("promoted with stale counts after ResetStats")
	}
	if got := matchCount(f.arbiter, core.VendorDALY); got != 1 {
		t.Errorf("match count = %d, want 1", got)
	}
	if msgs, _ := f.daly.Stats(); msgs != 1 {
		t.Errorf("decoder message count = %d, want 1", msgs)
	}

	f.sendDaly(t, 4)
	f.arbiter.ResetStats()
	if f.arbiter.Active() != nil {
		t.Error("ResetStats did not clear the active decoder")
	}
}

func TestPinnedModeIsolation(t *testing.T) {
	f := newFixture(t)

	if !f.arbiter.SelectProtocol(core.VendorDALY) {
		t.Fatal("SelectProtocol(DALY) failed")
	}
	if f.arbiter.AutoDetect() {
		t.Error("auto-detect still enabled")
	}
	if f.arbiter.Mode() != ModePinned {
		t.Errorf("mode = %s, want pinned", f.arbiter.Mode())
	}

	f.sendDaly(t, 1)
	before, _ := f.daly.Data()

	for i := 0; i < 10; i++ {
		if f.arbiter.RouteFrame(protocol.JKBaseID|protocol.JKMsgVoltage, jkVoltage(51000)) {
			t.Fatal("JK frame routed while DALY is pinned")
		}
	}
	if f.arbiter.RouteFrame(protocol.PylontechVoltageID, dalyVoltage(5000)) {
		t.Fatal("Pylontech frame routed while DALY is pinned")
	}

	after, _ := f.daly.Data()
	if before != after {
		t.Errorf("DALY snapshot changed:\n%+v\n%+v", before, after)
	}
	if msgs, errs := f.jk.Stats(); msgs != 0 || errs != 0 {
		t.Errorf("JK decoder saw frames: %d/%d", msgs, errs)
	}
	if got := matchCount(f.arbiter, core.VendorJKBMS); got != 0 {
		t.Errorf("JK match count = %d, want 0", got)
	}

	// Pinned frames go straight to the decoder and return its verdict.
	if f.arbiter.RouteFrame(protocol.DalyVoltageID, dalyVoltage(3000)) {
		t.Error("out of range DALY frame reported as parsed")
	}
}

func TestSelectUnregisteredProtocol(t *testing.T) {
	f := newFixture(t)

	if f.arbiter.SelectProtocol(core.VendorSeplos) {
		t.Fatal("SelectProtocol(Seplos) succeeded without a Seplos decoder")
	}
	if !f.arbiter.AutoDetect() || f.arbiter.Active() != nil {
		t.Error("failed selection changed state")
	}

	if err := f.arbiter.SelectProtocolByName("eve"); !errors.Is(err, core.ErrUnknownVendor) {
		t.Errorf("SelectProtocolByName(eve) = %v, want ErrUnknownVendor", err)
	}
	if err := f.arbiter.SelectProtocolByName("jk"); err != nil {
		t.Errorf("SelectProtocolByName(jk) = %v", err)
	}
	if f.arbiter.Active() != core.Decoder(f.jk) {
		t.Errorf("active = %v, want JK", f.arbiter.Active())
	}
}

func TestSetAutoDetect(t *testing.T) {
	f := newFixture(t)

	f.arbiter.SelectProtocol(core.VendorDALY)
	f.arbiter.SetAutoDetect(true)
	if f.arbiter.Active() != nil {
		t.Fatal("SetAutoDetect(true) kept the pinned decoder")
	}
	if f.arbiter.Mode() != ModeDetecting {
		t.Errorf("mode = %s, want detecting", f.arbiter.Mode())
	}

	// Stale counts survive: the next good DALY frame re-promotes immediately.
	f.arbiter.ResetStats()
	f.sendDaly(t, 5)
	f.arbiter.SetAutoDetect(true)
	f.sendDaly(t, 1)
	if f.arbiter.Active() != core.Decoder(f.daly) {
		t.Errorf("active = %v, want DALY re-promoted", f.arbiter.Active())
	}

	// Turning auto-detect off freezes the active decoder.
	f.arbiter.SetAutoDetect(false)
	if f.arbiter.Active() != core.Decoder(f.daly) || f.arbiter.Mode() != ModePinned {
		t.Errorf("freeze: active = %v mode = %s", f.arbiter.Active(), f.arbiter.Mode())
	}
}

func TestStandbyPromotesToPinned(t *testing.T) {
	f := newFixture(t)

	f.arbiter.SetAutoDetect(false)
	if f.arbiter.Mode() != ModeStandby {
		t.Fatalf("mode = %s, want standby", f.arbiter.Mode())
	}

	f.sendJK(t, 5)
	if f.arbiter.Active() != core.Decoder(f.jk) {
		t.Fatalf("active = %v, want JK", f.arbiter.Active())
	}
	if f.arbiter.Mode() != ModePinned {
		t.Errorf("mode = %s, want pinned", f.arbiter.Mode())
	}
	if f.arbiter.RouteFrame(protocol.DalyVoltageID, dalyVoltage(5200)) {
		t.Error("DALY frame routed after JK was pinned from standby")
	}
}

func TestRegisterNil(t *testing.T) {
	a := New()
	if err := a.Register(nil); !errors.Is(err, core.ErrNilDecoder) {
		t.Errorf("Register(nil) = %v, want ErrNilDecoder", err)
	}
	if a.DecoderCount() != 0 {
		t.Errorf("DecoderCount = %d", a.DecoderCount())
	}
}

func TestUnclaimedFrame(t *testing.T) {
	f := newFixture(t)
	if f.arbiter.RouteFrame(0x123, make([]byte, 8)) {
		t.Error("frame with no accepting decoder reported as routed")
	}
	for _, d := range f.arbiter.Decoders() {
		if msgs, errs := d.Stats(); msgs != 0 || errs != 0 {
			t.Errorf("%s counted an unclaimed frame: %d/%d", d.Name(), msgs, errs)
		}
	}
}

func TestFirstAcceptingDecoderWins(t *testing.T) {
	first := &fakeDecoder{name: "first", vendor: core.VendorSeplos, ids: []uint32{0x100}, parseOK: false}
	second := &fakeDecoder{name: "second", vendor: core.VendorEVE, ids: []uint32{0x100}, parseOK: true}

	a := New()
	_ = a.Register(first)
	_ = a.Register(second)

	if !a.RouteFrame(0x100, make([]byte, 8)) {
		t.Fatal("RouteFrame should report true once a decoder accepted the frame")
	}
	if first.parsed != 1 || second.parsed != 0 {
		t.Errorf("parse calls first=%d second=%d, want 1/0", first.parsed, second.parsed)
	}
	if got := matchCount(a, core.VendorSeplos); got != 0 {
		t.Errorf("failed parse counted as a match: %d", got)
	}
}

func TestLifecycleDoesNotShortCircuit(t *testing.T) {
	failing := &fakeDecoder{name: "failing", vendor: core.VendorSeplos, initFails: true}
	healthy := &fakeDecoder{name: "healthy", vendor: core.VendorEVE}

	a := New()
	_ = a.Register(failing)
	_ = a.Register(healthy)

	if a.InitializeAll() {
		t.Error("InitializeAll reported success with a failing decoder")
	}
	if failing.inits != 1 || healthy.inits != 1 {
		t.Errorf("init calls = %d/%d, want 1/1", failing.inits, healthy.inits)
	}

	a.SelectProtocol(core.VendorEVE)
	if !a.StopAll() || !a.StopAll() {
		t.Error("StopAll failed")
	}
	if healthy.stops != 2 || a.Active() != nil {
		t.Errorf("stops = %d active = %v", healthy.stops, a.Active())
	}
}

func TestConnectivityAndDataFallback(t *testing.T) {
	f := newFixture(t)

	if f.arbiter.IsConnected() {
		t.Fatal("connected before any frame")
	}
	if _, ok := f.arbiter.Data(); ok {
		t.Fatal("Data() ok before any frame")
	}

	f.sendJK(t, 2)
	if !f.arbiter.IsConnected() {
		t.Fatal("expected connected through fallback")
	}
	snap, ok := f.arbiter.Data()
	if !ok || snap.Vendor != core.VendorJKBMS || snap.Voltage != 51 {
		t.Fatalf("fallback Data() = %+v, %v", snap, ok)
	}

	first, _ := f.arbiter.Data()
	second, _ := f.arbiter.Data()
	if first != second {
		t.Error("Data() not idempotent")
	}

	f.clock.SetTime(epoch.Add(core.DefaultFreshness))
	if f.arbiter.IsConnected() {
		t.Error("still connected after the freshness window elapsed")
	}
	if snap, ok := f.arbiter.Data(); ok || snap.Connected {
		t.Error("stale data reported as connected")
	}
}

func TestReports(t *testing.T) {
	f := newFixture(t)
	f.sendDaly(t, 5)
	f.arbiter.RouteFrame(protocol.DalyVoltageID, []byte{1, 2})

	var buf bytes.Buffer
	if err := f.arbiter.WriteDetectionStats(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "DALY BMS CAN") || !strings.Contains(out, "[ACTIVE]") || !strings.Contains(out, "mode: detected") {
		t.Errorf("unexpected detection stats:\n%s", out)
	}

	buf.Reset()
	if err := f.arbiter.WriteProtocolInfo(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "CONNECTED") {
		t.Errorf("unexpected protocol info:\n%s", buf.String())
	}

	infos := f.arbiter.Protocols()
	if len(infos) != 3 {
		t.Fatalf("Protocols() returned %d entries", len(infos))
	}
	daly := infos[1]
	if !daly.Active || daly.Matches != 5 || daly.Messages != 5 || daly.Errors != 1 || daly.LastError == "" {
		t.Errorf("DALY info = %+v", daly)
	}
}

type fakeDecoder struct {
	name      string
	vendor    core.Vendor
	ids       []uint32
	parseOK   bool
	initFails bool

	parsed int
	inits  int
	stops  int
}

func (d *fakeDecoder) Name() string { return d.name }
func (d *fakeDecoder) Vendor() core.Vendor { return d.vendor }

func (d *fakeDecoder) Accepts(id uint32) bool {
	for _, v := range d.ids {
		if v == id {
			return true
		}
	}
	return false
}

func (d *fakeDecoder) Parse(uint32, []byte) bool {
	d.parsed++
	return d.parseOK
}

func (d *fakeDecoder) Initialize() bool {
	d.inits++
	return !d.initFails
}

func (d *fakeDecoder) Start() bool { return true }

func (d *fakeDecoder) Stop() bool {
	d.stops++
	return true
}

func (d *fakeDecoder) IsConnected(time.Duration) bool { return false }
func (d *fakeDecoder) Data() (core.Snapshot, bool) { return core.Snapshot{Vendor: d.vendor}, false }
func (d *fakeDecoder) DataAge() time.Duration { return 0 }
func (d *fakeDecoder) Stats() (uint32, uint32) { return uint32(d.parsed), 0 }
func (d *fakeDecoder) ResetStats() {}
func (d *fakeDecoder) LastError() error { return nil }
