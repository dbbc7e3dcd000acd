package hub

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/arbiter"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/protocol"
	"github.com/autopeer-io/autopeer-bms/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/autopeer-bms/pkg/mqtt/topic"
)

type published struct {
	topic   string
	qos     int
	retain  bool
	payload []byte
}

type fakeClient struct {
	mu           sync.Mutex
	pubs         []published
	subs         map[string]mqtt.MessageHandler
	disconnected bool
}

var _ mqtt.Client = (*fakeClient)(nil)

func newFakeClient() *fakeClient {
	return &fakeClient{subs: map[string]mqtt.MessageHandler{}}
}

func (c *fakeClient) Start(context.Context) error           { return nil }
func (c *fakeClient) AwaitConnection(context.Context) error { return nil }
func (c *fakeClient) IsConnected() bool                     { return true }
func (c *fakeClient) Unsubscribe(context.Context, string) error {
	return nil
}

func (c *fakeClient) Disconnect(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) Publish(_ context.Context, topic string, qos int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pubs = append(c.pubs, published{topic: topic, qos: qos, retain: retain, payload: payload})
	return nil
}

func (c *fakeClient) Subscribe(_ context.Context, topic string, _ int, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[topic] = handler
	return nil
}

func (c *fakeClient) on(topic string) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, p := range c.pubs {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

type fixture struct {
	client  *fakeClient
	arbiter *arbiter.Arbiter
	hub     *Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	a := arbiter.New()
	if err := a.Register(protocol.NewPylontech()); err != nil {
		t.Fatal(err)
	}
	if err := a.Register(protocol.NewDaly()); err != nil {
		t.Fatal(err)
	}
	c := newFakeClient()
	return &fixture{
		client:  c,
		arbiter: a,
		hub:     New("pack-01", c, mqtttopic.NewBuilder("bms/v1"), a, 5*time.Millisecond),
	}
}

func decode[T any](t *testing.T, p published) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(p.payload, &v); err != nil {
		t.Fatalf("unmarshal %s: %v", p.payload, err)
	}
	return v
}

func TestStartPublishesOnlineAndSubscribes(t *testing.T) {
	f := newFixture(t)
	if err := f.hub.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	online := f.client.on("bms/v1/online/pack-01")
	if len(online) != 1 || !online[0].retain {
		t.Fatalf("online publishes = %+v, want one retained", online)
	}
	if s := decode[OnlineStatus](t, online[0]); !s.Online || s.DeviceID != "pack-01" {
		t.Errorf("online status = %+v", s)
	}
	if _, ok := f.client.subs["bms/v1/command/pack-01"]; !ok {
		t.Errorf("command topic not subscribed: %v", f.client.subs)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		success  bool
		wantMode arbiter.Mode
	}{
		{"select", `{"id":"1","action":"select","vendor":"DALY"}`, true, arbiter.ModePinned},
		{"select unregistered", `{"action":"select","vendor":"Seplos"}`, false, arbiter.ModeDetecting},
		{"select unknown", `{"action":"select","vendor":"acme"}`, false, arbiter.ModeDetecting},
		{"auto off", `{"action":"auto","enabled":false}`, true, arbiter.ModeStandby},
		{"auto missing flag", `{"action":"auto"}`, false, arbiter.ModeDetecting},
		{"reset", `{"action":"reset"}`, true, arbiter.ModeDetecting},
		{"unknown action", `{"action":"reboot"}`, false, arbiter.ModeDetecting},
		{"malformed", `{"action":`, false, arbiter.ModeDetecting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.hub.handleCommand(context.Background(), "bms/v1/command/pack-01", []byte(tt.payload))

			acks := f.client.on("bms/v1/command/ack/pack-01")
			if len(acks) != 1 {
				t.Fatalf("got %d acks, want 1", len(acks))
			}
			ack := decode[CommandAck](t, acks[0])
			if ack.Success != tt.success {
				t.Errorf("ack.Success = %v (%s), want %v", ack.Success, ack.Error, tt.success)
			}
			if !tt.success && ack.Error == "" {
				t.Error("failed ack carries no error")
			}
			if got := f.arbiter.Mode(); got != tt.wantMode {
				t.Errorf("Mode() = %s, want %s", got, tt.wantMode)
			}
			if ack.Mode != string(tt.wantMode) {
				t.Errorf("ack.Mode = %s, want %s", ack.Mode, tt.wantMode)
			}
		})
	}
}

func TestCommandAckEchoesID(t *testing.T) {
	f := newFixture(t)
	f.hub.handleCommand(context.Background(), "", []byte(`{"id":"42","action":"reset"}`))
	ack := decode[CommandAck](t, f.client.on("bms/v1/command/ack/pack-01")[0])
	if ack.ID != "42" || ack.Action != ActionReset {
		t.Errorf("ack = %+v", ack)
	}
}

func TestPublishSnapshot(t *testing.T) {
	f := newFixture(t)
	if !f.arbiter.SelectProtocol(protocol.NewDaly().Vendor()) {
		t.Fatal("select DALY failed")
	}
	if err := f.hub.PublishSnapshot(context.Background()); err != nil {
		t.Fatal(err)
	}

	pubs := f.client.on("bms/v1/snapshot/pack-01")
	if len(pubs) != 1 || pubs[0].retain {
		t.Fatalf("snapshot publishes = %+v", pubs)
	}
	msg := decode[SnapshotMessage](t, pubs[0])
	if msg.DeviceID != "pack-01" || msg.Protocol != "DALY BMS CAN" || msg.Mode != string(arbiter.ModePinned) {
		t.Errorf("snapshot = %+v", msg)
	}
	if msg.Connected {
		t.Error("snapshot connected without any frames")
	}
}

func TestAnnounceNeverBlocks(t *testing.T) {
	f := newFixture(t)
	d := protocol.NewDaly()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			f.hub.Announce(d)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Announce blocked")
	}
	if got := len(f.hub.detections); got != cap(f.hub.detections) {
		t.Errorf("queued %d detections, want %d", got, cap(f.hub.detections))
	}
}

func TestRunPublishesAndGoesOffline(t *testing.T) {
	f := newFixture(t)
	f.hub.Announce(protocol.NewDaly())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.hub.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(f.client.on("bms/v1/snapshot/pack-01")) == 0 || len(f.client.on("bms/v1/detected/pack-01")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no snapshot or detection published")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("Run() = %v", err)
	}

	online := f.client.on("bms/v1/online/pack-01")
	last := decode[OnlineStatus](t, online[len(online)-1])
	if last.Online || last.Reason != "Shutdown" {
		t.Errorf("last online status = %+v, want offline", last)
	}
	f.client.mu.Lock()
	defer f.client.mu.Unlock()
	if !f.client.disconnected {
		t.Error("client not disconnected")
	}
}

func TestOnlineWill(t *testing.T) {
	var s OnlineStatus
	if err := json.Unmarshal(OnlineWill("pack-01"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Online || s.DeviceID != "pack-01" || s.Reason == "" {
		t.Errorf("will = %+v", s)
	}
}
