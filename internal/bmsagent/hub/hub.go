package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/arbiter"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
	"github.com/autopeer-io/autopeer-bms/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/autopeer-bms/pkg/log"
	"github.com/autopeer-io/autopeer-bms/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/autopeer-bms/pkg/mqtt/topic"
)

// DefaultInterval is how often the snapshot is published.
const DefaultInterval = time.Second

// Controller is the part of the arbiter the hub reads from and steers.
type Controller interface {
	Data() (core.Snapshot, bool)
	Active() core.Decoder
	Mode() arbiter.Mode
	SetAutoDetect(enabled bool)
	SelectProtocolByName(name string) error
	ResetStats()
}

// Hub publishes battery state over MQTT and applies commands received on the
// command topic.
type Hub struct {
	did      string
	interval time.Duration
	clock    clock.WithTicker

	mc     mqtt.Client
	topics *mqtttopic.Builder
	ctrl   Controller

	detections chan Detection
}

func New(did string, client mqtt.Client, topicbuilder *mqtttopic.Builder, ctrl Controller, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Hub{
		did:        did,
		interval:   interval,
		clock:      clock.RealClock{},
		mc:         client,
		topics:     topicbuilder,
		ctrl:       ctrl,
		detections: make(chan Detection, 4),
	}
}

// OnlineWill returns the last will the MQTT client should register so the
// broker reports the device offline if the agent disappears.
func OnlineWill(did string) []byte {
	payload, _ := json.Marshal(OnlineStatus{DeviceID: did, Online: false, Reason: "UnexpectedDisconnect"})
	return payload
}

func (h *Hub) IsConnected() bool {
	return h.mc.IsConnected()
}

// Announce queues a detection for publishing. It never blocks, so it is safe
// to register as an arbiter detection handler on the frame path.
func (h *Hub) Announce(d core.Decoder) {
	det := Detection{
		DeviceID:  h.did,
		Protocol:  d.Name(),
		Vendor:    d.Vendor(),
		Timestamp: h.clock.Now(),
	}
	select {
	case h.detections <- det:
	default:
		log.Warn("Detection queue full, dropping announcement", "protocol", det.Protocol)
	}
}

// Start connects, marks the device online and subscribes to commands.
func (h *Hub) Start(ctx context.Context) error {
	if err := h.mc.Start(ctx); err != nil {
		return err
	}
	if err := h.mc.AwaitConnection(ctx); err != nil {
		return err
	}

	if err := h.send(ctx, paths.Online, 1, true, OnlineStatus{DeviceID: h.did, Online: true}); err != nil {
		return fmt.Errorf("failed to publish online status: %w", err)
	}

	cmdTopic := h.topics.Build(paths.Command, h.did)
	if err := h.mc.Subscribe(ctx, cmdTopic, 1, h.handleCommand); err != nil {
		return err
	}

	log.Info("Hub started", "deviceID", h.did, "interval", h.interval)
	return nil
}

// Run starts the hub and publishes until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	if err := h.Start(ctx); err != nil {
		return err
	}
	defer h.Stop()

	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case det := <-h.detections:
			if err := h.send(ctx, paths.Detected, 1, false, det); err != nil {
				log.Error(err, "Failed to publish detection", "protocol", det.Protocol)
			}
		case <-ticker.C():
			if err := h.PublishSnapshot(ctx); err != nil {
				log.Debug("Snapshot not published", "err", err.Error())
			}
		}
	}
}

// PublishSnapshot publishes the current snapshot, fresh or not.
func (h *Hub) PublishSnapshot(ctx context.Context) error {
	s, _ := h.ctrl.Data()
	msg := SnapshotMessage{
		DeviceID: h.did,
		Mode:     string(h.ctrl.Mode()),
		Snapshot: s,
	}
	if d := h.ctrl.Active(); d != nil {
		msg.Protocol = d.Name()
	}
	return h.send(ctx, paths.Snapshot, 0, false, msg)
}

// Stop marks the device offline and disconnects.
func (h *Hub) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.send(ctx, paths.Online, 1, true, OnlineStatus{DeviceID: h.did, Online: false, Reason: "Shutdown"}); err != nil {
		log.Warn("Failed to publish offline status", "err", err.Error())
	}
	log.Info("Disconnecting MQTT client...")
	h.mc.Disconnect(ctx)
}

func (h *Hub) send(ctx context.Context, segment string, qos int, retain bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.mc.Publish(ctx, h.topics.Build(segment, h.did), qos, retain, payload)
}
