package bmsagent

import (
	"fmt"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/arbiter"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/hub"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/protocol"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/server"
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/transport"
	"github.com/autopeer-io/autopeer-bms/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/autopeer-bms/pkg/log"
	"github.com/autopeer-io/autopeer-bms/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/autopeer-bms/pkg/mqtt/topic"
	"github.com/autopeer-io/autopeer-bms/pkg/options"
)

type Config struct {
	// DeviceID overrides DiscoverDeviceID.
	DeviceID string

	CanOptions  *options.CanOptions
	MqttOptions *options.MqttOptions
	HttpOptions *options.HttpOptions
	GrpcOptions *options.GrpcOptions
	S3Options   *options.S3Options
}

// decoderFactories maps each vendor with a wire decoder to its constructor.
var decoderFactories = map[core.Vendor]func(...protocol.Option) core.Decoder{
	core.VendorPylontech: func(o ...protocol.Option) core.Decoder { return protocol.NewPylontech(o...) },
	core.VendorDALY:      func(o ...protocol.Option) core.Decoder { return protocol.NewDaly(o...) },
	core.VendorJKBMS:     func(o ...protocol.Option) core.Decoder { return protocol.NewJKBMS(o...) },
}

// NewDecoders builds one decoder per vendor name, keeping the order given.
func NewDecoders(names []string, opts ...protocol.Option) ([]core.Decoder, error) {
	decoders := make([]core.Decoder, 0, len(names))
	seen := make(map[core.Vendor]bool, len(names))

	for _, name := range names {
		v, err := core.ParseVendor(name)
		if err != nil {
			return nil, err
		}
		factory, ok := decoderFactories[v]
		if !ok {
			return nil, fmt.Errorf("no CAN decoder available for %s", v)
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		decoders = append(decoders, factory(opts...))
	}

	return decoders, nil
}

func (cfg *Config) NewAgent() (*Agent, error) {
	if cfg.CanOptions == nil {
		return nil, fmt.Errorf("CAN options are required")
	}

	did := cfg.DeviceID
	if did == "" {
		did = DiscoverDeviceID()
	}
	logger := log.Std().Logr()

	a := &Agent{
		deviceID: did,
		opts:     cfg.CanOptions,
	}

	decoders, err := NewDecoders(cfg.CanOptions.Vendors, protocol.WithLogger(logger.WithName("protocol")))
	if err != nil {
		return nil, err
	}
	a.arbiter = arbiter.New(
		arbiter.WithThreshold(cfg.CanOptions.Threshold),
		arbiter.WithFreshness(cfg.CanOptions.Freshness),
		arbiter.WithLogger(logger.WithName("arbiter")),
		arbiter.WithDetectionHandler(a.onDetected),
	)
	for _, d := range decoders {
		if err := a.arbiter.Register(d); err != nil {
			return nil, fmt.Errorf("failed to register %s decoder: %w", d.Name(), err)
		}
	}

	source, err := transport.NewSource(transport.SourceConfig{
		URL:      cfg.CanOptions.Source,
		Realtime: cfg.CanOptions.Realtime,
		Loop:     cfg.CanOptions.Loop,
		S3:       cfg.S3Options,
		Logger:   logger.WithName("transport"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open CAN source: %w", err)
	}
	a.pump = transport.NewPump(source, a.arbiter.RouteCANFrame, cfg.CanOptions.QueueSize, logger.WithName("pump"))

	if cfg.MqttOptions != nil && cfg.MqttOptions.Enabled {
		mqttClient, topicBuilder, err := cfg.initMqttClientAndTopicBuilder(did)
		if err != nil {
			return nil, fmt.Errorf("failed to init mqtt client: %w", err)
		}
		a.hub = hub.New(did, mqttClient, topicBuilder, a.arbiter, cfg.MqttOptions.PublishInterval)
	}

	a.servers = server.NewManager(cfg.HttpOptions, cfg.GrpcOptions, a.arbiter)

	return a, nil
}

func (cfg *Config) initMqttClientAndTopicBuilder(did string) (mqtt.Client, *mqtttopic.Builder, error) {
	topicBuilder := mqtttopic.NewBuilder(cfg.MqttOptions.TopicRoot)

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("cpeer-bms-%s", did)
	}

	mqttConfig.WillTopic = topicBuilder.Build(paths.Online, did)
	mqttConfig.WillPayload = hub.OnlineWill(did)
	mqttConfig.WillQoS = 1
	mqttConfig.WillRetain = true

	mqttClient, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, nil, err
	}

	return mqttClient, topicBuilder, nil
}
