package options

import (
	"strings"
	"testing"
)

func TestAgentOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *AgentOptions)
		wantErr string
	}{
		{"defaults", func(*AgentOptions) {}, ""},
		{"s3 ignored for live source", func(o *AgentOptions) { o.S3Options.Endpoint = "" }, ""},
		{"s3 checked for s3 source", func(o *AgentOptions) {
			o.CanOptions.Source = "s3://captures/pack.log"
			o.S3Options.Endpoint = ""
		}, "endpoint"},
		{"mqtt disabled skips broker", func(o *AgentOptions) {
			o.MqttOptions.Enabled = false
			o.MqttOptions.Broker = "::"
		}, ""},
		{"bad broker", func(o *AgentOptions) { o.MqttOptions.Broker = "localhost" }, "--mqtt.broker"},
		{"bad protocol", func(o *AgentOptions) { o.CanOptions.Protocol = "victron" }, "victron"},
		{"bad log level", func(o *AgentOptions) { o.Log.Level = "loud" }, "--log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewAgentOptions()
			tt.mutate(o)
			err := o.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAgentOptionsConfig(t *testing.T) {
	o := NewAgentOptions()
	o.DeviceID = "pack-01"

	cfg, err := o.Config()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DeviceID != "pack-01" || cfg.CanOptions != o.CanOptions || cfg.S3Options != o.S3Options {
		t.Errorf("Config() = %+v", cfg)
	}
}

func TestFlagsCoverEverySection(t *testing.T) {
	fss := NewAgentOptions().Flags()
	for _, name := range []string{"device-id", "can.source", "mqtt.broker", "http.addr", "grpc.addr", "s3.endpoint", "log.level"} {
		found := false
		for _, fs := range fss.FlagSets {
			if fs.Lookup(name) != nil {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("flag --%s is not registered", name)
		}
	}
}
