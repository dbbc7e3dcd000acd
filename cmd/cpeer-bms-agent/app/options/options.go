package options

import (
	"fmt"
	"net/url"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent"
	"github.com/autopeer-io/autopeer-bms/pkg/app"
	"github.com/autopeer-io/autopeer-bms/pkg/log"
	"github.com/autopeer-io/autopeer-bms/pkg/options"
)

type AgentOptions struct {
	DeviceID string `json:"device-id" mapstructure:"device-id"`

	CanOptions  *options.CanOptions  `json:"can" mapstructure:"can"`
	MqttOptions *options.MqttOptions `json:"mqtt" mapstructure:"mqtt"`
	HttpOptions *options.HttpOptions `json:"http" mapstructure:"http"`
	GrpcOptions *options.GrpcOptions `json:"grpc" mapstructure:"grpc"`
	S3Options   *options.S3Options   `json:"s3" mapstructure:"s3"`
	Log         *log.Options         `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*AgentOptions)(nil)

func NewAgentOptions() *AgentOptions {
	return &AgentOptions{
		CanOptions:  options.NewCanOptions(),
		MqttOptions: options.NewMqttOptions(),
		HttpOptions: options.NewHttpOptions(),
		GrpcOptions: options.NewGrpcOptions(),
		S3Options:   options.NewS3Options(),
		Log:         log.NewOptions(),
	}
}

func (o *AgentOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fss.FlagSet("agent").StringVar(&o.DeviceID, "device-id", o.DeviceID,
		"Identity used in MQTT topics. Discovered from the environment when empty.")
	o.CanOptions.AddFlags(fss.FlagSet("can"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.GrpcOptions.AddFlags(fss.FlagSet("grpc"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *AgentOptions) Complete() error {
	return nil
}

func (o *AgentOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.CanOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.GrpcOptions.Validate()...)
	if o.usesS3() {
		errs = append(errs, o.S3Options.Validate()...)
	}
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

// usesS3 reports whether the CAN source replays a capture from object storage.
func (o *AgentOptions) usesS3() bool {
	u, err := url.Parse(o.CanOptions.Source)
	return err == nil && u.Scheme == "s3"
}

func (o *AgentOptions) Config() (*bmsagent.Config, error) {
	if o.CanOptions == nil {
		return nil, fmt.Errorf("missing CAN options")
	}
	return &bmsagent.Config{
		DeviceID:    o.DeviceID,
		CanOptions:  o.CanOptions,
		MqttOptions: o.MqttOptions,
		HttpOptions: o.HttpOptions,
		GrpcOptions: o.GrpcOptions,
		S3Options:   o.S3Options,
	}, nil
}
