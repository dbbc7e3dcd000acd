package options

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
)

var _ IOptions = (*CanOptions)(nil)

// ProtocolAuto selects auto-detection instead of a pinned vendor.
const ProtocolAuto = "auto"

// CanOptions contains configuration for the CAN input and protocol arbitration.
type CanOptions struct {
	// Source selects where frames come from: socketcan://can0, file:///path/capture.log
	// or s3://bucket/key.
	Source string `json:"source" mapstructure:"source"`

	// Baudrate is informational for SocketCAN; the interface bitrate is set by the OS.
	Baudrate string `json:"baudrate" mapstructure:"baudrate"`

	// Protocol is "auto" or a vendor name to pin at startup.
	Protocol string `json:"protocol" mapstructure:"protocol"`

	// Vendors lists the decoders to register, in precedence order.
	Vendors []string `json:"vendors" mapstructure:"vendors"`

	Threshold uint32        `json:"threshold" mapstructure:"threshold"`
	Freshness time.Duration `json:"freshness" mapstructure:"freshness"`
	QueueSize int           `json:"queue-size" mapstructure:"queue-size"`

	// Replay behavior, ignored for live sources.
	Realtime bool `json:"realtime" mapstructure:"realtime"`
	Loop     bool `json:"loop" mapstructure:"loop"`
}

// NewCanOptions creates a CanOptions object with default parameters.
func NewCanOptions() *CanOptions {
	return &CanOptions{
		Source:    "socketcan://can0",
		Baudrate:  core.DefaultCANBaudrate.String(),
		Protocol:  ProtocolAuto,
		Vendors:   []string{"pylontech", "daly", "jk"},
		Threshold: 5,
		Freshness: core.DefaultFreshness,
		QueueSize: 20,
		Realtime:  true,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *CanOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Source == "" {
		errors = append(errors, fmt.Errorf("--can.source must not be empty"))
	}
	if _, err := core.ParseCANBaudrate(o.Baudrate); err != nil {
		errors = append(errors, err)
	}
	if _, err := o.PinnedVendor(); err != nil {
		errors = append(errors, err)
	}
	if len(o.Vendors) == 0 {
		errors = append(errors, fmt.Errorf("--can.vendors must name at least one decoder"))
	}
	for _, name := range o.Vendors {
		if _, err := core.ParseVendor(name); err != nil {
			errors = append(errors, err)
		}
	}
	if o.Threshold == 0 {
		errors = append(errors, fmt.Errorf("--can.threshold must be greater than 0"))
	}
	if o.Freshness <= 0 {
		errors = append(errors, fmt.Errorf("--can.freshness must be greater than 0"))
	}
	if o.QueueSize <= 0 {
		errors = append(errors, fmt.Errorf("--can.queue-size must be greater than 0"))
	}

	return errors
}

// PinnedVendor returns the vendor to pin at startup, or core.VendorNone for auto-detection.
func (o *CanOptions) PinnedVendor() (core.Vendor, error) {
	if o.Protocol == "" || strings.EqualFold(o.Protocol, ProtocolAuto) {
		return core.VendorNone, nil
	}
	return core.ParseVendor(o.Protocol)
}

// AddFlags adds flags for CanOptions to the specified FlagSet.
func (o *CanOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Source, "can.source", o.Source, "Frame source: socketcan://<iface>, file://<path> or s3://<bucket>/<key>.")
	fs.StringVar(&o.Baudrate, "can.baudrate", o.Baudrate, "Nominal CAN bitrate, as a name (\"500 kBit/s\") or in bit/s (500000).")
	fs.StringVar(&o.Protocol, "can.protocol", o.Protocol, "BMS protocol to pin at startup, or \"auto\" to detect it from traffic.")
	fs.StringSliceVar(&o.Vendors, "can.vendors", o.Vendors, "Decoders to register, in precedence order.")
	fs.Uint32Var(&o.Threshold, "can.threshold", o.Threshold, "Successful parses a protocol needs before auto-detection promotes it.")
	fs.DurationVar(&o.Freshness, "can.freshness", o.Freshness, "Maximum data age for the battery to count as connected.")
	fs.IntVar(&o.QueueSize, "can.queue-size", o.QueueSize, "Depth of the receive queue between the transport and the decoders.")
	fs.BoolVar(&o.Realtime, "can.realtime", o.Realtime, "Pace replayed captures by their timestamps.")
	fs.BoolVar(&o.Loop, "can.loop", o.Loop, "Restart replayed captures when they end.")
}
