package core

import (
	"fmt"
	"time"
)

const (
	// DefaultFreshness is how long after the last good frame a decoder still counts as connected.
	DefaultFreshness = 5 * time.Second

	// StatusTextMax bounds Snapshot.Status in bytes.
	StatusTextMax = 63

	// ChargeThreshold is the current magnitude in amperes below which the pack is idle.
	ChargeThreshold = 0.5
)

// Snapshot is the unified battery state shared by every vendor decoder.
type Snapshot struct {
	Vendor      Vendor    `json:"vendor"`
	Connected   bool      `json:"connected"`
	Voltage     float64   `json:"voltage"`
	Current     float64   `json:"current"`
	SOC         float64   `json:"soc"`
	Temperature float64   `json:"temperature"`
	Cycles      uint16    `json:"cycles"`
	Charging    bool      `json:"charging"`
	Discharging bool      `json:"discharging"`
	Status      string    `json:"status"`
	LastUpdate  time.Time `json:"lastUpdate"`

	StatusFlags    uint8   `json:"statusFlags"`
	AlarmFlags     uint8   `json:"alarmFlags"`
	CellVoltageMin float64 `json:"cellVoltageMin,omitempty"`
	CellVoltageMax float64 `json:"cellVoltageMax,omitempty"`
}

// ApplyCurrent stores the pack current and derives the charge direction from it.
func (s *Snapshot) ApplyCurrent(amps float64) {
	s.Current = amps
	s.Charging = amps > ChargeThreshold
	s.Discharging = amps < -ChargeThreshold
}

// SetStatus formats the status text, truncating it to StatusTextMax bytes.
func (s *Snapshot) SetStatus(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	if len(text) > StatusTextMax {
		text = text[:StatusTextMax]
	}
	s.Status = text
}
