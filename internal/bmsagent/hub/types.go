package hub

import (
	"time"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
)

// Command actions accepted on the command topic.
const (
	ActionSelect = "select"
	ActionAuto   = "auto"
	ActionReset  = "reset"
)

// OnlineStatus is published retained on the online topic and as the last will.
// The will carries no timestamp; subscribers use their own reception time.
type OnlineStatus struct {
	DeviceID string `json:"deviceId"`
	Online   bool   `json:"online"`
	Reason   string `json:"reason,omitempty"`
}

// SnapshotMessage wraps a battery snapshot with its origin.
type SnapshotMessage struct {
	DeviceID string `json:"deviceId"`
	Protocol string `json:"protocol,omitempty"`
	Mode     string `json:"mode,omitempty"`
	core.Snapshot
}

// Detection announces that auto-detection promoted a protocol.
type Detection struct {
	DeviceID  string      `json:"deviceId"`
	Protocol  string      `json:"protocol"`
	Vendor    core.Vendor `json:"vendor"`
	Timestamp time.Time   `json:"timestamp"`
}

// Command is a control directive.
//
//	{"id":"42","action":"select","vendor":"DALY"}
//	{"action":"auto","enabled":true}
//	{"action":"reset"}
type Command struct {
	ID      string `json:"id,omitempty"`
	Action  string `json:"action"`
	Vendor  string `json:"vendor,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// CommandAck reports how a Command was applied.
type CommandAck struct {
	ID       string `json:"id,omitempty"`
	DeviceID string `json:"deviceId"`
	Action   string `json:"action"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Mode     string `json:"mode"`
}
