package arbiter

import (
	"fmt"
	"io"
	"time"

	"github.com/gosuri/uitable"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
)

// ProtocolInfo is a point-in-time view of one registered decoder.
type ProtocolInfo struct {
	Name      string      `json:"name"`
	Vendor    core.Vendor `json:"vendor"`
	Active    bool        `json:"active"`
	Connected bool        `json:"connected"`
	Matches   uint32      `json:"matches"`
	LastMatch time.Time   `json:"lastMatch"`
	Messages  uint32      `json:"messages"`
	Errors    uint32      `json:"errors"`
	DataAgeMs int64       `json:"dataAgeMs"`
	LastError string      `json:"lastError,omitempty"`
}

// Protocols describes every registered decoder in registration order.
func (a *Arbiter) Protocols() []ProtocolInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]ProtocolInfo, 0, len(a.entries))
	for _, e := range a.entries {
		d := e.decoder
		msgs, errs := d.Stats()
		info := ProtocolInfo{
			Name:      d.Name(),
			Vendor:    d.Vendor(),
			Active:    d == a.active,
			Connected: d.IsConnected(a.freshness),
			Matches:   e.stats.MatchCount,
			LastMatch: e.stats.LastMatch,
			Messages:  msgs,
			Errors:    errs,
			DataAgeMs: d.DataAge().Milliseconds(),
		}
		if err := d.LastError(); err != nil {
			info.LastError = err.Error()
		}
		out = append(out, info)
	}
	return out
}

// WriteDetectionStats renders match counts per protocol as a table.
func (a *Arbiter) WriteDetectionStats(w io.Writer) error {
	now := a.clock.Now()

	table := uitable.New()
	table.MaxColWidth = 32
	table.AddRow("PROTOCOL", "MATCHES", "LAST MATCH", "")
	for _, p := range a.Protocols() {
		last := "never"
		if !p.LastMatch.IsZero() {
			last = fmt.Sprintf("%d ms ago", now.Sub(p.LastMatch).Milliseconds())
		}
		table.AddRow(p.Name, p.Matches, last, activeMark(p.Active))
	}

	_, err := fmt.Fprintf(w, "%s\nmode: %s\n", table, a.Mode())
	return err
}

// WriteProtocolInfo renders connectivity and counters per protocol as a table.
func (a *Arbiter) WriteProtocolInfo(w io.Writer) error {
	table := uitable.New()
	table.MaxColWidth = 48
	table.AddRow("PROTOCOL", "STATE", "MESSAGES", "ERRORS", "AGE", "")
	for _, p := range a.Protocols() {
		state := "disconnected"
		if p.Connected {
			state = "CONNECTED"
		}
		table.AddRow(p.Name, state, p.Messages, p.Errors, fmt.Sprintf("%d ms", p.DataAgeMs), activeMark(p.Active))
	}

	_, err := fmt.Fprintln(w, table)
	return err
}

func activeMark(active bool) string {
	if active {
		return "[ACTIVE]"
	}
	return ""
}
