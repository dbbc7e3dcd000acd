package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autopeer-io/autopeer-bms/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/autopeer-bms/pkg/log"
)

var errMissingEnabled = errors.New(`"enabled" is required for the auto action`)

func (h *Hub) handleCommand(ctx context.Context, topic string, payload []byte) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		log.Warn("Discarding malformed command", "topic", topic, "err", err.Error())
		h.ack(ctx, cmd, fmt.Errorf("malformed command: %w", err))
		return
	}

	err := h.Apply(cmd)
	if err != nil {
		log.Warn("Command failed", "action", cmd.Action, "err", err.Error())
	} else {
		log.Info("Command applied", "action", cmd.Action, "mode", h.ctrl.Mode())
	}
	h.ack(ctx, cmd, err)
}

// Apply executes a command against the arbiter.
func (h *Hub) Apply(cmd Command) error {
	switch cmd.Action {
	case ActionSelect:
		return h.ctrl.SelectProtocolByName(cmd.Vendor)
	case ActionAuto:
		if cmd.Enabled == nil {
			return errMissingEnabled
		}
		h.ctrl.SetAutoDetect(*cmd.Enabled)
		return nil
	case ActionReset:
		h.ctrl.ResetStats()
		return nil
	}
	return fmt.Errorf("unknown action %q", cmd.Action)
}

func (h *Hub) ack(ctx context.Context, cmd Command, err error) {
	a := CommandAck{
		ID:       cmd.ID,
		DeviceID: h.did,
		Action:   cmd.Action,
		Success:  err == nil,
		Mode:     string(h.ctrl.Mode()),
	}
	if err != nil {
		a.Error = err.Error()
	}
	if sendErr := h.send(ctx, paths.CommandAck, 1, false, a); sendErr != nil {
		log.Error(sendErr, "Failed to publish command ack", "action", cmd.Action)
	}
}
