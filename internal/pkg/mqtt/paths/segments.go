package paths

// Topic segments for the BMS telemetry tree. Full topics are built as
// {root}/{segment}/{deviceID} by pkg/mqtt/topic.

// Downstream: fleet -> agent
const (
	// Command carries control directives.
	// Payload: { "action": "select", "vendor": "DALY" }
	// Pattern: {root}/command/{deviceID}
	Command = "command"
)

// Upstream: agent -> fleet
const (
	// Snapshot carries the decoded battery state, published periodically.
	// Pattern: {root}/snapshot/{deviceID}
	Snapshot = "snapshot"

	// Online is retained and doubles as the last will.
	// Payload: { "deviceId": "...", "online": true/false, "reason": "..." }
	// Pattern: {root}/online/{deviceID}
	Online = "online"

	// Detected announces every auto-detection promotion.
	// Pattern: {root}/detected/{deviceID}
	Detected = "detected"

	// CommandAck reports the outcome of a command.
	// Pattern: {root}/command/ack/{deviceID}
	CommandAck = "command/ack"
)
