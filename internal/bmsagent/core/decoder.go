package core

import "time"

// Decoder translates the frames of one vendor protocol into a Snapshot.
//
// Parse is the only mutating entry point and is expected to be called from a
// single goroutine. Every other method may be called concurrently with Parse.
type Decoder interface {
	// Name returns a stable human readable label.
	Name() string

	// Vendor returns the vendor tag stamped on the decoder's snapshot.
	Vendor() Vendor

	// Accepts reports whether the identifier belongs to this protocol. It has no side effects.
	Accepts(id uint32) bool

	// Parse decodes one frame. It returns true only if a field was extracted and
	// passed its plausibility check.
	Parse(id uint32, data []byte) bool

	Initialize() bool
	Start() bool
	Stop() bool

	// IsConnected reports whether a frame was parsed successfully within window.
	IsConnected(window time.Duration) bool

	// Data returns a copy of the snapshot. ok equals IsConnected(DefaultFreshness).
	Data() (snapshot Snapshot, ok bool)

	// DataAge returns the time since the last successful parse, or zero if there was none.
	DataAge() time.Duration

	Stats() (messages, errors uint32)
	ResetStats()

	// LastError returns the reason of the most recent rejected frame.
	LastError() error
}
