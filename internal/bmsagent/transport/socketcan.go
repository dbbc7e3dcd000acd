package transport

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
)

// struct can_frame layout from <linux/can.h>.
const (
	canFrameSize = 16

	canEFFFlag = 0x80000000
	canRTRFlag = 0x40000000
	canERRFlag = 0x20000000
	canEFFMask = 0x1FFFFFFF
	canSFFMask = 0x000007FF

	defaultReadTimeout = 100 * time.Millisecond
)

// SocketCAN reads classical CAN frames from a Linux raw CAN socket.
type SocketCAN struct {
	iface       string
	readTimeout time.Duration
	logger      logr.Logger

	received atomic.Uint64
	dropped  atomic.Uint64
	skipped  atomic.Uint64
}

type SocketOption func(*SocketCAN)

func WithSocketLogger(l logr.Logger) SocketOption {
	return func(s *SocketCAN) { s.logger = l }
}

// WithReadTimeout bounds each blocking read so cancellation is noticed.
func WithReadTimeout(d time.Duration) SocketOption {
	return func(s *SocketCAN) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

func NewSocketCAN(iface string, opts ...SocketOption) *SocketCAN {
	s := &SocketCAN{
		iface:       iface,
		readTimeout: defaultReadTimeout,
		logger:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithValues("interface", iface)
	return s
}

func (s *SocketCAN) Name() string {
	return "socketcan:" + s.iface
}

// SourceStats counts what a source saw at the wire.
type SourceStats struct {
	Received uint64 `json:"received"`
	Dropped  uint64 `json:"dropped"`
	Skipped  uint64 `json:"skipped"`
}

func (s *SocketCAN) Stats() SourceStats {
	return SourceStats{
		Received: s.received.Load(),
		Dropped:  s.dropped.Load(),
		Skipped:  s.skipped.Load(),
	}
}

// deliver decodes one raw read and queues it.
func (s *SocketCAN) deliver(raw []byte, out chan<- core.Frame) {
	f, ok := decodeCANFrame(raw)
	if !ok {
		s.skipped.Add(1)
		return
	}
	s.received.Add(1)
	if !Offer(out, f, s.Name()) {
		s.dropped.Add(1)
	}
}

// decodeCANFrame converts a raw struct can_frame. Error and remote frames,
// and short reads, are rejected.
func decodeCANFrame(raw []byte) (core.Frame, bool) {
	if len(raw) < canFrameSize {
		return core.Frame{}, false
	}

	canID := binary.NativeEndian.Uint32(raw[0:4])
	if canID&(canERRFlag|canRTRFlag) != 0 {
		return core.Frame{}, false
	}

	f := core.Frame{Extended: canID&canEFFFlag != 0}
	if f.Extended {
		f.ID = canID & canEFFMask
	} else {
		f.ID = canID & canSFFMask
	}

	n := raw[4]
	if n > 8 {
		n = 8
	}
	f.Len = n
	copy(f.Data[:], raw[8:8+int(n)])
	return f, true
}
