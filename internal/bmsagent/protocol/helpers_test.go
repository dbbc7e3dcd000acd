package protocol

import (
	"encoding/binary"
	"math"
	"time"

	clocktesting "k8s.io/utils/clock/testing"
)

var epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newFakeClock() *clocktesting.FakePassiveClock {
	return clocktesting.NewFakePassiveClock(epoch)
}

// payload pads b to a full eight byte frame.
func payload(b ...byte) []byte {
	out := make([]byte, 8)
	copy(out, b)
	return out
}

func be16(v int) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint16(out, uint16(int16(v)))
	return out
}

func le16(v int) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint16(out, uint16(int16(v)))
	return out
}

func le32(v int64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint32(out, uint32(int32(v)))
	return out
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
