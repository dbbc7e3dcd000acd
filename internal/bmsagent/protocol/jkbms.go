package protocol

import (
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
)

const (
	// JKBaseID and JKIDMask select the JK-BMS identifier block. The low byte carries the message type.
	JKBaseID = 0x02F4DA00
	JKIDMask = 0xFFFFFF00
)

// JK-BMS message types.
const (
	JKMsgVoltage = 0x01
	JKMsgCurrent = 0x02
	JKMsgSOC     = 0x03
	JKMsgTemp    = 0x04
	JKMsgStatus  = 0x05
	JKMsgCells   = 0x10
)

// JKBMS decodes the JK-BMS CAN protocol. All fields are little-endian.
type JKBMS struct {
	base
}

var _ core.Decoder = (*JKBMS)(nil)

func NewJKBMS(opts ...Option) *JKBMS {
	j := &JKBMS{}
	j.init("JK BMS CAN", core.VendorJKBMS, opts)
	return j
}

func (j *JKBMS) Accepts(id uint32) bool {
	return id&JKIDMask == JKBaseID
}

func (j *JKBMS) Parse(id uint32, data []byte) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finish(id, j.decode(id, data))
}

func (j *JKBMS) decode(id uint32, data []byte) error {
	if !j.Accepts(id) {
		return core.ErrUnrecognizedIdentifier
	}
	if err := checkLength(data); err != nil {
		return err
	}

	switch id & 0xFF {
	case JKMsgVoltage:
		return j.setVoltage(float64(Uint32(data, 0, LittleEndian)) / 1000)

	case JKMsgCurrent:
		j.snapshot.ApplyCurrent(float64(Int32(data, 0, LittleEndian)) / 1000)

	case JKMsgSOC:
		return j.setSOC(float64(Uint16(data, 0, LittleEndian)) / 100)

	case JKMsgTemp:
		return j.setTemperature(float64(Int16(data, 0, LittleEndian)) / 10)

	case JKMsgStatus:
		j.snapshot.StatusFlags = data[0]
		j.snapshot.Cycles = Uint16(data, 2, LittleEndian)
		j.snapshot.SetStatus("Online - Status: 0x%02X - %d cycles", data[0], j.snapshot.Cycles)

	case JKMsgCells:
		lo := float64(Uint16(data, 0, LittleEndian)) / 1000
		hi := float64(Uint16(data, 2, LittleEndian)) / 1000
		return j.setCellRange(lo, hi)

	default:
		return core.ErrUnrecognizedIdentifier
	}

	return nil
}
