package protocol

import (
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
)

// DALY CAN identifiers (29-bit).
const (
	DalyVoltageID = 0x18FF50E5
	DalyCurrentID = 0x18FF51E5
	DalySOCID     = 0x18FF52E5
	DalyTempID    = 0x18FF53E5
	DalyStatusID  = 0x18FF54E5
	DalyCellsID   = 0x18FF55E5
)

// Daly decodes the DALY BMS CAN protocol. All fields are little-endian and use
// the same scale factors as Pylontech.
type Daly struct {
	base
}

var _ core.Decoder = (*Daly)(nil)

func NewDaly(opts ...Option) *Daly {
	d := &Daly{}
	d.init("DALY BMS CAN", core.VendorDALY, opts)
	return d
}

func (d *Daly) Accepts(id uint32) bool {
	return id >= DalyVoltageID && id <= DalyCellsID && id&0xFF == 0xE5
}

func (d *Daly) Parse(id uint32, data []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finish(id, d.decode(id, data))
}

func (d *Daly) decode(id uint32, data []byte) error {
	if err := checkLength(data); err != nil {
		return err
	}

	switch id {
	case DalyVoltageID:
		return d.setVoltage(float64(Uint16(data, 0, LittleEndian)) / 100)

	case DalyCurrentID:
		d.snapshot.ApplyCurrent(float64(Int16(data, 0, LittleEndian)) / 10)

	case DalySOCID:
		return d.setSOC(float64(Uint16(data, 0, LittleEndian)) / 10)

	case DalyTempID:
		return d.setTemperature(float64(Int16(data, 0, LittleEndian)) / 10)

	case DalyStatusID:
		d.snapshot.StatusFlags = data[0]
		d.snapshot.AlarmFlags = data[1]
		d.snapshot.Cycles = Uint16(data, 4, LittleEndian)
		if data[1] != 0 {
			d.snapshot.SetStatus("ALARM 0x%02X - %d cycles", data[1], d.snapshot.Cycles)
		} else {
			d.snapshot.SetStatus("Online - %d cycles", d.snapshot.Cycles)
		}

	case DalyCellsID:
		lo := float64(Uint16(data, 0, LittleEndian)) / 1000
		hi := float64(Uint16(data, 2, LittleEndian)) / 1000
		return d.setCellRange(lo, hi)

	default:
		return core.ErrUnrecognizedIdentifier
	}

	return nil
}
