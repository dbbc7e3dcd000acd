package protocol

import (
	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
)

// Pylontech CAN identifiers (11-bit).
const (
	PylontechVoltageID = 0x359
	PylontechCurrentID = 0x35C
	PylontechSOCID     = 0x355
	PylontechTempID    = 0x356
	PylontechStatusID  = 0x35E
	PylontechAlarmID   = 0x35A
)

// Pylontech decodes the Pylontech low voltage CAN protocol. All fields are big-endian.
type Pylontech struct {
	base

	voltageReceived bool
	currentReceived bool
	socReceived     bool
}

var _ core.Decoder = (*Pylontech)(nil)

func NewPylontech(opts ...Option) *Pylontech {
	p := &Pylontech{}
	p.init("Pylontech CAN", core.VendorPylontech, opts)
	return p
}

func (p *Pylontech) Accepts(id uint32) bool {
	switch id {
	case PylontechVoltageID, PylontechCurrentID, PylontechSOCID,
		PylontechTempID, PylontechStatusID, PylontechAlarmID:
		return true
	}
	return false
}

func (p *Pylontech) Initialize() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	p.resetReceived()
	return true
}

func (p *Pylontech) Parse(id uint32, data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finish(id, p.decode(id, data))
}

func (p *Pylontech) decode(id uint32, data []byte) error {
	if err := checkLength(data); err != nil {
		return err
	}

	switch id {
	case PylontechVoltageID:
		if err := p.setVoltage(float64(Int16(data, 0, BigEndian)) / 100); err != nil {
			return err
		}
		p.voltageReceived = true

	case PylontechCurrentID:
		p.snapshot.ApplyCurrent(float64(Int16(data, 0, BigEndian)) / 10)
		p.currentReceived = true

	case PylontechSOCID:
		if err := p.setSOC(float64(Int16(data, 0, BigEndian)) / 10); err != nil {
			return err
		}
		p.socReceived = true

	case PylontechTempID:
		return p.setTemperature(float64(Int16(data, 0, BigEndian)) / 10)

	case PylontechStatusID:
		p.snapshot.Cycles = Uint16(data, 0, BigEndian)
		p.snapshot.SetStatus("Online - %d cycles", p.snapshot.Cycles)

	case PylontechAlarmID:
		p.snapshot.AlarmFlags = data[0]
		if data[0] != 0 {
			p.snapshot.SetStatus("ALARM 0x%02X", data[0])
		} else {
			p.snapshot.SetStatus("Online")
		}

	default:
		return core.ErrUnrecognizedIdentifier
	}

	return nil
}

// HasCompleteData reports whether voltage, current and SOC have each been
// received at least once since the last reset.
func (p *Pylontech) HasCompleteData() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.voltageReceived && p.currentReceived && p.socReceived
}

func (p *Pylontech) ResetReceivedFlags() {
	p.mu.Lock()
	p.resetReceived()
	p.mu.Unlock()
}

func (p *Pylontech) resetReceived() {
	p.voltageReceived = false
	p.currentReceived = false
	p.socReceived = false
}
