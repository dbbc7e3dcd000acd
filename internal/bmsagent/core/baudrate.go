package core

import (
	"fmt"
	"strings"
)

// CANBaudrate enumerates the bus speeds the CAN transport can be configured for.
type CANBaudrate uint8

const (
	CANBaudrate125K CANBaudrate = iota
	CANBaudrate250K
	CANBaudrate500K
	CANBaudrate1M
)

// DefaultCANBaudrate is the speed used by every supported BMS out of the box.
const DefaultCANBaudrate = CANBaudrate500K

var canBaudrates = [...]struct {
	bps  int
	name string
}{
	CANBaudrate125K: {125000, "125 kBit/s"},
	CANBaudrate250K: {250000, "250 kBit/s"},
	CANBaudrate500K: {500000, "500 kBit/s"},
	CANBaudrate1M:   {1000000, "1 MBit/s"},
}

// CANBaudrates returns all CAN speeds, slowest first.
func CANBaudrates() []CANBaudrate {
	return []CANBaudrate{CANBaudrate125K, CANBaudrate250K, CANBaudrate500K, CANBaudrate1M}
}

// BitsPerSecond returns the bus speed. Out of range values map to the default.
func (b CANBaudrate) BitsPerSecond() int {
	if int(b) < len(canBaudrates) {
		return canBaudrates[b].bps
	}
	return canBaudrates[DefaultCANBaudrate].bps
}

func (b CANBaudrate) String() string {
	if int(b) < len(canBaudrates) {
		return canBaudrates[b].name
	}
	return canBaudrates[DefaultCANBaudrate].name
}

// ParseCANBaudrate accepts either the display name ("500 kBit/s") or the
// bit rate in decimal ("500000").
func ParseCANBaudrate(s string) (CANBaudrate, error) {
	s = strings.TrimSpace(s)
	for i, e := range canBaudrates {
		if strings.EqualFold(e.name, s) || fmt.Sprint(e.bps) == s {
			return CANBaudrate(i), nil
		}
	}
	return DefaultCANBaudrate, fmt.Errorf("%w: CAN %q", ErrUnknownBaudrate, s)
}

// CANBaudrateFromBPS maps a bit rate onto the enumeration.
func CANBaudrateFromBPS(bps int) (CANBaudrate, error) {
	for i, e := range canBaudrates {
		if e.bps == bps {
			return CANBaudrate(i), nil
		}
	}
	return DefaultCANBaudrate, fmt.Errorf("%w: CAN %d bit/s", ErrUnknownBaudrate, bps)
}

// RS485Baudrate enumerates the serial speeds for RS485 attached packs.
type RS485Baudrate uint8

const (
	RS485Baudrate9600 RS485Baudrate = iota
	RS485Baudrate19200
	RS485Baudrate38400
	RS485Baudrate115200
)

const DefaultRS485Baudrate = RS485Baudrate9600

var rs485Baudrates = [...]struct {
	bps  int
	name string
}{
	RS485Baudrate9600:   {9600, "9600 Baud"},
	RS485Baudrate19200:  {19200, "19200 Baud"},
	RS485Baudrate38400:  {38400, "38400 Baud"},
	RS485Baudrate115200: {115200, "115200 Baud"},
}

func RS485Baudrates() []RS485Baudrate {
	return []RS485Baudrate{RS485Baudrate9600, RS485Baudrate19200, RS485Baudrate38400, RS485Baudrate115200}
}

func (b RS485Baudrate) BitsPerSecond() int {
	if int(b) < len(rs485Baudrates) {
		return rs485Baudrates[b].bps
	}
	return rs485Baudrates[DefaultRS485Baudrate].bps
}

func (b RS485Baudrate) String() string {
	if int(b) < len(rs485Baudrates) {
		return rs485Baudrates[b].name
	}
	return rs485Baudrates[DefaultRS485Baudrate].name
}

func ParseRS485Baudrate(s string) (RS485Baudrate, error) {
	s = strings.TrimSpace(s)
	for i, e := range rs485Baudrates {
		if strings.EqualFold(e.name, s) || fmt.Sprint(e.bps) == s {
			return RS485Baudrate(i), nil
		}
	}
	return DefaultRS485Baudrate, fmt.Errorf("%w: RS485 %q", ErrUnknownBaudrate, s)
}

func RS485BaudrateFromBPS(bps int) (RS485Baudrate, error) {
	for i, e := range rs485Baudrates {
		if e.bps == bps {
			return RS485Baudrate(i), nil
		}
	}
	return DefaultRS485Baudrate, fmt.Errorf("%w: RS485 %d baud", ErrUnknownBaudrate, bps)
}
