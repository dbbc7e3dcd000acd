package protocol

import "encoding/binary"

// ByteOrder selects how multi-byte fields are composed.
type ByteOrder bool

const (
	BigEndian    ByteOrder = true
	LittleEndian ByteOrder = false
)

func (o ByteOrder) order() binary.ByteOrder {
	if o == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Uint16 reads two bytes at off. The caller guarantees off+2 <= len(b).
func Uint16(b []byte, off int, o ByteOrder) uint16 {
	return o.order().Uint16(b[off : off+2])
}

// Int16 reinterprets Uint16 as two's complement.
func Int16(b []byte, off int, o ByteOrder) int16 {
	return int16(Uint16(b, off, o))
}

// Uint32 reads four bytes at off. The caller guarantees off+4 <= len(b).
func Uint32(b []byte, off int, o ByteOrder) uint32 {
	return o.order().Uint32(b[off : off+4])
}

func Int32(b []byte, off int, o ByteOrder) int32 {
	return int32(Uint32(b, off, o))
}

// InRange reports whether lo <= v <= hi.
func InRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}
