package core

import "fmt"

const (
	// MinFrameLength is the payload length every supported vendor requires.
	MinFrameLength = 8

	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
)

// Frame is one classical CAN data frame as handed over by a transport.
type Frame struct {
	ID       uint32
	Extended bool
	Len      uint8
	Data     [8]byte
}

// NewFrame builds a frame from an identifier and up to eight payload bytes.
// Identifiers above the 11-bit range are flagged as extended.
func NewFrame(id uint32, data []byte) (Frame, error) {
	f := Frame{ID: id, Extended: id > MaxStandardID}
	if len(data) > len(f.Data) {
		return Frame{}, fmt.Errorf("payload of %d bytes exceeds 8", len(data))
	}
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, f.Validate()
}

// Payload returns the valid portion of Data.
func (f Frame) Payload() []byte {
	n := int(f.Len)
	if n > len(f.Data) {
		n = len(f.Data)
	}
	return f.Data[:n]
}

func (f Frame) Validate() error {
	if f.Len > 8 {
		return fmt.Errorf("invalid data length %d", f.Len)
	}
	limit := uint32(MaxStandardID)
	if f.Extended {
		limit = MaxExtendedID
	}
	if f.ID > limit {
		return fmt.Errorf("identifier 0x%X exceeds 0x%X", f.ID, limit)
	}
	return nil
}

func (f Frame) String() string {
	if f.Extended {
		return fmt.Sprintf("%08X [%d] % X", f.ID, f.Len, f.Payload())
	}
	return fmt.Sprintf("%03X [%d] % X", f.ID, f.Len, f.Payload())
}
