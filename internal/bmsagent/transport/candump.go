package transport

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/autopeer-io/autopeer-bms/internal/bmsagent/core"
)

var (
	ErrMalformedLine = errors.New("malformed candump line")
	ErrCANFD         = errors.New("CAN FD frames are not supported")
)

// Record is one line of a candump -L log:
//
//	(1436509052.249713) can0 18FF50E5#A00F000000000000
type Record struct {
	Time      time.Time
	Interface string
	Frame     core.Frame
	Remote    bool
}

// ParseCandumpLine parses a single candump -L log line.
func ParseCandumpLine(line string) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return Record{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformedLine, len(fields))
	}

	ts, err := parseTimestamp(fields[0])
	if err != nil {
		return Record{}, err
	}

	idText, dataText, ok := strings.Cut(fields[2], "#")
	if !ok {
		return Record{}, fmt.Errorf("%w: missing '#' in %q", ErrMalformedLine, fields[2])
	}
	if strings.HasPrefix(dataText, "#") {
		return Record{}, ErrCANFD
	}

	id, err := strconv.ParseUint(idText, 16, 32)
	if err != nil {
		return Record{}, fmt.Errorf("%w: identifier %q: %v", ErrMalformedLine, idText, err)
	}
	extended := len(idText) > 3
	limit := uint64(core.MaxStandardID)
	if extended {
		limit = core.MaxExtendedID
	}
	if id > limit {
		return Record{}, fmt.Errorf("%w: identifier 0x%X out of range", ErrMalformedLine, id)
	}

	rec := Record{
		Time:      ts,
		Interface: fields[1],
		Frame:     core.Frame{ID: uint32(id), Extended: extended},
	}

	if strings.HasPrefix(strings.ToUpper(dataText), "R") {
		rec.Remote = true
		return rec, nil
	}

	dataText = strings.ReplaceAll(dataText, ".", "")
	data, err := hex.DecodeString(dataText)
	if err != nil {
		return Record{}, fmt.Errorf("%w: payload %q: %v", ErrMalformedLine, dataText, err)
	}
	if len(data) > len(rec.Frame.Data) {
		return Record{}, fmt.Errorf("%w: payload of %d bytes", ErrMalformedLine, len(data))
	}
	rec.Frame.Len = uint8(copy(rec.Frame.Data[:], data))
	return rec, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if len(s) < 3 || s[0] != '(' || s[len(s)-1] != ')' {
		return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrMalformedLine, s)
	}
	secText, fracText, _ := strings.Cut(s[1:len(s)-1], ".")

	sec, err := strconv.ParseInt(secText, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedLine, s, err)
	}

	var nsec int64
	if fracText != "" {
		if len(fracText) > 9 {
			fracText = fracText[:9]
		}
		fracText += strings.Repeat("0", 9-len(fracText))
		if nsec, err = strconv.ParseInt(fracText, 10, 64); err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrMalformedLine, s, err)
		}
	}
	return time.Unix(sec, nsec).UTC(), nil
}

// FormatCandumpLine renders r in candump -L format. Timestamps keep
// microsecond precision.
func FormatCandumpLine(r Record) string {
	var b strings.Builder

	us := r.Time.UnixMicro()
	fmt.Fprintf(&b, "(%d.%06d) %s ", us/1_000_000, us%1_000_000, r.Interface)
	if r.Frame.Extended {
		fmt.Fprintf(&b, "%08X#", r.Frame.ID)
	} else {
		fmt.Fprintf(&b, "%03X#", r.Frame.ID)
	}
	if r.Remote {
		b.WriteByte('R')
		return b.String()
	}
	b.WriteString(strings.ToUpper(hex.EncodeToString(r.Frame.Payload())))
	return b.String()
}
