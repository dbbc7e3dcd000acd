package core

import (
	"errors"
	"strings"
	"testing"
)

func TestVendorRoundTrip(t *testing.T) {
	for _, v := range Vendors() {
		t.Run(v.String(), func(t *testing.T) {
			got, err := ParseVendor(v.String())
			if err != nil {
				t.Fatalf("ParseVendor(%q) returned error: %v", v.String(), err)
			}
			if got != v {
				t.Errorf("ParseVendor(%q) = %d, want %d", v.String(), got, v)
			}
		})
	}
}

func TestParseVendor(t *testing.T) {
	tests := []struct {
		in      string
		want    Vendor
		wantErr bool
	}{
		{"daly", VendorDALY, false},
		{"DALY BMS", VendorDALY, false},
		{" jkbms ", VendorJKBMS, false},
		{"jk-bms", VendorJKBMS, false},
		{"PYLONTECH", VendorPylontech, false},
		{"lifepo4-power", VendorLiFePO4Power, false},
		{"tesla", VendorNone, true},
		{"", VendorNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVendor(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownVendor) {
					t.Fatalf("expected ErrUnknownVendor, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVendorOutOfRangeString(t *testing.T) {
	if got := Vendor(200).String(); got != "Unknown" {
		t.Errorf("Vendor(200).String() = %q, want Unknown", got)
	}
}

func TestCANBaudrateRoundTrip(t *testing.T) {
	for _, b := range CANBaudrates() {
		byName, err := ParseCANBaudrate(b.String())
		if err != nil || byName != b {
			t.Errorf("ParseCANBaudrate(%q) = %v, %v; want %v", b.String(), byName, err, b)
		}
		byBPS, err := CANBaudrateFromBPS(b.BitsPerSecond())
		if err != nil || byBPS != b {
			t.Errorf("CANBaudrateFromBPS(%d) = %v, %v; want %v", b.BitsPerSecond(), byBPS, err, b)
		}
	}

	if _, err := CANBaudrateFromBPS(800000); !errors.Is(err, ErrUnknownBaudrate) {
		t.Errorf("expected ErrUnknownBaudrate for 800000, got %v", err)
	}
	if DefaultCANBaudrate.BitsPerSecond() != 500000 {
		t.Errorf("default CAN baudrate = %d, want 500000", DefaultCANBaudrate.BitsPerSecond())
	}
}

func TestRS485BaudrateRoundTrip(t *testing.T) {
	for _, b := range RS485Baudrates() {
		byName, err := ParseRS485Baudrate(b.String())
		if err != nil || byName != b {
			t.Errorf("ParseRS485Baudrate(%q) = %v, %v; want %v", b.String(), byName, err, b)
		}
		byBPS, err := RS485BaudrateFromBPS(b.BitsPerSecond())
		if err != nil || byBPS != b {
			t.Errorf("RS485BaudrateFromBPS(%d) = %v, %v; want %v", b.BitsPerSecond(), byBPS, err, b)
		}
	}

	if _, err := ParseRS485Baudrate("57600"); !errors.Is(err, ErrUnknownBaudrate) {
		t.Errorf("expected ErrUnknownBaudrate for 57600, got %v", err)
	}
}

func TestApplyCurrent(t *testing.T) {
	tests := []struct {
		amps            float64
		wantCharging    bool
		wantDischarging bool
	}{
		{12.3, true, false},
		{0.6, true, false},
		{0.5, false, false},
		{0, false, false},
		{-0.5, false, false},
		{-0.6, false, true},
		{-80, false, true},
	}

	for _, tt := range tests {
		var s Snapshot
		s.ApplyCurrent(tt.amps)
		if s.Charging != tt.wantCharging || s.Discharging != tt.wantDischarging {
			t.Errorf("ApplyCurrent(%v): charging=%v discharging=%v, want %v/%v",
				tt.amps, s.Charging, s.Discharging, tt.wantCharging, tt.wantDischarging)
		}
		if s.Charging && s.Discharging {
			t.Errorf("ApplyCurrent(%v): charging and discharging both set", tt.amps)
		}
	}
}

func TestSetStatusTruncates(t *testing.T) {
	var s Snapshot
	s.SetStatus("%s", strings.Repeat("x", 100))
	if len(s.Status) != StatusTextMax {
		t.Errorf("status length = %d, want %d", len(s.Status), StatusTextMax)
	}
}

func TestNewFrame(t *testing.T) {
	f, err := NewFrame(0x18FF50E5, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("NewFrame returned error: %v", err)
	}
	if !f.Extended {
		t.Error("expected extended identifier")
	}
	if got := f.Payload(); len(got) != 3 || got[2] != 3 {
		t.Errorf("Payload() = %v", got)
	}

	std, err := NewFrame(0x359, make([]byte, 8))
	if err != nil || std.Extended {
		t.Errorf("NewFrame(0x359) = %+v, %v; want standard frame", std, err)
	}

	if _, err := NewFrame(0x20000000, nil); err == nil {
		t.Error("expected error for identifier above 29 bits")
	}
	if _, err := NewFrame(0x100, make([]byte, 9)); err == nil {
		t.Error("expected error for 9 byte payload")
	}
}
