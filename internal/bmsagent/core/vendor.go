package core

import (
	"fmt"
	"strings"
)

// Vendor identifies the BMS wire protocol a snapshot was decoded from.
type Vendor uint8

const (
	VendorNone Vendor = iota
	VendorPylontech
	VendorJKBMS
	VendorDALY
	VendorSeplos
	VendorEVE
	VendorLiFePO4Power
)

// vendorNames holds the display names. Index == Vendor value.
var vendorNames = [...]string{
	VendorNone:         "Unknown",
	VendorPylontech:    "Pylontech",
	VendorJKBMS:        "JK BMS",
	VendorDALY:         "DALY BMS",
	VendorSeplos:       "Seplos",
	VendorEVE:          "EVE LiFePO4",
	VendorLiFePO4Power: "LiFePO4 Power",
}

// vendorKeys are the short forms accepted on the command line and in config files.
var vendorKeys = map[string]Vendor{
	"none":          VendorNone,
	"pylontech":     VendorPylontech,
	"jk":            VendorJKBMS,
	"jkbms":         VendorJKBMS,
	"jk-bms":        VendorJKBMS,
	"daly":          VendorDALY,
	"seplos":        VendorSeplos,
	"eve":           VendorEVE,
	"lifepo4power":  VendorLiFePO4Power,
	"lifepo4-power": VendorLiFePO4Power,
}

// Vendors returns every known vendor in declaration order.
func Vendors() []Vendor {
	out := make([]Vendor, 0, len(vendorNames))
	for i := range vendorNames {
		out = append(out, Vendor(i))
	}
	return out
}

func (v Vendor) String() string {
	if int(v) < len(vendorNames) {
		return vendorNames[v]
	}
	return vendorNames[VendorNone]
}

// ParseVendor resolves a display name or a short key, case-insensitively.
func ParseVendor(name string) (Vendor, error) {
	n := strings.TrimSpace(name)
	for i, s := range vendorNames {
		if strings.EqualFold(s, n) {
			return Vendor(i), nil
		}
	}
	if v, ok := vendorKeys[strings.ToLower(n)]; ok {
		return v, nil
	}
	return VendorNone, fmt.Errorf("%w: %q", ErrUnknownVendor, name)
}

func (v Vendor) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Vendor) UnmarshalText(text []byte) error {
	parsed, err := ParseVendor(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
