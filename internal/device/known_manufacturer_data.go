package device

import (
	"encoding/binary"
	"fmt"
)

// ManufacturerInfo is the decoded prefix of an advertisement's
// manufacturer-specific data.
type ManufacturerInfo struct {
	CompanyID uint16 `json:"company_id"`
	Company   string `json:"company,omitempty"`
	// Payload is the data following the company identifier.
	Payload []byte `json:"-"`
}

// String renders the company as "Name (0x004C)", or just the identifier.
func (m ManufacturerInfo) String() string {
	if m.Company == "" {
		return fmt.Sprintf("0x%04X", m.CompanyID)
	}
	return fmt.Sprintf("%s (0x%04X)", m.Company, m.CompanyID)
}

// knownCompanies maps Bluetooth SIG company identifiers to vendor names.
var knownCompanies = map[uint16]string{
	0x0006: "Microsoft",
	0x000D: "Texas Instruments",
	0x004C: "Apple",
	0x0059: "Nordic Semiconductor",
	0x0075: "Samsung",
	0x00E0: "Google",
	0x0131: "Cypress Semiconductor",
	0x0157: "Anhui Huami",
	0x02E5: "Espressif",
	0x038F: "Xiaomi",
}

// CompanyName returns the vendor name registered for a company identifier.
func CompanyName(id uint16) (string, bool) {
	name, ok := knownCompanies[id]
	return name, ok
}

// ParseManufacturerData splits manufacturer-specific advertisement data into
// its little-endian company identifier and payload. Data shorter than the
// identifier is rejected.
func ParseManufacturerData(raw []byte) (ManufacturerInfo, error) {
	if len(raw) < 2 {
		return ManufacturerInfo{}, fmt.Errorf("%w: manufacturer data too short: %d bytes", ErrInvalidArgument, len(raw))
	}
	id := binary.LittleEndian.Uint16(raw[0:2])
	info := ManufacturerInfo{
		CompanyID: id,
		Payload:   append([]byte(nil), raw[2:]...),
	}
	info.Company, _ = CompanyName(id)
	return info, nil
}
