package transport

import (
	"context"
	"slices"
	"strings"
	"time"
)

// DefaultNamePrefixes are the advertised-name prefixes a gateway edge
// device is expected to use, checked case-sensitively against the
// advertisement as-is (matching constants.py's DEVICE_NAME_PREFIXES).
var DefaultNamePrefixes = []string{"Mesh-Gateway", "DC-Monitor", "ESP-BLE-MESH"}

// GatewayServiceUUID is the service UUID a gateway edge device advertises
// when its name doesn't match one of DefaultNamePrefixes.
const GatewayServiceUUID = "0000dc01-0000-1000-8000-00805f9b34fb"

// ScanFilter selects which scan results Scan returns.
type ScanFilter struct {
	// Address, if set, bypasses name/UUID filtering entirely: only the
	// device with this exact address is returned.
	Address string

	// NamePrefixes match against Device.Name by prefix. Defaults to
	// DefaultNamePrefixes when nil.
	NamePrefixes []string

	// ServiceUUIDs match against Device.ServiceUUIDs by membership.
	// Defaults to []string{GatewayServiceUUID} when nil.
	ServiceUUIDs []string
}

func (f ScanFilter) matches(d Device) bool {
	if f.Address != "" {
		return d.Address == f.Address
	}

	prefixes := f.NamePrefixes
	if prefixes == nil {
		prefixes = DefaultNamePrefixes
	}
	for _, p := range prefixes {
		if strings.HasPrefix(d.Name, p) {
			return true
		}
	}

	uuids := f.ServiceUUIDs
	if uuids == nil {
		uuids = []string{GatewayServiceUUID}
	}
	for _, u := range d.ServiceUUIDs {
		if slices.Contains(uuids, u) {
			return true
		}
	}
	return false
}

// Scan enumerates peers for up to timeout and returns those matching filter.
// When filter.Address is set, name/UUID filtering is bypassed entirely.
func (s *Session) Scan(ctx context.Context, timeout time.Duration, filter ScanFilter) ([]Device, error) {
	found, err := s.driver.Scan(ctx, timeout)
	if err != nil {
		return nil, err
	}

	matched := make([]Device, 0, len(found))
	for _, d := range found {
		if filter.matches(d) {
			matched = append(matched, d)
		}
	}
	if len(matched) == 0 {
		return nil, ErrScanEmpty
	}
	return matched, nil
}
