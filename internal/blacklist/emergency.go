package blacklist

import "strings"

// emergencyList is the compiled-in blocklist. Entries here are enforced
// before any store lookup and cannot be removed at runtime; shipping a new
// binary is the only way to change them. Addresses must be lowercase.
var emergencyList = map[string]string{
	// Lazarus Group (OFAC SDN, 2022 Ronin bridge exploit)
	"0x098b716b8aaf21512996dc57eb0615e2383e2f96": "ofac_sanctioned",
	// Tornado Cash router (OFAC SDN)
	"0x722122df12d4e14e13ac3b6895a86e84145b6967": "ofac_sanctioned",
	"0xd90e2f925da726b50c4ed8d0fb90ad053324f31b": "ofac_sanctioned",
}

// Emergency is the compiled-in blocklist tier. Lookups touch no I/O, so
// this tier keeps working when every backend is down.
type Emergency struct {
	entries map[string]string
}

// NewEmergency returns the compiled-in list. Extra entries extend it at
// construction (used by tests and regional builds).
func NewEmergency(extra map[string]string) *Emergency {
	entries := make(map[string]string, len(emergencyList)+len(extra))
	for addr, reason := range emergencyList {
		entries[addr] = reason
	}
	for addr, reason := range extra {
		entries[strings.ToLower(addr)] = reason
	}
	return &Emergency{entries: entries}
}

// Check reports whether address is on the emergency list and why.
func (e *Emergency) Check(address string) (reason string, blocked bool) {
	reason, blocked = e.entries[strings.ToLower(address)]
	return
}

// Size returns the number of compiled-in entries.
func (e *Emergency) Size() int {
	return len(e.entries)
}
