// Package endpoint encodes and decodes the combined endpoint-address byte
// used on the host-side bus: the low 7 bits carry the endpoint number and
// the high bit carries the DATA0/DATA1 toggle expected for the next IN
// transaction.
//
// All functions are total over the full byte range and allocate nothing;
// they are in the per-tick hot path.
package endpoint

const (
	// AddrMask selects the endpoint number (bits 0-6). Endpoint number 0
	// means "no endpoint assigned".
	AddrMask = 0x7F
	// SyncMask selects the toggle bit (bit 7). 0 means the next
	// transaction uses DATA0, 1 means DATA1.
	SyncMask = 0x80
)

// ToggleFlag reports whether the next transaction for addr is expected to
// carry DATA1. Backends translate this into their controller-specific
// toggle signal.
func ToggleFlag(addr byte) bool {
	return addr&SyncMask != 0
}

// Flip inverts the toggle bit. Call exactly once per successful
// transaction; a failed transaction leaves the peer's view of the phase
// unchanged, so the stored address must not be flipped for it.
func Flip(addr byte) byte {
	return addr ^ SyncMask
}

// SetPhase clears the toggle bit and sets it if phase1 is true. Used on
// re-enumeration to force the address back to the protocol start state
// (DATA0), regardless of what was remembered.
func SetPhase(addr byte, phase1 bool) byte {
	addr &= AddrMask
	if phase1 {
		addr |= SyncMask
	}
	return addr
}

// AddressOnly returns addr with the toggle bit masked off.
func AddressOnly(addr byte) byte {
	return addr & AddrMask
}

// IsAssigned reports whether addr names a real endpoint (non-zero
// endpoint number, toggle bit ignored).
func IsAssigned(addr byte) bool {
	return addr&AddrMask != 0
}
