// Package registry tracks the input devices currently attached to the
// host-side bus in a fixed-capacity slot table.
//
// The table is not safe for concurrent use: the bridging engine runs
// single-threaded and cooperative, and callers must re-resolve a slot by
// index each tick instead of holding on to slot state across ticks,
// because eviction can happen between the cleanup and poll phases of the
// same cycle. Get therefore returns a value snapshot, never a pointer
// into the table.
package registry

import (
	"errors"

	"github.com/hidlink/hidlink/endpoint"
)

// Capacity is the fixed number of device slots.
const Capacity = 4

// ReportCap is the per-slot report buffer size in bytes.
const ReportCap = 8

// Class identifies the kind of input peripheral in a slot.
type Class uint8

const (
	ClassNone Class = iota
	ClassKeyboard
	ClassMouse
	ClassGamepad
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassKeyboard:
		return "keyboard"
	case ClassMouse:
		return "mouse"
	case ClassGamepad:
		return "gamepad"
	case ClassOther:
		return "hid-other"
	default:
		return "none"
	}
}

// ErrFull is returned by Add when every slot is occupied. The caller must
// not retry within the same tick; discovery simply skips re-adding until
// a slot frees.
var ErrFull = errors.New("registry: no free device slot")

// Slot is one tracked device. Location is the topology position (hub
// port), Endpoint the combined address+toggle byte.
type Slot struct {
	Location  byte
	Class     Class
	Endpoint  byte
	Report    [ReportCap]byte
	Connected bool

	valid bool
}

// Table is the slot arena. The zero value is ready to use.
type Table struct {
	slots  [Capacity]Slot
	active int
}

// Reset clears every slot and the active count. Idempotent.
func (t *Table) Reset() {
	*t = Table{}
}

// Add claims the first free slot for a newly discovered device. The
// report buffer is zeroed and the endpoint toggle is forced to the
// protocol start state (DATA0).
func (t *Table) Add(location byte, class Class, ep byte) (int, error) {
	for i := range t.slots {
		if t.slots[i].valid {
			continue
		}
		t.slots[i] = Slot{
			Location:  location,
			Class:     class,
			Endpoint:  endpoint.SetPhase(ep, false),
			Connected: true,
			valid:     true,
		}
		t.active++
		return i, nil
	}
	return -1, ErrFull
}

// Remove evicts the slot at i. Out-of-range or already-invalid indices
// are a no-op; the active count saturates at zero.
func (t *Table) Remove(i int) {
	if i < 0 || i >= Capacity || !t.slots[i].valid {
		return
	}
	t.slots[i] = Slot{}
	if t.active > 0 {
		t.active--
	}
}

// Get returns a snapshot of the slot at i. ok is false for out-of-range
// or invalid indices. The snapshot does not track later mutations;
// re-fetch each tick.
func (t *Table) Get(i int) (Slot, bool) {
	if i < 0 || i >= Capacity || !t.slots[i].valid {
		return Slot{}, false
	}
	return t.slots[i], true
}

// IsValid reports whether slot i holds a device.
func (t *Table) IsValid(i int) bool {
	return i >= 0 && i < Capacity && t.slots[i].valid
}

// FindByClass returns the first valid slot holding a device of the given
// class. Duplicates are prevented by the caller's discovery guard, not
// here; only the first match is ever returned.
func (t *Table) FindByClass(class Class) (int, bool) {
	for i := range t.slots {
		if t.slots[i].valid && t.slots[i].Class == class {
			return i, true
		}
	}
	return -1, false
}

// SetEndpoint stores a new combined endpoint byte for slot i, typically
// after a successful transaction flipped the toggle.
func (t *Table) SetEndpoint(i int, ep byte) {
	if i < 0 || i >= Capacity || !t.slots[i].valid {
		return
	}
	t.slots[i].Endpoint = ep
}

// SetTogglePhase forces the toggle phase of slot i, used when
// re-enumeration resets the peer to DATA0.
func (t *Table) SetTogglePhase(i int, phase1 bool) {
	if i < 0 || i >= Capacity || !t.slots[i].valid {
		return
	}
	t.slots[i].Endpoint = endpoint.SetPhase(t.slots[i].Endpoint, phase1)
}

// TogglePhase reports the expected phase for slot i. Invalid indices read
// as DATA0: toggle reads are in the hot path and must never halt polling.
func (t *Table) TogglePhase(i int) bool {
	if i < 0 || i >= Capacity || !t.slots[i].valid {
		return false
	}
	return endpoint.ToggleFlag(t.slots[i].Endpoint)
}

// SetReport copies up to ReportCap bytes into slot i's report buffer.
// Longer input is a no-op; the poller has already validated lengths
// against the known report shapes, so the bound is a safety net rather
// than a reported error.
func (t *Table) SetReport(i int, b []byte) {
	if i < 0 || i >= Capacity || !t.slots[i].valid || len(b) > ReportCap {
		return
	}
	copy(t.slots[i].Report[:], b)
}

// ActiveCount returns the number of valid slots.
func (t *Table) ActiveCount() int {
	return t.active
}
