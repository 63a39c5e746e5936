// Package report normalizes the raw wire formats observed on the
// host-side bus into the two canonical report shapes forwarded to the
// wireless link: an 8-byte keyboard report and a 4-byte mouse report.
//
// The decoders are stateless and never partial: an undecodable input
// yields a zero-filled report and ok=false, and must not be forwarded.
package report

// ID selects the wireless delivery channel for a canonical report.
type ID uint8

const (
	// KeyboardID is the report id for the 8-byte keyboard shape.
	KeyboardID ID = 0x01
	// MouseID is the report id for the 4-byte mouse shape.
	MouseID ID = 0x02
)

func (id ID) String() string {
	switch id {
	case KeyboardID:
		return "keyboard"
	case MouseID:
		return "mouse"
	default:
		return "unknown"
	}
}

// Keyboard is the canonical boot-protocol keyboard report:
// [modifiers, reserved, key1..key6].
type Keyboard [8]byte

// Modifiers returns the modifier bitmask byte.
func (k Keyboard) Modifiers() byte { return k[0] }

// Keys returns the six key-slot bytes.
func (k Keyboard) Keys() [6]byte {
	var keys [6]byte
	copy(keys[:], k[2:])
	return keys
}

// Mouse is the canonical mouse report: [buttons, dx, dy, wheel].
// dx/dy/wheel are signed two's-complement deltas.
type Mouse [4]byte

// Buttons returns the button bitmask byte.
func (m Mouse) Buttons() byte { return m[0] }

// DX returns the horizontal delta.
func (m Mouse) DX() int8 { return int8(m[1]) }

// DY returns the vertical delta.
func (m Mouse) DY() int8 { return int8(m[2]) }

// Wheel returns the scroll delta.
func (m Mouse) Wheel() int8 { return int8(m[3]) }

// DefaultNKROOffset is the vendor calibration constant added to keycodes
// computed from NKRO bitmap positions. Matches the keyboards the
// reference hardware was tuned against.
const DefaultNKROOffset = 4

// keySlots is the number of key positions in a boot-protocol report.
const keySlots = 6

// DecodeKeyboard normalizes raw keyboard bytes.
//
// Exactly 8 bytes are treated as an already-canonical boot-protocol
// report and copied verbatim. Any other length with at least one bitmap
// byte is treated as an NKRO bitmap: byte 0 is the modifier byte, bytes
// from index 2 onward carry one bit per key code, and each set bit at
// byte i, bit b maps to keycode (i-2)*8 + b + offset. Codes <= 3
// (reserved/error per the HID usage table) or past the 6-slot capacity
// are discarded. Slots fill in bitmap scan order, low byte and low bit
// first; that ordering is a design choice of this decoder and is not
// guaranteed stable across vendors.
//
// Input too short to carry a bitmap byte is not decodable.
func DecodeKeyboard(raw []byte, offset uint8) (Keyboard, bool) {
	var out Keyboard

	if len(raw) == 8 {
		copy(out[:], raw)
		return out, true
	}
	if len(raw) < 3 {
		return Keyboard{}, false
	}

	out[0] = raw[0]
	slot := 0
	for i := 2; i < len(raw); i++ {
		if raw[i] == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if raw[i]&(1<<bit) == 0 {
				continue
			}
			code := (i-2)*8 + bit + int(offset)
			if code <= 3 || code >= 255 || slot >= keySlots {
				continue
			}
			out[2+slot] = byte(code)
			slot++
		}
	}
	return out, true
}

// DecodeMouse normalizes raw mouse bytes, dispatching purely on length
// because the devices on this bus report different shapes with no
// self-describing tag:
//
//	3 bytes:  [buttons, dx, dy], wheel = 0
//	4 bytes:  leading byte <= 5 is assumed to be a report id and skipped,
//	          otherwise the input is taken as raw [buttons, dx, dy, wheel]
//	5 bytes:  [id, buttons, dx, dy, wheel], id always skipped
//	>=7:      padded multi-axis layout; buttons/dx/dy/wheel are bytes
//	          1, 2, 4 and 6
//
// Two genuinely different devices can share a length, so this dispatch is
// best-effort by construction. Any other length is not decodable.
func DecodeMouse(raw []byte) (Mouse, bool) {
	var out Mouse
	switch {
	case len(raw) == 3:
		copy(out[:3], raw)
		return out, true
	case len(raw) == 4:
		if raw[0] <= 5 {
			copy(out[:3], raw[1:])
			return out, true
		}
		copy(out[:], raw)
		return out, true
	case len(raw) == 5:
		copy(out[:], raw[1:])
		return out, true
	case len(raw) >= 7:
		out[0] = raw[1]
		out[1] = raw[2]
		out[2] = raw[4]
		out[3] = raw[6]
		return out, true
	default:
		return Mouse{}, false
	}
}
