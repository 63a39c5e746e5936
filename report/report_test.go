package report_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidlink/hidlink/report"
)

func TestDecodeKeyboardBootProtocol(t *testing.T) {
	raw := []byte{0x02, 0x00, 0x04, 0x05, 0x00, 0x00, 0x00, 0x00}
	out, ok := report.DecodeKeyboard(raw, report.DefaultNKROOffset)
	require.True(t, ok)
	assert.Equal(t, report.Keyboard{0x02, 0x00, 0x04, 0x05, 0, 0, 0, 0}, out, "8-byte input round-trips verbatim")
}

func TestDecodeKeyboardNKRO(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		offset uint8
		want   report.Keyboard
	}{
		{
			// modifier=0x02, bitmap byte at offset 3 = 0x01:
			// keycode = (3-2)*8 + 0 + 4 = 12 in slot 1.
			name:   "single bitmap key",
			raw:    []byte{0x02, 0x00, 0x00, 0x01},
			offset: 4,
			want:   report.Keyboard{0x02, 0x00, 12, 0, 0, 0, 0, 0},
		},
		{
			// Low byte / low bit fills first.
			name:   "scan order",
			raw:    []byte{0x00, 0x00, 0x30, 0x01},
			offset: 4,
			want:   report.Keyboard{0x00, 0x00, 8, 9, 12, 0, 0, 0},
		},
		{
			// (2-2)*8+0+0 = 0 is a reserved code and must be discarded.
			name:   "reserved codes dropped",
			raw:    []byte{0x00, 0x00, 0x0F, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			offset: 0,
			want:   report.Keyboard{0x00, 0x00, 0, 0, 0, 0, 0, 0},
		},
		{
			// Seven bits set but only six slots; the seventh key is dropped.
			name:   "slot overflow",
			raw:    []byte{0x00, 0x00, 0x7F, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			offset: 4,
			want:   report.Keyboard{0x00, 0x00, 4, 5, 6, 7, 8, 9},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := report.DecodeKeyboard(tt.raw, tt.offset)
			require.True(t, ok)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestDecodeKeyboardUndecodable(t *testing.T) {
	for _, n := range []int{0, 1, 2} {
		raw := make([]byte, n)
		out, ok := report.DecodeKeyboard(raw, report.DefaultNKROOffset)
		assert.False(t, ok, "length %d must not decode", n)
		assert.Equal(t, report.Keyboard{}, out, "failed decode must be zero-filled")
	}
}

func TestDecodeKeyboardEmptyBitmap(t *testing.T) {
	out, ok := report.DecodeKeyboard(make([]byte, 3), report.DefaultNKROOffset)
	require.True(t, ok)
	assert.Equal(t, report.Keyboard{}, out, "all-clear bitmap is an all-keys-released report")
}

func TestDecodeMouseLengthDispatch(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want report.Mouse
	}{
		{"3 bytes, wheel zero", []byte{0x01, 0x02, 0x03}, report.Mouse{1, 2, 3, 0}},
		{"5 bytes, id dropped", []byte{0x00, 0x01, 0x02, 0x03, 0x04}, report.Mouse{1, 2, 3, 4}},
		{"4 bytes, leading id", []byte{0x01, 0x05, 0x02, 0x03}, report.Mouse{5, 2, 3, 0}},
		{"4 bytes, raw buttons", []byte{0x06, 0x01, 0x02, 0x03}, report.Mouse{6, 1, 2, 3}},
		{"padded multi-axis", []byte{0xAA, 0x01, 0x7F, 0x00, 0x81, 0x00, 0xFF, 0x00}, report.Mouse{0x01, 0x7F, 0x81, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := report.DecodeMouse(tt.raw)
			require.True(t, ok)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestDecodeMouseUndecodable(t *testing.T) {
	for _, n := range []int{0, 1, 2, 6} {
		raw := make([]byte, n)
		out, ok := report.DecodeMouse(raw)
		assert.False(t, ok, "length %d must not decode", n)
		assert.Equal(t, report.Mouse{}, out)
	}
}

func TestMouseAccessors(t *testing.T) {
	m := report.Mouse{0x03, 0xFF, 0x01, 0x80}
	assert.Equal(t, byte(0x03), m.Buttons())
	assert.Equal(t, int8(-1), m.DX())
	assert.Equal(t, int8(1), m.DY())
	assert.Equal(t, int8(-128), m.Wheel())
}
