package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidlink/hidlink/registry"
)

func TestAddUntilFull(t *testing.T) {
	var tab registry.Table

	for n := 0; n < registry.Capacity; n++ {
		idx, err := tab.Add(byte(n), registry.ClassKeyboard, 0x81)
		require.NoError(t, err)
		assert.Equal(t, n, idx)
	}
	assert.Equal(t, registry.Capacity, tab.ActiveCount())

	_, err := tab.Add(9, registry.ClassMouse, 0x82)
	assert.ErrorIs(t, err, registry.ErrFull)
	assert.Equal(t, registry.Capacity, tab.ActiveCount(), "failed add must not grow the count")
}

func TestAddForcesToggleToStartPhase(t *testing.T) {
	var tab registry.Table

	// Endpoint handed in with the toggle bit set: discovery after a fresh
	// enumeration always starts at DATA0 on the peer side.
	idx, err := tab.Add(1, registry.ClassMouse, 0x84|0x80)
	require.NoError(t, err)

	slot, ok := tab.Get(idx)
	require.True(t, ok)
	assert.Equal(t, byte(0x04), slot.Endpoint)
	assert.False(t, tab.TogglePhase(idx))
}

func TestRemoveAndReuseLeaksNothing(t *testing.T) {
	var tab registry.Table

	idx, err := tab.Add(2, registry.ClassKeyboard, 0x81)
	require.NoError(t, err)
	tab.SetReport(idx, []byte{1, 2, 3, 4, 5, 6, 7, 8})

	tab.Remove(idx)
	assert.Equal(t, 0, tab.ActiveCount())
	_, ok := tab.Get(idx)
	assert.False(t, ok)

	reused, err := tab.Add(3, registry.ClassMouse, 0x82)
	require.NoError(t, err)
	assert.Equal(t, idx, reused, "freed slot should be reused first")

	slot, ok := tab.Get(reused)
	require.True(t, ok)
	assert.Equal(t, [8]byte{}, slot.Report, "evicted device's report must not leak")
	assert.Equal(t, registry.ClassMouse, slot.Class)
}

func TestRemoveIsSafeOnBadIndices(t *testing.T) {
	var tab registry.Table
	tab.Remove(-1)
	tab.Remove(0)
	tab.Remove(registry.Capacity)
	assert.Equal(t, 0, tab.ActiveCount())
}

func TestFindByClass(t *testing.T) {
	var tab registry.Table
	_, found := tab.FindByClass(registry.ClassKeyboard)
	assert.False(t, found)

	kbd, _ := tab.Add(0, registry.ClassKeyboard, 0x81)
	mouse, _ := tab.Add(0, registry.ClassMouse, 0x82)

	idx, found := tab.FindByClass(registry.ClassMouse)
	require.True(t, found)
	assert.Equal(t, mouse, idx)

	idx, found = tab.FindByClass(registry.ClassKeyboard)
	require.True(t, found)
	assert.Equal(t, kbd, idx)

	_, found = tab.FindByClass(registry.ClassGamepad)
	assert.False(t, found)
}

func TestTogglePhaseRoundTrip(t *testing.T) {
	var tab registry.Table
	idx, _ := tab.Add(0, registry.ClassKeyboard, 0x81)

	assert.False(t, tab.TogglePhase(idx))
	tab.SetTogglePhase(idx, true)
	assert.True(t, tab.TogglePhase(idx))
	tab.SetTogglePhase(idx, false)
	assert.False(t, tab.TogglePhase(idx))

	// Fail-safe default on invalid index.
	assert.False(t, tab.TogglePhase(99))
}

func TestSetReportBounds(t *testing.T) {
	var tab registry.Table
	idx, _ := tab.Add(0, registry.ClassKeyboard, 0x81)

	long := make([]byte, registry.ReportCap+1)
	for i := range long {
		long[i] = 0xEE
	}
	tab.SetReport(idx, long)
	slot, _ := tab.Get(idx)
	assert.Equal(t, [8]byte{}, slot.Report, "over-long report must be dropped, not truncated into the slot")

	tab.SetReport(idx, []byte{0xAA, 0xBB})
	slot, _ = tab.Get(idx)
	assert.Equal(t, byte(0xAA), slot.Report[0])
	assert.Equal(t, byte(0xBB), slot.Report[1])
}

func TestResetIsIdempotent(t *testing.T) {
	var tab registry.Table
	tab.Add(0, registry.ClassKeyboard, 0x81)
	tab.Reset()
	tab.Reset()
	assert.Equal(t, 0, tab.ActiveCount())
	assert.False(t, tab.IsValid(0))
}
