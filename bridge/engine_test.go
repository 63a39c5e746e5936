package bridge_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidlink/hidlink/bridge"
	"github.com/hidlink/hidlink/internal/sim"
	"github.com/hidlink/hidlink/registry"
	"github.com/hidlink/hidlink/report"
)

func testConfig() bridge.Config {
	return bridge.Config{
		TickInterval:    time.Millisecond,
		SettleDelay:     0,
		TransactTimeout: time.Millisecond,
		NKROOffset:      report.DefaultNKROOffset,
	}
}

func newEngine(t *testing.T, cfg bridge.Config, bus *sim.Bus, sink *sim.Sink, hooks bridge.StatsHooks) *bridge.Engine {
	t.Helper()
	e, err := bridge.New(cfg, bus, sink, hooks, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	require.NoError(t, err)
	return e
}

func tick(t *testing.T, e *bridge.Engine, n int, dt time.Duration) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, e.Tick(dt))
	}
}

func keyboardAt(loc, ep byte) *sim.Device {
	return &sim.Device{Class: registry.ClassKeyboard, Location: loc, Endpoint: ep}
}

func mouseAt(loc, ep byte) *sim.Device {
	return &sim.Device{Class: registry.ClassMouse, Location: loc, Endpoint: ep}
}

func TestEngineBridgesKeyboardEndToEnd(t *testing.T) {
	bus := sim.NewBus()
	sink := sim.NewSink()
	e := newEngine(t, testConfig(), bus, sink, bridge.StatsHooks{})

	kbd := keyboardAt(1, 0x01)
	kbd.Queue([]byte{0x02, 0, 0x04, 0, 0, 0, 0, 0})
	bus.Attach(kbd)

	// Attach tick, enumerate tick, then the first poll tick delivers.
	tick(t, e, 2, time.Millisecond)
	assert.Equal(t, bridge.StateReady, e.State())
	tick(t, e, 1, time.Millisecond)

	require.Len(t, sink.Reports, 1)
	assert.Equal(t, report.KeyboardID, sink.Reports[0].ID)
	assert.Equal(t, []byte{0x02, 0, 0x04, 0, 0, 0, 0, 0}, sink.Reports[0].Data)
	assert.Zero(t, bus.PhaseErrors)
}

func TestEngineSettleDelayCountsAcrossTicks(t *testing.T) {
	cfg := testConfig()
	cfg.SettleDelay = 200 * time.Millisecond

	bus := sim.NewBus()
	e := newEngine(t, cfg, bus, sim.NewSink(), bridge.StatsHooks{})
	bus.Attach(keyboardAt(1, 0x01))

	tick(t, e, 1, 100*time.Millisecond)
	assert.Equal(t, bridge.StateDeviceDetected, e.State())
	assert.Zero(t, bus.Enums, "no enumeration during settle")

	tick(t, e, 1, 100*time.Millisecond)
	assert.Equal(t, bridge.StateEnumerating, e.State())

	tick(t, e, 1, 100*time.Millisecond)
	assert.Equal(t, bridge.StateReady, e.State())
	assert.Equal(t, 1, bus.Enums)
}

func TestEngineOneTransactionPerDevicePerTick(t *testing.T) {
	bus := sim.NewBus()
	sink := sim.NewSink()
	e := newEngine(t, testConfig(), bus, sink, bridge.StatsHooks{})

	kbd := keyboardAt(1, 0x01)
	for i := byte(0); i < 3; i++ {
		kbd.Queue([]byte{0, 0, 0x04 + i, 0, 0, 0, 0, 0})
	}
	bus.Attach(kbd)
	tick(t, e, 2, time.Millisecond)

	for want := 1; want <= 3; want++ {
		tick(t, e, 1, time.Millisecond)
		assert.Len(t, sink.Reports, want)
	}
	assert.Zero(t, kbd.QueueLen())
	assert.Zero(t, bus.PhaseErrors)
}

func TestEngineKeyboardBusyBlocksTick(t *testing.T) {
	bus := sim.NewBus()
	sink := sim.NewSink()
	e := newEngine(t, testConfig(), bus, sink, bridge.StatsHooks{})

	kbd := keyboardAt(1, 0x01)
	mou := mouseAt(2, 0x02)
	kbd.Queue([]byte{0, 0, 0x04, 0, 0, 0, 0, 0})
	bus.Attach(kbd, mou)
	tick(t, e, 2, time.Millisecond)

	// Keyboard polls before the mouse slot in this topology, so the
	// busy rejection parks the report mid-tick. The mouse report queued
	// afterwards must wait until the parked bytes are flushed.
	sink.BusyFor = 2
	tick(t, e, 1, time.Millisecond)
	assert.True(t, e.PendingKeyboard())
	mou.Queue([]byte{0x01, 5, 0})

	tick(t, e, 1, time.Millisecond)
	assert.True(t, e.PendingKeyboard(), "still busy, still parked")
	assert.Empty(t, sink.Reports)
	assert.Equal(t, 1, mou.QueueLen(), "no polling while a keyboard report is parked")

	// The flush succeeds first, then the same tick resumes polling, so
	// the parked keyboard bytes land strictly before the fresher mouse
	// sample.
	tick(t, e, 1, time.Millisecond)
	assert.False(t, e.PendingKeyboard())
	require.Len(t, sink.Reports, 2)
	assert.Equal(t, report.KeyboardID, sink.Reports[0].ID)
	assert.Equal(t, []byte{0, 0, 0x04, 0, 0, 0, 0, 0}, sink.Reports[0].Data)
	assert.Equal(t, report.MouseID, sink.Reports[1].ID)
}

func TestEngineMouseDroppedWhenBusy(t *testing.T) {
	bus := sim.NewBus()
	sink := sim.NewSink()
	e := newEngine(t, testConfig(), bus, sink, bridge.StatsHooks{})

	mou := mouseAt(2, 0x02)
	mou.Queue([]byte{0x01, 5, 0})
	mou.Queue([]byte{0x00, 6, 0})
	bus.Attach(mou)
	tick(t, e, 2, time.Millisecond)

	sink.BusyFor = 1
	tick(t, e, 2, time.Millisecond)

	require.Len(t, sink.Reports, 1, "busy mouse sample dropped, next one delivered")
	assert.Equal(t, []byte{0x00, 6, 0, 0}, sink.Reports[0].Data)
	assert.False(t, e.PendingKeyboard())
}

func TestEngineEnumerationFailureReturnsToIdle(t *testing.T) {
	bus := sim.NewBus()
	enumFails := 0
	hooks := bridge.StatsHooks{EnumFail: func() { enumFails++ }}
	e := newEngine(t, testConfig(), bus, sim.NewSink(), hooks)

	bus.EnumFailures = 1
	bus.Attach(keyboardAt(1, 0x01))
	tick(t, e, 2, time.Millisecond)

	assert.Equal(t, bridge.StateIdle, e.State())
	assert.Equal(t, 1, enumFails)

	// A fresh hot-plug signal restarts the sequence.
	bus.Attach(keyboardAt(1, 0x01))
	tick(t, e, 2, time.Millisecond)
	assert.Equal(t, bridge.StateReady, e.State())
}

func TestEngineDetachEvictsAndIdles(t *testing.T) {
	bus := sim.NewBus()
	sink := sim.NewSink()
	e := newEngine(t, testConfig(), bus, sink, bridge.StatsHooks{})

	bus.Attach(keyboardAt(1, 0x01), mouseAt(2, 0x02))
	tick(t, e, 3, time.Millisecond)
	assert.Equal(t, 2, e.Devices().ActiveCount())

	bus.Detach()
	tick(t, e, 1, time.Millisecond)
	assert.Equal(t, bridge.StateIdle, e.State())
	assert.Equal(t, 0, e.Devices().ActiveCount())
}

func TestEngineLinkFaultEvictsAllSlots(t *testing.T) {
	bus := sim.NewBus()
	e := newEngine(t, testConfig(), bus, sim.NewSink(), bridge.StatsHooks{})

	bus.Attach(keyboardAt(1, 0x01), mouseAt(2, 0x02))
	tick(t, e, 3, time.Millisecond)
	assert.Equal(t, 2, e.Devices().ActiveCount())

	bus.SetDown(true)
	tick(t, e, 1, time.Millisecond)
	assert.Equal(t, 0, e.Devices().ActiveCount())
	assert.Equal(t, bridge.StateIdle, e.State())
}

func TestEngineDiscoveryDoesNotDuplicate(t *testing.T) {
	bus := sim.NewBus()
	e := newEngine(t, testConfig(), bus, sim.NewSink(), bridge.StatsHooks{})

	bus.Attach(keyboardAt(1, 0x01))
	tick(t, e, 10, time.Millisecond)

	assert.Equal(t, 1, e.Devices().ActiveCount())
}

func TestEngineReinitDropsParkedReport(t *testing.T) {
	bus := sim.NewBus()
	sink := sim.NewSink()
	e := newEngine(t, testConfig(), bus, sink, bridge.StatsHooks{})

	kbd := keyboardAt(1, 0x01)
	kbd.Queue([]byte{0, 0, 0x04, 0, 0, 0, 0, 0})
	bus.Attach(kbd)
	tick(t, e, 2, time.Millisecond)

	sink.BusyFor = 10
	tick(t, e, 1, time.Millisecond)
	require.True(t, e.PendingKeyboard())

	e.Reinit()
	assert.False(t, e.PendingKeyboard())
	assert.Equal(t, bridge.StateIdle, e.State())
	assert.Equal(t, 1, bus.Resets)
	assert.Equal(t, 0, e.Devices().ActiveCount())
}

func TestEngineNKROKeyboardNormalized(t *testing.T) {
	bus := sim.NewBus()
	sink := sim.NewSink()
	e := newEngine(t, testConfig(), bus, sink, bridge.StatsHooks{})

	kbd := keyboardAt(1, 0x01)
	// Bitmap report: byte 2 bit 0 set, position 0, keycode 0+offset.
	kbd.Queue([]byte{0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
	bus.Attach(kbd)
	tick(t, e, 3, time.Millisecond)

	require.Len(t, sink.Reports, 1)
	assert.Equal(t, []byte{0x00, 0, 0x04, 0, 0, 0, 0, 0}, sink.Reports[0].Data)
}

func TestEngineUndecodableMouseReportSkipped(t *testing.T) {
	bus := sim.NewBus()
	sink := sim.NewSink()
	e := newEngine(t, testConfig(), bus, sink, bridge.StatsHooks{})

	mou := mouseAt(2, 0x02)
	mou.Queue([]byte{0x01, 2, 3, 4, 5, 6}) // 6 bytes has no decode rule
	mou.Queue([]byte{0x01, 2, 3})
	bus.Attach(mou)
	tick(t, e, 4, time.Millisecond)

	require.Len(t, sink.Reports, 1)
	assert.Equal(t, []byte{0x01, 2, 3, 0}, sink.Reports[0].Data)
	assert.Zero(t, bus.PhaseErrors, "undecodable report still consumed the transaction")
}
