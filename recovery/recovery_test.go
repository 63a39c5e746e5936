package recovery_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidlink/hidlink/recovery"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeLink simulates a transport whose health the test scripts.
type fakeLink struct {
	down    bool
	reinits int
	// healAfter heals the link once this many reinits have happened.
	healAfter int
}

func (f *fakeLink) Disconnected() bool { return f.down }

func (f *fakeLink) Reset() error {
	f.reinits++
	if f.healAfter > 0 && f.reinits >= f.healAfter {
		f.down = false
	}
	return nil
}

func newReconnector(link *fakeLink, maxRetries int) *recovery.Reconnector {
	return recovery.NewReconnector(recovery.ReconnectorConfig{
		Name:            "test",
		CheckDisconnect: link.Disconnected,
		Reinit:          link.Reset,
		InitialDelay:    10 * time.Millisecond,
		RetryDelay:      20 * time.Millisecond,
		Settle:          5 * time.Millisecond,
		MaxRetries:      maxRetries,
	}, quiet())
}

func runTicks(r *recovery.Reconnector, n int, dt time.Duration) {
	for i := 0; i < n; i++ {
		r.Tick(dt)
	}
}

func TestReconnectSucceedsFirstAttempt(t *testing.T) {
	link := &fakeLink{down: true, healAfter: 1}
	r := newReconnector(link, 3)

	// 10ms initial delay + 5ms settle at 1ms ticks, with slack.
	runTicks(r, 30, time.Millisecond)

	assert.Equal(t, recovery.Idle, r.Phase())
	assert.Equal(t, 1, link.reinits)
	assert.Equal(t, 0, r.Retries())
}

func TestReconnectRetryCeiling(t *testing.T) {
	link := &fakeLink{down: true} // never heals
	r := newReconnector(link, 3)

	// Run long enough for every attempt and backoff to elapse.
	runTicks(r, 500, time.Millisecond)

	assert.Equal(t, recovery.Idle, r.Phase(), "machine must give up")
	assert.Equal(t, 3, link.reinits, "exactly max_retries reinit attempts")

	// Link still down: no further attempts without a fresh disconnect.
	runTicks(r, 500, time.Millisecond)
	assert.Equal(t, 3, link.reinits)

	// Link heals, then drops again: a new cycle starts.
	link.down = false
	runTicks(r, 5, time.Millisecond)
	link.down = true
	link.healAfter = 4
	runTicks(r, 100, time.Millisecond)
	assert.Equal(t, 4, link.reinits, "new disconnect event restarts the cycle")
	assert.Equal(t, recovery.Idle, r.Phase())
}

func TestReconnectDisabledPreventsNewCycle(t *testing.T) {
	link := &fakeLink{down: true, healAfter: 1}
	r := newReconnector(link, 3)
	r.SetEnabled(false)

	runTicks(r, 100, time.Millisecond)
	assert.Equal(t, 0, link.reinits)
	assert.Equal(t, recovery.Idle, r.Phase())
}

func TestReconnectDelayCountdown(t *testing.T) {
	link := &fakeLink{down: true, healAfter: 1}
	r := newReconnector(link, 3)

	r.Tick(time.Millisecond) // observes the disconnect
	assert.Equal(t, recovery.WaitingToRetry, r.Phase())

	// 8 more ms: still inside the 10ms initial delay.
	runTicks(r, 8, time.Millisecond)
	assert.Equal(t, recovery.WaitingToRetry, r.Phase())
	assert.Equal(t, 0, link.reinits)

	// Crossing the delay triggers the attempt (then the settle wait).
	runTicks(r, 2, time.Millisecond)
	assert.Equal(t, 1, link.reinits)
	assert.Equal(t, recovery.Attempting, r.Phase())
}

func TestWatchdogFires(t *testing.T) {
	recovered := 0
	faults := 0
	w := recovery.NewWatchdog(50*time.Millisecond, func() { recovered++ }, func() { faults++ }, quiet())

	for i := 0; i < 51; i++ {
		w.Tick(time.Millisecond)
	}
	require.Equal(t, 1, recovered, "exactly one safe-recovery invocation")
	assert.Equal(t, 1, faults)
	assert.Equal(t, time.Duration(0), w.Elapsed(), "timer resets immediately after recovery")

	// Feeding keeps it quiet indefinitely.
	for i := 0; i < 200; i++ {
		w.Tick(time.Millisecond)
		w.Feed()
	}
	assert.Equal(t, 1, recovered)
}

func TestWatchdogDisabled(t *testing.T) {
	recovered := 0
	w := recovery.NewWatchdog(10*time.Millisecond, func() { recovered++ }, nil, quiet())
	w.SetEnabled(false)
	for i := 0; i < 100; i++ {
		w.Tick(time.Millisecond)
	}
	assert.Equal(t, 0, recovered)
}

func TestSupervisorWiresStats(t *testing.T) {
	bus := &fakeLink{}
	link := &fakeLink{}
	safeRecovers := 0

	cfg := recovery.Config{
		BusInitialDelay:  5 * time.Millisecond,
		BusRetryDelay:    5 * time.Millisecond,
		BusSettle:        time.Millisecond,
		BusMaxRetries:    2,
		LinkInitialDelay: 5 * time.Millisecond,
		LinkRetryDelay:   5 * time.Millisecond,
		LinkSettle:       time.Millisecond,
		LinkMaxRetries:   2,
		WatchdogCeiling:  30 * time.Millisecond,
		SummaryInterval:  time.Hour,
	}
	s := recovery.NewSupervisor(cfg, bus, link, func() { safeRecovers++ }, quiet())

	bus.down = true
	bus.healAfter = 1
	for i := 0; i < 50; i++ {
		s.Tick(time.Millisecond)
		s.Watchdog.Feed()
	}
	assert.Equal(t, uint32(1), s.Stats.BusDisconnects)
	assert.Equal(t, uint32(1), s.Stats.BusConnects)
	assert.Equal(t, 0, safeRecovers)

	// Starve the watchdog.
	for i := 0; i < 31; i++ {
		s.Tick(time.Millisecond)
	}
	assert.Equal(t, 1, safeRecovers)
	assert.Equal(t, uint32(1), s.Stats.WatchdogTimeouts)
}
