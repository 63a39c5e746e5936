package recovery

import (
	"log/slog"
	"time"
)

// Watchdog is the last line of defense against an unanticipated lockup
// anywhere in the tick loop. The timer grows by the tick duration each
// cycle; Feed resets it. Crossing the ceiling invokes the safe-recovery
// callback exactly once and restarts the timer — recovery is local
// re-initialization, never a process restart, because a full reset would
// drop an active wireless connection.
type Watchdog struct {
	log     *slog.Logger
	enabled bool

	elapsed time.Duration
	ceiling time.Duration
	recover func()
	onFault func()
}

// NewWatchdog returns an enabled watchdog. recover is the safe-recovery
// procedure; onFault is the statistics hook.
func NewWatchdog(ceiling time.Duration, recoverFn func(), onFault func(), logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watchdog{
		log:     logger,
		enabled: true,
		ceiling: ceiling,
		recover: recoverFn,
		onFault: onFault,
	}
}

// SetEnabled turns timeout detection on or off.
func (w *Watchdog) SetEnabled(enabled bool) { w.enabled = enabled }

// Feed acknowledges liveness, resetting the timer to zero.
func (w *Watchdog) Feed() {
	w.elapsed = 0
}

// Elapsed returns the time since the last acknowledgement.
func (w *Watchdog) Elapsed() time.Duration { return w.elapsed }

// Tick advances the timer and fires safe recovery if the ceiling has
// been exceeded.
func (w *Watchdog) Tick(dt time.Duration) {
	if !w.enabled {
		return
	}
	w.elapsed += dt
	if w.elapsed <= w.ceiling {
		return
	}
	w.log.Error("liveness ceiling exceeded, running safe recovery", "elapsed", w.elapsed, "ceiling", w.ceiling)
	if w.onFault != nil {
		w.onFault()
	}
	if w.recover != nil {
		w.recover()
	}
	w.elapsed = 0
}
