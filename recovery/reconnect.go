// Package recovery supervises the two independently-failing links of the
// bridging engine: it drives bounded reconnect state machines for the
// host-side bus and the wireless link, a liveness watchdog over the whole
// tick loop, and the process-wide error counters.
//
// Everything here is tick-driven. Delays are modeled as countdowns
// decremented by the tick duration, never as blocking sleeps, so the run
// loop's other duties are never starved.
package recovery

import (
	"log/slog"
	"time"
)

// Phase is the reconnect state machine phase.
type Phase uint8

const (
	// Idle means the link is believed healthy (or retries are exhausted
	// and the machine is waiting for the next disconnect event).
	Idle Phase = iota
	// WaitingToRetry counts down the settle delay before an attempt.
	WaitingToRetry
	// Attempting has invoked re-initialization and is waiting out the
	// post-init settle period before checking link health.
	Attempting
)

func (p Phase) String() string {
	switch p {
	case WaitingToRetry:
		return "waiting"
	case Attempting:
		return "attempting"
	default:
		return "idle"
	}
}

// ReconnectorConfig parameterizes one reconnect state machine. The two
// links get distinct retry ceilings: fewer for the host bus, more for the
// wireless link, reflecting their different transient-failure rates.
type ReconnectorConfig struct {
	// Name tags log lines.
	Name string
	// CheckDisconnect reports whether the link is currently down.
	CheckDisconnect func() bool
	// Reinit re-initializes the link.
	Reinit func() error
	// InitialDelay is the wait between a disconnect and the first attempt.
	InitialDelay time.Duration
	// RetryDelay is the longer backoff between failed attempts.
	RetryDelay time.Duration
	// Settle is the post-reinit wait before the health check.
	Settle time.Duration
	// MaxRetries bounds the attempts per disconnect event.
	MaxRetries int
	// OnDisconnect and OnReconnect are statistics hooks; OnRetry counts
	// each failed attempt.
	OnDisconnect func()
	OnReconnect  func()
	OnRetry      func()
}

// Reconnector is one bounded reconnect state machine.
type Reconnector struct {
	cfg     ReconnectorConfig
	log     *slog.Logger
	enabled bool

	phase   Phase
	delay   time.Duration
	settle  time.Duration
	retries int
	wasDown bool
}

// NewReconnector returns an enabled, idle machine.
func NewReconnector(cfg ReconnectorConfig, logger *slog.Logger) *Reconnector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconnector{
		cfg:     cfg,
		log:     logger.With("link", cfg.Name),
		enabled: true,
	}
}

// SetEnabled controls whether new reconnect cycles may start. An
// in-flight attempt always runs to completion; disabling only prevents
// the next cycle from starting.
func (r *Reconnector) SetEnabled(enabled bool) {
	r.enabled = enabled
	r.log.Info("reconnect enable changed", "enabled", enabled)
}

// Phase returns the current phase.
func (r *Reconnector) Phase() Phase { return r.phase }

// Retries returns the attempt count of the current cycle.
func (r *Reconnector) Retries() int { return r.retries }

// NotifyDisconnect starts a reconnect cycle if the machine is idle and
// enabled. Safe to call every tick the link looks down; only the first
// call of a cycle has any effect.
func (r *Reconnector) NotifyDisconnect() {
	if !r.enabled || r.phase != Idle {
		return
	}
	r.phase = WaitingToRetry
	r.delay = r.cfg.InitialDelay
	r.retries = 0
	r.log.Warn("disconnect observed, reconnect scheduled", "delay", r.cfg.InitialDelay)
	if r.cfg.OnDisconnect != nil {
		r.cfg.OnDisconnect()
	}
}

// Tick advances the machine by one tick of duration dt. The polled
// disconnect check is edge-triggered: once a cycle has been abandoned,
// a link that stays down does not restart it — only a fresh disconnect
// (the link coming up and going down again) does.
func (r *Reconnector) Tick(dt time.Duration) {
	if r.cfg.CheckDisconnect != nil {
		down := r.cfg.CheckDisconnect()
		if down && !r.wasDown {
			r.NotifyDisconnect()
		}
		r.wasDown = down
	}

	switch r.phase {
	case WaitingToRetry:
		if r.delay > dt {
			r.delay -= dt
			return
		}
		r.delay = 0
		r.beginAttempt()
	case Attempting:
		if r.settle > dt {
			r.settle -= dt
			return
		}
		r.settle = 0
		r.finishAttempt()
	}
}

// beginAttempt enforces the retry ceiling, re-initializes the link and
// enters the post-init settle wait.
func (r *Reconnector) beginAttempt() {
	if r.retries >= r.cfg.MaxRetries {
		r.log.Error("reconnect abandoned", "retries", r.retries)
		r.phase = Idle
		return
	}
	r.log.Info("reconnect attempt", "attempt", r.retries+1, "max", r.cfg.MaxRetries)
	if err := r.cfg.Reinit(); err != nil {
		r.log.Warn("reinit failed", "error", err)
		// Fall through to the health check anyway: the link may recover
		// during the settle period.
	}
	r.phase = Attempting
	r.settle = r.cfg.Settle
}

// finishAttempt checks link health after the settle period.
func (r *Reconnector) finishAttempt() {
	if r.cfg.CheckDisconnect == nil || !r.cfg.CheckDisconnect() {
		r.log.Info("reconnect successful", "attempts", r.retries+1)
		r.phase = Idle
		r.retries = 0
		if r.cfg.OnReconnect != nil {
			r.cfg.OnReconnect()
		}
		return
	}
	r.retries++
	if r.cfg.OnRetry != nil {
		r.cfg.OnRetry()
	}
	r.log.Warn("reconnect attempt failed", "retries", r.retries, "backoff", r.cfg.RetryDelay)
	if r.retries >= r.cfg.MaxRetries {
		r.log.Error("reconnect abandoned", "retries", r.retries)
		r.phase = Idle
		return
	}
	r.phase = WaitingToRetry
	r.delay = r.cfg.RetryDelay
}
