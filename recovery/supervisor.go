package recovery

import (
	"log/slog"
	"time"
)

// Config carries the supervisor tunables. Defaults mirror the reference
// system: the host bus gives up sooner than the wireless link.
type Config struct {
	BusInitialDelay time.Duration `help:"Delay before the first host bus reconnect attempt" default:"1s"`
	BusRetryDelay   time.Duration `help:"Backoff between failed host bus reconnect attempts" default:"2s"`
	BusSettle       time.Duration `help:"Post-reinit settle before the host bus health check" default:"500ms"`
	BusMaxRetries   int           `help:"Host bus reconnect attempts per disconnect" default:"3"`

	LinkInitialDelay time.Duration `help:"Delay before the first wireless reconnect attempt" default:"1s"`
	LinkRetryDelay   time.Duration `help:"Backoff between failed wireless reconnect attempts" default:"3s"`
	LinkSettle       time.Duration `help:"Post-reinit settle before the wireless health check" default:"100ms"`
	LinkMaxRetries   int           `help:"Wireless reconnect attempts per disconnect" default:"5"`

	WatchdogCeiling time.Duration `help:"Liveness ceiling before safe recovery runs" default:"5s"`
	SummaryInterval time.Duration `help:"Interval between error statistics summaries" default:"10s"`
}

// Link is the slice of a transport the supervisor needs: a health signal
// and a re-initialization entry point.
type Link interface {
	Disconnected() bool
	Reset() error
}

// Supervisor bundles the two reconnect machines, the watchdog and the
// error counters, advancing them all once per tick.
type Supervisor struct {
	Bus      *Reconnector
	Link     *Reconnector
	Watchdog *Watchdog
	Stats    *Stats

	summaryEvery time.Duration
	sinceSummary time.Duration
}

// NewSupervisor wires the supervisor to the host bus and wireless link.
// safeRecover is the watchdog's unconditional bus re-initialization.
func NewSupervisor(cfg Config, bus, link Link, safeRecover func(), logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	stats := NewStats(logger)

	s := &Supervisor{
		Stats:        stats,
		summaryEvery: cfg.SummaryInterval,
	}
	s.Bus = NewReconnector(ReconnectorConfig{
		Name:            "hostbus",
		CheckDisconnect: bus.Disconnected,
		Reinit:          bus.Reset,
		InitialDelay:    cfg.BusInitialDelay,
		RetryDelay:      cfg.BusRetryDelay,
		Settle:          cfg.BusSettle,
		MaxRetries:      cfg.BusMaxRetries,
		OnDisconnect:    stats.BusDisconnect,
		OnReconnect:     stats.BusConnect,
		OnRetry:         func() { stats.BusRetries++ },
	}, logger)
	s.Link = NewReconnector(ReconnectorConfig{
		Name:            "wireless",
		CheckDisconnect: link.Disconnected,
		Reinit:          link.Reset,
		InitialDelay:    cfg.LinkInitialDelay,
		RetryDelay:      cfg.LinkRetryDelay,
		Settle:          cfg.LinkSettle,
		MaxRetries:      cfg.LinkMaxRetries,
		OnDisconnect:    stats.LinkDisconnect,
		OnReconnect:     stats.LinkConnect,
		OnRetry:         func() { stats.LinkRetries++ },
	}, logger)
	s.Watchdog = NewWatchdog(cfg.WatchdogCeiling, func() {
		stats.Reset()
		safeRecover()
	}, stats.WatchdogTimeout, logger)
	return s
}

// Tick advances all three state machines and emits the periodic
// statistics summary.
func (s *Supervisor) Tick(dt time.Duration) {
	s.Bus.Tick(dt)
	s.Link.Tick(dt)
	s.Watchdog.Tick(dt)

	if s.summaryEvery <= 0 {
		return
	}
	s.sinceSummary += dt
	if s.sinceSummary >= s.summaryEvery {
		s.Stats.LogSummary()
		s.sinceSummary = 0
	}
}
