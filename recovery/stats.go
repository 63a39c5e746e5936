package recovery

import "log/slog"

// Stats holds the process-wide error counters. Counters only ever grow;
// they are reset solely by explicit re-initialization at boot.
type Stats struct {
	BusConnects     uint32
	BusDisconnects  uint32
	EnumFailures    uint32
	BusCommFailures uint32

	LinkConnects     uint32
	LinkDisconnects  uint32
	LinkCommFailures uint32

	WatchdogTimeouts uint32
	Resets           uint32

	BusRetries  uint32
	LinkRetries uint32

	log *slog.Logger
}

// NewStats returns a zeroed counter set logging through logger.
func NewStats(logger *slog.Logger) *Stats {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stats{log: logger}
}

func (s *Stats) BusConnect() {
	s.BusConnects++
	s.log.Info("host bus connected", "total", s.BusConnects)
}

func (s *Stats) BusDisconnect() {
	s.BusDisconnects++
	s.log.Warn("host bus disconnected", "total", s.BusDisconnects)
}

func (s *Stats) EnumFail() {
	s.EnumFailures++
	s.log.Warn("device enumeration failed", "total", s.EnumFailures)
}

func (s *Stats) BusCommFail() {
	s.BusCommFailures++
	s.log.Warn("host bus communication failed", "total", s.BusCommFailures)
}

func (s *Stats) LinkConnect() {
	s.LinkConnects++
	s.log.Info("wireless link connected", "total", s.LinkConnects)
}

func (s *Stats) LinkDisconnect() {
	s.LinkDisconnects++
	s.log.Warn("wireless link disconnected", "total", s.LinkDisconnects)
}

func (s *Stats) LinkCommFail() {
	s.LinkCommFailures++
	s.log.Warn("wireless link communication failed", "total", s.LinkCommFailures)
}

func (s *Stats) WatchdogTimeout() {
	s.WatchdogTimeouts++
	s.log.Error("watchdog timeout", "total", s.WatchdogTimeouts)
}

func (s *Stats) Reset() {
	s.Resets++
	s.log.Warn("bus layer reset", "total", s.Resets)
}

// LogSummary emits the one-line counter summary. The format is a side
// effect for humans, not a stability contract.
func (s *Stats) LogSummary() {
	s.log.Info("error statistics",
		"bus_connect", s.BusConnects,
		"bus_disconnect", s.BusDisconnects,
		"enum_fail", s.EnumFailures,
		"bus_comm_fail", s.BusCommFailures,
		"link_connect", s.LinkConnects,
		"link_disconnect", s.LinkDisconnects,
		"link_comm_fail", s.LinkCommFailures,
		"watchdog_timeout", s.WatchdogTimeouts,
		"resets", s.Resets,
		"bus_retries", s.BusRetries,
		"link_retries", s.LinkRetries,
	)
}
