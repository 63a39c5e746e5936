// Package logsink provides a report sink that writes every report to
// the raw logger instead of a wireless link. It is the default sink for
// bench runs where no peer is available.
package logsink

import (
	"github.com/hidlink/hidlink/internal/log"
	"github.com/hidlink/hidlink/report"
)

// Sink logs reports and accepts everything. It is never busy and never
// disconnected, so it exercises the bridging loop's happy path only.
type Sink struct {
	raw log.RawLogger
}

// New builds a sink over the given raw logger. raw may be nil.
func New(raw log.RawLogger) *Sink {
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	return &Sink{raw: raw}
}

func (s *Sink) Send(id report.ID, data []byte) error {
	s.raw.Log("sink/"+id.String(), data)
	return nil
}

func (s *Sink) Disconnected() bool { return false }

func (s *Sink) Reset() error { return nil }
