package sim

import (
	"github.com/hidlink/hidlink/bridge"
	"github.com/hidlink/hidlink/report"
)

// Sent is one report as the sink received it.
type Sent struct {
	ID   report.ID
	Data []byte
}

// Sink is a recording bridge.ReportSink with fault injection.
type Sink struct {
	Reports []Sent

	// BusyFor makes the next N Send calls return bridge.ErrBusy.
	BusyFor int
	// FailNext, when set, is returned by the next Send and cleared.
	FailNext error

	down   bool
	Resets int
}

// NewSink returns an idle recording sink.
func NewSink() *Sink { return &Sink{} }

// SetDown controls the wireless disconnect signal.
func (s *Sink) SetDown(down bool) { s.down = down }

// Last returns the most recently accepted report, or nil.
func (s *Sink) Last() *Sent {
	if len(s.Reports) == 0 {
		return nil
	}
	return &s.Reports[len(s.Reports)-1]
}

func (s *Sink) Send(id report.ID, data []byte) error {
	if s.FailNext != nil {
		err := s.FailNext
		s.FailNext = nil
		return err
	}
	if s.BusyFor > 0 {
		s.BusyFor--
		return bridge.ErrBusy
	}
	s.Reports = append(s.Reports, Sent{ID: id, Data: append([]byte(nil), data...)})
	return nil
}

func (s *Sink) Disconnected() bool { return s.down }

func (s *Sink) Reset() error {
	s.down = false
	s.Resets++
	return nil
}
