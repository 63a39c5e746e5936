package bridge

import (
	"errors"

	"github.com/hidlink/hidlink/report"
)

// keyboardFlow implements the retry-until-delivered policy. Losing a
// key transition corrupts the remote key state indefinitely (a stuck
// key), so a busy rejection parks the exact report bytes and every
// subsequent tick retries them before any other work.
type keyboardFlow struct {
	pending bool
	parked  report.Keyboard
}

// Deliver attempts to send rep. On ErrBusy the report is parked and
// false is returned; other errors propagate.
func (f *keyboardFlow) Deliver(sink ReportSink, rep report.Keyboard) (bool, error) {
	err := sink.Send(report.KeyboardID, rep[:])
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrBusy) {
		f.parked = rep
		f.pending = true
		return false, nil
	}
	return false, err
}

// Flush retries the parked report. It returns true when nothing is
// pending anymore; while it returns false the caller must do no other
// work this tick.
func (f *keyboardFlow) Flush(sink ReportSink) (bool, error) {
	if !f.pending {
		return true, nil
	}
	err := sink.Send(report.KeyboardID, f.parked[:])
	if err == nil {
		f.pending = false
		return true, nil
	}
	if errors.Is(err, ErrBusy) {
		return false, nil
	}
	return false, err
}

// Pending reports whether a parked keyboard report awaits delivery.
func (f *keyboardFlow) Pending() bool { return f.pending }

// deliverMouse implements the drop-on-busy policy. Mouse movement is a
// continuous differential signal: a dropped sample is a momentary,
// self-correcting stutter, whereas blocking to retry would starve
// keyboard servicing and accumulate unbounded lag.
func deliverMouse(sink ReportSink, rep report.Mouse) error {
	err := sink.Send(report.MouseID, rep[:])
	if errors.Is(err, ErrBusy) {
		return nil
	}
	return err
}
