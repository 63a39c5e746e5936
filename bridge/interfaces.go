package bridge

import (
	"errors"
	"time"

	"github.com/hidlink/hidlink/registry"
	"github.com/hidlink/hidlink/report"
)

// TopologyEvent is the result of one topology analysis of the host bus.
type TopologyEvent uint8

const (
	// TopologyNone means nothing changed since the last analysis.
	TopologyNone TopologyEvent = iota
	// TopologyConnect means a device appeared and needs enumeration.
	TopologyConnect
	// TopologyDisconnect means the attached device went away.
	TopologyDisconnect
)

// ErrNAK is returned by Transact when the device had no data this cycle.
// It is the expected outcome of most polls and is never escalated.
var ErrNAK = errors.New("hostbus: no data (NAK)")

// HostBus is the host-side transaction and enumeration collaborator.
// The engine never originates transactions itself; it only supplies a
// valid endpoint/phase pair per attempt.
type HostBus interface {
	// AnalyzeTopology processes pending hot-plug state and reports what
	// changed.
	AnalyzeTopology() TopologyEvent
	// InitializeDevice enumerates the newly attached device.
	InitializeDevice() error
	// SearchByClass looks for an enumerated device of the given class,
	// returning its topology location and combined endpoint byte.
	SearchByClass(class registry.Class) (location, ep byte, ok bool)
	// SelectPort routes subsequent transactions to the given location.
	SelectPort(location byte)
	// Transact performs one IN transaction against ep using the given
	// toggle phase, reading into buf. A routine miss is ErrNAK.
	Transact(ep byte, phase1 bool, buf []byte, timeout time.Duration) (int, error)
	// Disconnected reports the link-level disconnect signal.
	Disconnected() bool
	// Reset re-initializes the bus layer; the recovery supervisor's
	// entry point.
	Reset() error
}

// ErrBusy is the distinguished "peer busy" delivery result. The flow
// controller's per-class policies hang off this value: keyboard reports
// are retried until delivered, mouse reports are dropped.
var ErrBusy = errors.New("sink: busy")

// ReportSink is the wireless report-delivery collaborator.
type ReportSink interface {
	// Send delivers one canonical report. ErrBusy means try again later
	// (or drop, per class policy); any other error is a link fault.
	Send(id report.ID, data []byte) error
	// Disconnected reports the wireless link state.
	Disconnected() bool
	// Reset re-initializes the wireless side.
	Reset() error
}
