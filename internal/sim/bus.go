// Package sim provides an in-memory host bus and report sink. It backs
// the engine's tests and the `run --host sim` mode, where it plays a
// scripted keyboard and mouse against the real bridging loop.
package sim

import (
	"errors"
	"time"

	"github.com/hidlink/hidlink/bridge"
	"github.com/hidlink/hidlink/endpoint"
	"github.com/hidlink/hidlink/registry"
)

// Device is one simulated device on the bus.
type Device struct {
	Class    registry.Class
	Location byte
	Endpoint byte

	queue [][]byte
	phase bool
}

// Queue appends one raw report to the device's IN queue.
func (d *Device) Queue(data []byte) {
	d.queue = append(d.queue, append([]byte(nil), data...))
}

// QueueLen reports how many reports are waiting.
func (d *Device) QueueLen() int { return len(d.queue) }

// Bus is a scripted bridge.HostBus. All mutation happens through the
// engine's tick or the scripting methods; there is no locking because
// the bridging model is single-threaded.
type Bus struct {
	devices []*Device

	attachPending bool
	detachPending bool
	enumerated    bool
	selected      byte
	down          bool

	// Fault injection.
	EnumFailures int
	TransactErr  error

	// Counters for assertions.
	PhaseErrors int
	Resets      int
	Enums       int
}

// NewBus returns an empty bus with no device attached.
func NewBus() *Bus { return &Bus{} }

// Attach adds devices and raises the hot-plug connect signal.
func (b *Bus) Attach(devs ...*Device) {
	b.devices = append(b.devices, devs...)
	b.attachPending = true
}

// Detach raises the hot-plug disconnect signal and drops all devices.
func (b *Bus) Detach() {
	b.devices = nil
	b.detachPending = true
	b.enumerated = false
}

// SetDown controls the link-level disconnect signal without a hot-plug
// event, the shape a cable fault takes.
func (b *Bus) SetDown(down bool) { b.down = down }

// Find returns the simulated device at the given location.
func (b *Bus) Find(location byte) *Device {
	for _, d := range b.devices {
		if d.Location == location {
			return d
		}
	}
	return nil
}

func (b *Bus) AnalyzeTopology() bridge.TopologyEvent {
	if b.detachPending {
		b.detachPending = false
		return bridge.TopologyDisconnect
	}
	if b.attachPending {
		b.attachPending = false
		return bridge.TopologyConnect
	}
	return bridge.TopologyNone
}

func (b *Bus) InitializeDevice() error {
	if b.EnumFailures > 0 {
		b.EnumFailures--
		return errors.New("sim: enumeration failed")
	}
	b.enumerated = true
	b.Enums++
	for _, d := range b.devices {
		d.phase = false
	}
	return nil
}

func (b *Bus) SearchByClass(class registry.Class) (location, ep byte, ok bool) {
	if !b.enumerated {
		return 0, 0, false
	}
	for _, d := range b.devices {
		if d.Class == class {
			return d.Location, d.Endpoint, true
		}
	}
	return 0, 0, false
}

func (b *Bus) SelectPort(location byte) { b.selected = location }

// Transact pops the next queued report for the selected device. The
// toggle contract is checked here: a phase that does not match the
// device's expectation is counted in PhaseErrors so tests can assert
// the engine never desynchronizes.
func (b *Bus) Transact(ep byte, phase1 bool, buf []byte, _ time.Duration) (int, error) {
	if b.TransactErr != nil {
		return 0, b.TransactErr
	}
	d := b.Find(b.selected)
	if d == nil || ep != endpoint.AddressOnly(d.Endpoint) {
		return 0, bridge.ErrNAK
	}
	if phase1 != d.phase {
		b.PhaseErrors++
	}
	if len(d.queue) == 0 {
		return 0, bridge.ErrNAK
	}
	data := d.queue[0]
	d.queue = d.queue[1:]
	d.phase = !d.phase
	return copy(buf, data), nil
}

func (b *Bus) Disconnected() bool { return b.down }

func (b *Bus) Reset() error {
	b.down = false
	b.enumerated = false
	b.attachPending = false
	b.detachPending = false
	b.Resets++
	return nil
}
