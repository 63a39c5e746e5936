// Package bridge is the core bridging engine: it discovers input devices
// on the host-side bus, polls them, normalizes their reports and hands
// the canonical shapes to the wireless delivery sink.
//
// The engine is single-threaded and tick-driven. Tick performs one
// complete cycle and returns; it never blocks, and it issues at most one
// transaction attempt per device per tick so the worst-case tick
// duration stays bounded as the device count grows. Waits (the hot-plug
// settle delay) are timed states counted down across ticks.
package bridge

import (
	"log/slog"
	"time"

	"github.com/hidlink/hidlink/endpoint"
	"github.com/hidlink/hidlink/internal/log"
	"github.com/hidlink/hidlink/registry"
	"github.com/hidlink/hidlink/report"
)

// State is the poller state.
type State uint8

const (
	// StateIdle waits for a hot-plug signal.
	StateIdle State = iota
	// StateDeviceDetected counts down the power settle delay.
	StateDeviceDetected
	// StateEnumerating runs device enumeration this tick.
	StateEnumerating
	// StateReady cycles discover / cleanup / poll every tick.
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDeviceDetected:
		return "device-detected"
	case StateEnumerating:
		return "enumerating"
	case StateReady:
		return "ready"
	default:
		return "idle"
	}
}

// rxCap bounds a raw transfer; 16 bytes is enough for the NKRO bitmap
// formats seen on this bus.
const rxCap = 16

// StatsHooks are the engine's statistics callbacks, satisfied by
// recovery.Stats. All hooks are optional.
type StatsHooks struct {
	EnumFail     func()
	LinkCommFail func()
}

// Engine drives the bridging cycle.
type Engine struct {
	cfg  Config
	bus  HostBus
	sink ReportSink
	logg *slog.Logger
	raw  log.RawLogger

	devices registry.Table
	state   State
	settle  time.Duration
	kbd     keyboardFlow
	hooks   StatsHooks

	rx [rxCap]byte
}

// New builds an engine. logger and raw may be nil.
func New(cfg Config, bus HostBus, sink ReportSink, hooks StatsHooks, logger *slog.Logger, raw log.RawLogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if raw == nil {
		raw = log.NewRaw(nil)
	}
	e := &Engine{
		cfg:   cfg,
		bus:   bus,
		sink:  sink,
		logg:  logger,
		raw:   raw,
		hooks: hooks,
	}
	e.devices.Reset()
	return e, nil
}

// State returns the poller state.
func (e *Engine) State() State { return e.state }

// Devices exposes the registry for inspection. Callers follow the same
// index discipline as the engine: never hold a snapshot across ticks.
func (e *Engine) Devices() *registry.Table { return &e.devices }

// PendingKeyboard reports whether a keyboard report is parked awaiting
// retry.
func (e *Engine) PendingKeyboard() bool { return e.kbd.Pending() }

// Reinit is the recovery supervisor's entry point: it re-initializes the
// bus layer and clears all engine state derived from it. The parked
// keyboard report is dropped deliberately — after a bus reset the remote
// key state is rebuilt from the next real report.
func (e *Engine) Reinit() {
	e.logg.Warn("engine re-initializing")
	if err := e.bus.Reset(); err != nil {
		e.logg.Error("bus reset failed", "error", err)
	}
	e.devices.Reset()
	e.kbd = keyboardFlow{}
	e.state = StateIdle
	e.settle = 0
}

// Tick runs one complete bridging cycle.
func (e *Engine) Tick(dt time.Duration) error {
	// A parked keyboard report blocks everything else: retry it first,
	// and if the peer is still busy give the tick back immediately.
	done, err := e.kbd.Flush(e.sink)
	if err != nil {
		e.logg.Warn("keyboard resend failed", "error", err)
		if e.hooks.LinkCommFail != nil {
			e.hooks.LinkCommFail()
		}
		return nil
	}
	if !done {
		return nil
	}

	switch ev := e.bus.AnalyzeTopology(); ev {
	case TopologyConnect:
		e.logg.Info("device attach detected", "settle", e.cfg.SettleDelay)
		e.state = StateDeviceDetected
		e.settle = e.cfg.SettleDelay
	case TopologyDisconnect:
		e.logg.Info("device detach detected")
		e.evictAll()
		e.state = StateIdle
		e.settle = 0
	}

	switch e.state {
	case StateIdle:
		return nil
	case StateDeviceDetected:
		if e.settle > dt {
			e.settle -= dt
			return nil
		}
		e.settle = 0
		e.state = StateEnumerating
		return nil
	case StateEnumerating:
		e.enumerate()
		return nil
	}

	// StateReady.
	e.discover()
	e.removeDisconnected()
	e.pollSlots()
	return nil
}

// enumerate runs the external enumeration primitive and, on success,
// forces every cached toggle back to DATA0: a fresh enumeration always
// restarts transactions at phase 0 on the peer side, whatever this side
// remembers.
func (e *Engine) enumerate() {
	if err := e.bus.InitializeDevice(); err != nil {
		e.logg.Warn("enumeration failed", "error", err)
		if e.hooks.EnumFail != nil {
			e.hooks.EnumFail()
		}
		e.state = StateIdle
		return
	}
	e.logg.Info("device enumerated")
	for i := 0; i < registry.Capacity; i++ {
		e.devices.SetTogglePhase(i, false)
	}
	e.state = StateReady
}

// discoverClasses lists the device classes discovery looks for.
func (e *Engine) discoverClasses() []registry.Class {
	classes := []registry.Class{registry.ClassKeyboard, registry.ClassMouse}
	if e.cfg.PollGamepads {
		classes = append(classes, registry.ClassGamepad)
	}
	return classes
}

// discover registers newly found devices. The duplicate guard lives
// here, not in the registry: Add is never invoked for a class that
// already has a valid slot.
func (e *Engine) discover() {
	for _, class := range e.discoverClasses() {
		if _, exists := e.devices.FindByClass(class); exists {
			continue
		}
		location, ep, ok := e.bus.SearchByClass(class)
		if !ok || !endpoint.IsAssigned(ep) {
			continue
		}
		idx, err := e.devices.Add(location, class, ep)
		if err != nil {
			// Registry full: skip re-adding until a slot frees. Not a
			// recovery condition; existing devices keep being served.
			e.logg.Warn("device registry full", "class", class.String())
			continue
		}
		e.logg.Info("device added",
			"index", idx,
			"class", class.String(),
			"location", location,
			"endpoint", endpoint.AddressOnly(ep))
	}
}

// removeDisconnected evicts every slot when the link-level disconnect
// signal is raised. This runs before polling in the same tick, so a
// slot snapshot taken earlier in the cycle must not be reused.
func (e *Engine) removeDisconnected() {
	if !e.bus.Disconnected() {
		return
	}
	e.evictAll()
	e.state = StateIdle
}

func (e *Engine) evictAll() {
	for i := 0; i < registry.Capacity; i++ {
		if !e.devices.IsValid(i) {
			continue
		}
		slot, _ := e.devices.Get(i)
		e.logg.Info("device removed", "index", i, "class", slot.Class.String())
		e.devices.Remove(i)
	}
}

// pollSlots issues exactly one transaction attempt per valid, connected
// slot. A failed transaction leaves everything unchanged; the next tick
// retries implicitly.
func (e *Engine) pollSlots() {
	for i := 0; i < registry.Capacity; i++ {
		slot, ok := e.devices.Get(i)
		if !ok || !slot.Connected {
			continue
		}
		e.pollSlot(i, slot)
	}
}

func (e *Engine) pollSlot(i int, slot registry.Slot) {
	e.bus.SelectPort(slot.Location)

	n, err := e.bus.Transact(
		endpoint.AddressOnly(slot.Endpoint),
		endpoint.ToggleFlag(slot.Endpoint),
		e.rx[:],
		e.cfg.TransactTimeout,
	)
	if err != nil {
		// Transient miss (NAK or timeout): not an error, not a
		// statistic. Try again next tick.
		return
	}

	// Success flips the toggle exactly once; a failure above must leave
	// it alone because the peer keeps its view of the phase until a
	// packet actually lands.
	e.devices.SetEndpoint(i, endpoint.Flip(slot.Endpoint))

	if n <= 0 {
		return
	}
	raw := e.rx[:min(n, rxCap)]

	switch slot.Class {
	case registry.ClassKeyboard:
		rep, ok := report.DecodeKeyboard(raw, e.cfg.NKROOffset)
		if !ok {
			return
		}
		e.devices.SetReport(i, rep[:])
		e.raw.Log("kbd", rep[:])
		delivered, err := e.kbd.Deliver(e.sink, rep)
		if err != nil {
			e.logg.Warn("keyboard delivery failed", "error", err)
			if e.hooks.LinkCommFail != nil {
				e.hooks.LinkCommFail()
			}
		} else if !delivered {
			e.logg.Debug("keyboard report parked, peer busy")
		}
	case registry.ClassMouse:
		rep, ok := report.DecodeMouse(raw)
		if !ok {
			return
		}
		e.devices.SetReport(i, rep[:])
		e.raw.Log("mouse", rep[:])
		if err := deliverMouse(e.sink, rep); err != nil {
			e.logg.Warn("mouse delivery failed", "error", err)
			if e.hooks.LinkCommFail != nil {
				e.hooks.LinkCommFail()
			}
		}
	default:
		// No canonical shape; keep the raw bytes for inspection only.
		if n <= registry.ReportCap {
			e.devices.SetReport(i, raw)
		}
	}
}
