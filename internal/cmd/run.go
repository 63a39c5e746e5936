package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hidlink/hidlink/bridge"
	"github.com/hidlink/hidlink/hostbus/usb"
	"github.com/hidlink/hidlink/internal/log"
	"github.com/hidlink/hidlink/internal/sim"
	"github.com/hidlink/hidlink/recovery"
	"github.com/hidlink/hidlink/sink/blehog"
	"github.com/hidlink/hidlink/sink/logsink"
	"github.com/hidlink/hidlink/sink/wsfwd"
)

// Run executes the bridging loop until interrupted.
type Run struct {
	Bridge   bridge.Config   `embed:"" prefix:"bridge."`
	Recovery recovery.Config `embed:"" prefix:"recovery."`
	WS       wsfwd.Config    `embed:"" prefix:"ws."`
	BLE      blehog.Config   `embed:"" prefix:"ble."`

	Host string `help:"Host bus backend" enum:"usb,sim" default:"usb"`
	Sink string `help:"Report sink backend" enum:"ble,ws,log" default:"ble"`
}

// busLink adapts the engine for the supervisor: bus recovery is the
// engine's full re-initialization, not a bare transport reset, because
// the registry and flow state derived from the bus must go with it.
type busLink struct {
	bus    bridge.HostBus
	engine *bridge.Engine
}

func (b busLink) Disconnected() bool { return b.bus.Disconnected() }
func (b busLink) Reset() error {
	b.engine.Reinit()
	return nil
}

// Run is called by kong when the run command is executed.
func (r *Run) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.Start(ctx, logger, rawLogger)
}

// Start runs the tick loop until ctx is done.
func (r *Run) Start(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	var (
		bus  bridge.HostBus
		demo *sim.Demo
	)
	switch r.Host {
	case "sim":
		sb := sim.NewBus()
		demo = sim.NewDemo(sb)
		bus = sb
		logger.Info("using simulated host bus")
	default:
		ub := usb.NewBus(logger)
		defer func() { _ = ub.Close() }()
		bus = ub
	}

	var sink bridge.ReportSink
	switch r.Sink {
	case "log":
		sink = logsink.New(rawLogger)
	case "ws":
		ws, err := wsfwd.New(r.WS, logger)
		if err != nil {
			return fmt.Errorf("websocket sink: %w", err)
		}
		defer ws.Close()
		if err := ws.Reset(); err != nil {
			// Not fatal: the reconnect machine keeps dialing.
			logger.Warn("initial websocket connect failed", "error", err)
		}
		sink = ws
	default:
		ble := blehog.New(r.BLE, logger)
		if err := ble.Reset(); err != nil {
			return fmt.Errorf("bluetooth sink: %w", err)
		}
		sink = ble
	}

	// The engine's stats hooks resolve the supervisor at call time; it
	// does not exist yet because its recovery entry points close over
	// the engine.
	var sup *recovery.Supervisor
	hooks := bridge.StatsHooks{
		EnumFail:     func() { sup.Stats.EnumFail() },
		LinkCommFail: func() { sup.Stats.LinkCommFail() },
	}
	engine, err := bridge.New(r.Bridge, bus, sink, hooks, logger, rawLogger)
	if err != nil {
		return err
	}
	sup = recovery.NewSupervisor(r.Recovery,
		busLink{bus: bus, engine: engine},
		sink,
		engine.Reinit,
		logger)

	logger.Info("bridging loop starting",
		"tick", r.Bridge.TickInterval,
		"host", r.Host,
		"sink", r.Sink)

	ticker := time.NewTicker(r.Bridge.TickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			logger.Info("bridging loop stopping")
			return nil
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			if demo != nil {
				demo.Step(dt)
			}
			if err := engine.Tick(dt); err != nil {
				logger.Error("tick failed", "error", err)
			} else {
				sup.Watchdog.Feed()
			}
			sup.Tick(dt)
		}
	}
}
