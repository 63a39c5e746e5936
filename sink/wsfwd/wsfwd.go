// Package wsfwd forwards canonical reports over a WebSocket connection
// as binary frames. Each frame is the report id byte followed by the
// report payload.
//
// The connection is kept healthy with TCP keepalive on the dialer, a
// ping ticker, a pong watchdog via read deadlines and a background
// reader that services control frames. Report writes go through a
// bounded queue so Send never blocks the bridging tick; a full queue is
// the busy signal.
package wsfwd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hidlink/hidlink/bridge"
	"github.com/hidlink/hidlink/report"
)

// Config carries the forwarder tunables.
type Config struct {
	URL        string        `help:"WebSocket URL to forward reports to" default:"ws://127.0.0.1:8555/reports"`
	QueueDepth int           `help:"Outbound report queue depth" default:"32"`
	PingEvery  time.Duration `help:"Ping interval" default:"5s"`
	PongWait   time.Duration `help:"Pong deadline before the connection is declared dead" default:"15s"`
	DialWait   time.Duration `help:"Handshake timeout" default:"10s"`
}

// ErrNotConnected is returned by Send while no connection is up.
var ErrNotConnected = errors.New("wsfwd: not connected")

// conn bundles one WebSocket connection with its queue and goroutines
// so a reconnect swaps the whole bundle atomically.
type conn struct {
	ws    *websocket.Conn
	sendQ chan []byte
	done  chan struct{}
	once  sync.Once

	// wmu serializes writes; the report writer and the ping ticker
	// share the connection and gorilla allows one writer at a time.
	wmu sync.Mutex
}

func (c *conn) write(messageType int, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.ws.WriteMessage(messageType, data)
}

func (c *conn) stop() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// Sink is a bridge.ReportSink over a WebSocket.
type Sink struct {
	cfg  Config
	logg *slog.Logger

	mu      sync.Mutex
	current *conn
	down    atomic.Bool
}

// New builds a disconnected sink. Reset establishes the connection.
func New(cfg Config, logger *slog.Logger) (*Sink, error) {
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{cfg: cfg, logg: logger}
	s.down.Store(true)
	return s, nil
}

// Send queues one report frame. A full queue returns bridge.ErrBusy;
// no connection returns ErrNotConnected.
func (s *Sink) Send(id report.ID, data []byte) error {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()
	if c == nil || s.down.Load() {
		return ErrNotConnected
	}

	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, byte(id))
	frame = append(frame, data...)

	select {
	case c.sendQ <- frame:
		return nil
	default:
		return bridge.ErrBusy
	}
}

// Disconnected reports the link state.
func (s *Sink) Disconnected() bool { return s.down.Load() }

// Reset tears down any existing connection and dials a fresh one.
func (s *Sink) Reset() error {
	s.mu.Lock()
	if s.current != nil {
		s.current.stop()
		s.current = nil
	}
	s.mu.Unlock()
	s.down.Store(true)

	d := websocket.Dialer{
		HandshakeTimeout: s.cfg.DialWait,
		NetDialContext: (&net.Dialer{
			Timeout:   s.cfg.DialWait,
			KeepAlive: 15 * time.Second,
		}).DialContext,
	}
	ws, _, err := d.DialContext(context.Background(), s.cfg.URL, nil)
	if err != nil {
		return err
	}

	c := &conn{
		ws:    ws,
		sendQ: make(chan []byte, s.cfg.QueueDepth),
		done:  make(chan struct{}),
	}

	// Keepalive needs the read side to process pong and close frames.
	ws.SetReadLimit(1 << 16)
	_ = ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})

	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
	s.down.Store(false)

	go s.readLoop(c)
	go s.writeLoop(c)
	go s.pingLoop(c)

	s.logg.Info("websocket forwarder connected", "url", s.cfg.URL)
	return nil
}

// markDown flags the link dead and stops the connection's goroutines.
// The recovery supervisor observes Disconnected and drives the redial.
func (s *Sink) markDown(c *conn, err error) {
	c.stop()
	if s.down.CompareAndSwap(false, true) {
		s.logg.Warn("websocket forwarder link lost", "error", err)
	}
}

func (s *Sink) readLoop(c *conn) {
	for {
		select {
		case <-c.done:
			return
		default:
		}
		if _, _, err := c.ws.ReadMessage(); err != nil {
			s.markDown(c, err)
			return
		}
	}
}

func (s *Sink) writeLoop(c *conn) {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.sendQ:
			if err := c.write(websocket.BinaryMessage, frame); err != nil {
				s.markDown(c, err)
				return
			}
		}
	}
}

func (s *Sink) pingLoop(c *conn) {
	t := time.NewTicker(s.cfg.PingEvery)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				s.markDown(c, err)
				return
			}
		}
	}
}

// Close releases the connection.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.stop()
		s.current = nil
	}
	s.down.Store(true)
}
