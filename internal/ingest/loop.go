// Package ingest correlates Kismet network sightings with the latest GPS fix
// and an altitude sample, and hands the result to a durable sink.
//
// A Loop runs one session: connect, enable the NETWORK and GPS sentences,
// then read until the connection ends. Everything happens on the calling
// goroutine; the sink, altitude source and notifiers are called
// synchronously for every accepted sighting.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"kismet-baro/internal/kismet"
	"kismet-baro/internal/metrics"
	"kismet-baro/internal/record"
)

const (
	StateIdle        = "idle"
	StateConnecting  = "connecting"
	StateHandshaking = "handshaking"
	StateStreaming   = "streaming"
	StateClosed      = "closed"
)

// ErrStreamClosed is returned by Run when the server closed the connection.
var ErrStreamClosed = errors.New("ingest: stream closed by server")

// Conn is the upstream sentence stream. *kismet.Client implements it.
type Conn interface {
	Dial(ctx context.Context) error
	Enable() error
	ReadLine() (string, error)
	Close() error
}

type AltitudeSource interface {
	Altitude() (float64, error)
}

type Sink interface {
	Append(obs record.Observation) error
}

// Notifier is told about every observation after it has been persisted.
// Errors are logged and do not end the session.
type Notifier interface {
	Notify(obs record.Observation) error
}

type Config struct {
	Conn      Conn
	Altitude  AltitudeSource
	Sink      Sink
	Notifiers []Notifier

	// BurstWindow is the number of server time units after the first *TIME
	// during which network sightings are discarded.
	BurstWindow int64

	Metrics *metrics.Collector
	Logger  *log.Logger
}

type Status struct {
	State         string           `json:"state"`
	StartEpoch    *int64           `json:"start_epoch,omitempty"`
	CurrentEpoch  int64            `json:"current_epoch,omitempty"`
	InBurst       bool             `json:"in_burst"`
	Position      *Fix             `json:"position,omitempty"`
	Recorded      uint64           `json:"recorded"`
	Suppressed    uint64           `json:"suppressed"`
	LastError     string           `json:"last_error,omitempty"`
	Upstream      *kismet.Snapshot `json:"upstream,omitempty"`
	RecentUnknown []Rejected       `json:"recent_unknown,omitempty"`
}

type Loop struct {
	cfg    Config
	logger *log.Logger

	clock    *Clock
	position Position
	rejected *rejectLog

	recorded   uint64
	suppressed uint64

	started atomic.Bool

	mu     sync.RWMutex
	status Status
}

func New(cfg Config) (*Loop, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("ingest: conn is required")
	}
	if cfg.Altitude == nil {
		return nil, fmt.Errorf("ingest: altitude source is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("ingest: sink is required")
	}
	if cfg.BurstWindow < 0 {
		return nil, fmt.Errorf("ingest: burst window must be >= 0")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	l := &Loop{
		cfg:      cfg,
		logger:   logger,
		clock:    NewClock(cfg.BurstWindow),
		rejected: newRejectLog(20, 512),
	}
	l.status = Status{State: StateIdle, InBurst: true}
	return l, nil
}

// Run executes one session. It returns when the connection fails, the server
// closes the stream (ErrStreamClosed), a sighting cannot be persisted, or ctx
// is cancelled. There is no reconnect; a Loop runs at most once.
func (l *Loop) Run(ctx context.Context) error {
	if l.started.Swap(true) {
		return fmt.Errorf("ingest: loop already ran")
	}

	l.setState(StateConnecting, "")
	if err := l.cfg.Conn.Dial(ctx); err != nil {
		l.setState(StateClosed, err.Error())
		return fmt.Errorf("ingest: connect: %w", err)
	}
	defer l.cfg.Conn.Close()

	// Closing the connection is the only way to unblock a pending read.
	stop := context.AfterFunc(ctx, func() { _ = l.cfg.Conn.Close() })
	defer stop()

	l.setState(StateHandshaking, "")
	if err := l.cfg.Conn.Enable(); err != nil {
		l.setState(StateClosed, err.Error())
		return fmt.Errorf("ingest: handshake: %w", err)
	}

	l.setState(StateStreaming, "")
	l.logger.Printf("streaming sentences (burst window %d)", l.cfg.BurstWindow)

	for {
		line, err := l.cfg.Conn.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				l.setState(StateClosed, "")
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				l.setState(StateClosed, ErrStreamClosed.Error())
				return ErrStreamClosed
			}
			l.setState(StateClosed, err.Error())
			return fmt.Errorf("ingest: read: %w", err)
		}
		if err := l.Handle(line); err != nil {
			l.setState(StateClosed, err.Error())
			return err
		}
	}
}

// Handle processes one raw line. A non-nil error is fatal for the session.
// Handle must not be called concurrently with Run.
func (l *Loop) Handle(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	defer l.refreshStatus()

	s := kismet.Parse(line)
	l.cfg.Metrics.Sentence(s.Kind().String())

	switch s := s.(type) {
	case kismet.Time:
		l.clock.Observe(s.Epoch)
	case kismet.ServerInfo:
		l.logger.Printf("kismet server info: %s", s.Raw)
	case kismet.Protocols:
	case kismet.GPS:
		// Fixes are applied even while the history replay is running.
		l.position.Update(Fix{Lat: s.Lat, Lon: s.Lon, Fix: s.Fix})
	case kismet.Network:
		if l.clock.InBurstWindow() {
			l.suppress()
			return nil
		}
		return l.record(s)
	case kismet.Unknown:
		if s.Err != nil {
			l.cfg.Metrics.ParseError()
		}
		if l.clock.InBurstWindow() {
			l.suppress()
			return nil
		}
		if s.Err != nil {
			l.logger.Printf("malformed sentence (%v): %q", s.Err, s.Raw)
		} else {
			l.logger.Printf("unrecognized sentence: %q", s.Raw)
		}
		l.rejected.add(s)
	}
	return nil
}

func (l *Loop) record(n kismet.Network) error {
	obs := record.Observation{
		BSSID: n.BSSID,
		Type:  n.Type,
		SSID:  n.SSID,
		RSSI:  n.RSSI,
	}
	if fix, ok := l.position.Current(); ok {
		obs.HasFix = true
		obs.Lat = fix.Lat
		obs.Lon = fix.Lon
		obs.Fix = fix.Fix
	}

	alt, err := l.cfg.Altitude.Altitude()
	if err != nil {
		return fmt.Errorf("ingest: altitude: %w", err)
	}
	obs.Altitude = alt

	if err := l.cfg.Sink.Append(obs); err != nil {
		return fmt.Errorf("ingest: append: %w", err)
	}
	l.recorded++
	l.cfg.Metrics.Recorded(alt)

	for _, nt := range l.cfg.Notifiers {
		if nt == nil {
			continue
		}
		if err := nt.Notify(obs); err != nil {
			l.logger.Printf("notify failed: %v", err)
		}
	}
	return nil
}

func (l *Loop) suppress() {
	l.suppressed++
	l.cfg.Metrics.Suppress()
}

// Position returns the latest fix seen by the loop.
func (l *Loop) Position() (Fix, bool) { return l.position.Current() }

// Status returns a copy of the session state. It is safe to call from any
// goroutine.
func (l *Loop) Status() Status {
	l.mu.RLock()
	out := l.status
	l.mu.RUnlock()

	if s, ok := l.cfg.Conn.(interface{ Snapshot() kismet.Snapshot }); ok {
		snap := s.Snapshot()
		out.Upstream = &snap
	}
	out.RecentUnknown = l.rejected.entries()
	return out
}

func (l *Loop) setState(state string, lastErr string) {
	l.mu.Lock()
	l.status.State = state
	if lastErr != "" {
		l.status.LastError = lastErr
	}
	l.mu.Unlock()
}

func (l *Loop) refreshStatus() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if start, ok := l.clock.Start(); ok {
		v := start
		l.status.StartEpoch = &v
	}
	l.status.CurrentEpoch = l.clock.Current()
	l.status.InBurst = l.clock.InBurstWindow()
	if fix, ok := l.position.Current(); ok {
		v := fix
		l.status.Position = &v
	}
	l.status.Recorded = l.recorded
	l.status.Suppressed = l.suppressed
}
