package kismet

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

const DefaultAddr = "127.0.0.1:2501"

type ClientConfig struct {
	Addr string

	// DialTimeout is used for the initial TCP connect.
	DialTimeout time.Duration

	// MaxLineBytes bounds a single sentence. Longer lines are skipped.
	MaxLineBytes int
}

// Client is a single connection to a Kismet server. It does not reconnect;
// once a read fails the client is done.
type Client struct {
	cfg ClientConfig

	conn   net.Conn
	reader *bufio.Reader

	mu       sync.RWMutex
	state    string
	lastErr  string
	lastSeen time.Time
	count    uint64
	skipped  uint64
}

type Snapshot struct {
	Addr        string `json:"addr"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Lines       uint64 `json:"lines"`
	Skipped     uint64 `json:"skipped,omitempty"`
}

func NewClient(cfg ClientConfig) (*Client, error) {
	cfg.Addr = strings.TrimSpace(cfg.Addr)
	if cfg.Addr == "" {
		return nil, fmt.Errorf("kismet client addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = 64 * 1024
	}
	return &Client{cfg: cfg, state: "idle"}, nil
}

// Dial opens the TCP connection.
func (c *Client) Dial(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("kismet client is nil")
	}
	if c.conn != nil {
		return fmt.Errorf("kismet client already connected")
	}
	c.setState("connecting", "")

	d := &net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		c.setState("error", err.Error())
		return err
	}
	c.conn = conn
	c.reader = bufio.NewReaderSize(conn, 4096)
	c.setState("connected", "")
	return nil
}

// Enable sends the handshake: a blank line followed by one ENABLE directive
// for each sentence type. The server does not acknowledge in a way we wait on.
func (c *Client) Enable() error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("kismet client is not connected")
	}
	var b bytes.Buffer
	b.WriteString("\n")
	fmt.Fprintf(&b, "!0 ENABLE NETWORK %s\n", strings.Join(NetworkFields, ","))
	fmt.Fprintf(&b, "!0 ENABLE GPS %s\n", strings.Join(GPSFields, ","))
	if _, err := c.conn.Write(b.Bytes()); err != nil {
		c.setState("error", err.Error())
		return fmt.Errorf("kismet: enable: %w", err)
	}
	return nil
}

// ReadLine blocks until the next newline-terminated line arrives. The
// returned line has its line ending removed. Lines longer than MaxLineBytes
// are dropped and counted; reading continues with the next line.
func (c *Client) ReadLine() (string, error) {
	if c == nil || c.reader == nil {
		return "", fmt.Errorf("kismet client is not connected")
	}

	var (
		buf      []byte
		dropping bool
	)
	for {
		chunk, isPrefix, err := c.reader.ReadLine()
		if err != nil {
			c.setState("disconnected", err.Error())
			return "", err
		}
		if !dropping {
			buf = append(buf, chunk...)
			if len(buf) > c.cfg.MaxLineBytes {
				dropping = true
				buf = nil
			}
		}
		if isPrefix {
			continue
		}
		if dropping {
			c.dropped()
			dropping = false
			continue
		}
		break
	}

	now := time.Now().UTC()
	c.mu.Lock()
	c.lastSeen = now
	c.count++
	c.mu.Unlock()
	return string(buf), nil
}

func (c *Client) dropped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped++
	c.lastErr = fmt.Sprintf("line too large (> %d bytes)", c.cfg.MaxLineBytes)
}

// Close closes the connection. It is safe to call from another goroutine to
// unblock a pending ReadLine.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.setState("closed", "")
	return err
}

func (c *Client) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := Snapshot{
		Addr:      c.cfg.Addr,
		State:     c.state,
		LastError: c.lastErr,
		Lines:     c.count,
		Skipped:   c.skipped,
	}
	if !c.lastSeen.IsZero() {
		out.LastSeenUTC = c.lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (c *Client) setState(state string, lastErr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A read error is usually followed by Close; keep the error visible.
	if state == "closed" && c.state == "disconnected" {
		return
	}
	c.state = state
	if lastErr != "" {
		c.lastErr = lastErr
	} else if state == "connected" || state == "connecting" {
		c.lastErr = ""
	}
}
