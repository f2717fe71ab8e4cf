package stick

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"pathplanner/internal/plans"
	"pathplanner/internal/vehicle"
)

// TCPConfig points a TCPClient at a ground-station bridge that forwards
// stick lines over TCP.
type TCPConfig struct {
	Addr string

	ReconnectDelay time.Duration
	// DialTimeout bounds each connect attempt.
	DialTimeout time.Duration
}

// TCPClient reads stick lines from a TCP endpoint, reconnecting until closed.
// The selected flight mode survives reconnects.
type TCPClient struct {
	cfg TCPConfig
	bus *vehicle.Bus

	started atomic.Bool
	closed  atomic.Bool

	mu       sync.RWMutex
	state    string
	lastErr  string
	lastSeen time.Time
	lastMode plans.FlightMode
	reader   *Reader
	lines    uint64
	bad      uint64

	cancel context.CancelFunc
	done   chan struct{}
}

type TCPSnapshot struct {
	Addr        string `json:"addr"`
	State       string `json:"state"`
	LastError   string `json:"last_error,omitempty"`
	LastSeenUTC string `json:"last_seen_utc,omitempty"`
	Lines       uint64 `json:"lines"`
	BadLines    uint64 `json:"bad_lines"`
}

func NewTCPClient(cfg TCPConfig, bus *vehicle.Bus) (*TCPClient, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("stick tcp addr is required")
	}
	if bus == nil {
		return nil, fmt.Errorf("stick tcp bus is nil")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 1 * time.Second
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	return &TCPClient{cfg: cfg, bus: bus, state: "stopped", done: make(chan struct{})}, nil
}

// Start begins connecting in the background. Connection failures are
// retried and show up in Snapshot, not as an error here.
func (c *TCPClient) Start(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("stick tcp client is nil")
	}
	if c.closed.Load() {
		return fmt.Errorf("stick tcp client is closed")
	}
	if c.started.Swap(true) {
		return fmt.Errorf("stick tcp client already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.setState("connecting", "")
	log.Printf("stick enabled addr=%s", c.cfg.Addr)

	go func() {
		defer close(c.done)
		c.runLoop(runCtx)
	}()
	return nil
}

// Close stops the client and waits for the read loop to exit.
func (c *TCPClient) Close() error {
	if c == nil {
		return nil
	}
	if c.closed.Swap(true) {
		return nil
	}
	if c.cancel == nil {
		return nil
	}
	c.cancel()
	<-c.done
	return nil
}

func (c *TCPClient) Snapshot() TCPSnapshot {
	if c == nil {
		return TCPSnapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := TCPSnapshot{
		Addr:      c.cfg.Addr,
		State:     c.state,
		LastError: c.lastErr,
		Lines:     c.lines,
		BadLines:  c.bad,
	}
	if c.reader != nil {
		lines, bad := c.reader.Counts()
		out.Lines += lines
		out.BadLines += bad
	}
	if !c.lastSeen.IsZero() {
		out.LastSeenUTC = c.lastSeen.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (c *TCPClient) runLoop(ctx context.Context) {
	dialer := &net.Dialer{Timeout: c.cfg.DialTimeout}

	for {
		if ctx.Err() != nil {
			c.setState("stopped", "")
			return
		}

		c.setState("connecting", "")
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
		if err != nil {
			c.setState("error", err.Error())
			if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
				c.setState("stopped", "")
				return
			}
			continue
		}

		c.setState("connected", "")
		log.Printf("stick connected addr=%s", c.cfg.Addr)
		err = c.readConn(ctx, conn)
		if ctx.Err() != nil {
			c.setState("stopped", "")
			return
		}
		c.setState("disconnected", err.Error())
		log.Printf("stick disconnected addr=%s err=%v", c.cfg.Addr, err)

		if !sleepCtx(ctx, c.cfg.ReconnectDelay) {
			c.setState("stopped", "")
			return
		}
	}
}

func (c *TCPClient) readConn(ctx context.Context, conn net.Conn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	rd := NewReader(conn)
	c.mu.Lock()
	c.reader = rd
	c.mu.Unlock()

	err := rd.Run(ctx, func(cmd vehicle.ManualControlCommand) {
		c.mu.Lock()
		if cmd.FlightMode == 0 {
			cmd.FlightMode = c.lastMode
		}
		c.lastMode = cmd.FlightMode
		c.lastSeen = cmd.UpdatedAt
		c.mu.Unlock()
		c.bus.SetManualControl(cmd)
	})

	lines, bad := rd.Counts()
	c.mu.Lock()
	c.lines += lines
	c.bad += bad
	c.reader = nil
	c.mu.Unlock()
	return err
}

func (c *TCPClient) setState(state string, lastErr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = state
	if lastErr != "" {
		c.lastErr = lastErr
		return
	}
	// A healthy or neutral state clears the error left by a transient failure.
	if state == "connected" || state == "connecting" || state == "stopped" {
		c.lastErr = ""
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
