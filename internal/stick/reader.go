package stick

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pathplanner/internal/plans"
	"pathplanner/internal/vehicle"
)

// Reader scans link lines from r.
type Reader struct {
	r   io.Reader
	now func() time.Time

	lines  atomic.Uint64
	errors atomic.Uint64
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, now: time.Now}
}

// maxLineLen bounds one link line; longer lines are dropped as bad.
const maxLineLen = 4096

// Run calls onSample for every valid line until ctx is done or r is
// exhausted. Lines without a mode inherit the last mode seen. Bad and
// overlong lines are counted and skipped.
func (rd *Reader) Run(ctx context.Context, onSample func(vehicle.ManualControlCommand)) error {
	br := bufio.NewReaderSize(rd.r, maxLineLen)

	var lastMode plans.FlightMode
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := br.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			rd.lines.Add(1)
			rd.errors.Add(1)
			for err == bufio.ErrBufferFull {
				_, err = br.ReadSlice('\n')
			}
			if err != nil {
				return err
			}
			continue
		}

		line := strings.TrimSpace(string(raw))
		if strings.HasPrefix(line, "$") {
			rd.lines.Add(1)
			if cmd, perr := ParseLine(line, rd.now()); perr != nil {
				rd.errors.Add(1)
			} else {
				if cmd.FlightMode == 0 {
					cmd.FlightMode = lastMode
				}
				lastMode = cmd.FlightMode
				onSample(cmd)
			}
		}
		if err != nil {
			return err
		}
	}
}

// Counts returns lines seen and lines rejected.
func (rd *Reader) Counts() (lines, bad uint64) {
	return rd.lines.Load(), rd.errors.Load()
}

type Config struct {
	Device string
	Baud   int
}

type Snapshot struct {
	Enabled   bool      `json:"enabled"`
	Device    string    `json:"device"`
	Baud      int       `json:"baud"`
	Lines     uint64    `json:"lines"`
	BadLines  uint64    `json:"bad_lines"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service owns the serial device and feeds samples to the bus.
type Service struct {
	cfg Config
	bus *vehicle.Bus

	mu     sync.Mutex
	cancel context.CancelFunc
	closer io.Closer
	reader *Reader
	wg     sync.WaitGroup

	lastErr atomic.Value // string
	last    atomic.Int64 // unix nanos of the last sample
}

func NewService(cfg Config, bus *vehicle.Bus) *Service {
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	return &Service{cfg: cfg, bus: bus}
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("stick service is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	device := strings.TrimSpace(s.cfg.Device)
	f, err := openSerial(device, s.cfg.Baud)
	if err != nil {
		s.lastErr.Store(fmt.Sprintf("open failed device=%s baud=%d: %v", device, s.cfg.Baud, err))
		return err
	}
	s.closer = f
	s.reader = NewReader(f)

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		log.Printf("stick enabled device=%s baud=%d", device, s.cfg.Baud)
		err := s.reader.Run(childCtx, func(cmd vehicle.ManualControlCommand) {
			s.bus.SetManualControl(cmd)
			s.last.Store(cmd.UpdatedAt.UnixNano())
		})
		if childCtx.Err() == nil {
			s.lastErr.Store(fmt.Sprintf("read stopped: %v", err))
			log.Printf("stick read stopped device=%s err=%v", device, err)
		}
	}()
	return nil
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	snap := Snapshot{Enabled: true, Device: s.cfg.Device, Baud: s.cfg.Baud}
	s.mu.Lock()
	rd := s.reader
	s.mu.Unlock()
	if rd != nil {
		snap.Lines, snap.BadLines = rd.Counts()
	}
	if v, ok := s.lastErr.Load().(string); ok {
		snap.LastError = v
	}
	if ns := s.last.Load(); ns != 0 {
		snap.UpdatedAt = time.Unix(0, ns)
	}
	return snap
}

func (s *Service) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if closer != nil {
		err = closer.Close()
	}
	s.wg.Wait()
	return err
}
