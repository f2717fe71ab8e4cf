// Package replay records telemetry frames to a text log and plays them back
// with their original timing.
package replay

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Log format: line-oriented text.
//
// - Blank lines and lines starting with '#' are ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are: <t_ns>,<hex>
//   where t_ns is nanoseconds since START and hex is one framed telemetry
//   message.

type Record struct {
	At    time.Duration
	Frame []byte
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 1024)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{At: 0, Frame: nil})
			continue
		}

		comma := strings.IndexByte(line, ',')
		if comma < 0 {
			return nil, fmt.Errorf("replay: line %d: missing comma: %q", lineNo, line)
		}
		tsStr := strings.TrimSpace(line[:comma])
		hexStr := strings.TrimSpace(line[comma+1:])
		if tsStr == "" || hexStr == "" {
			return nil, fmt.Errorf("replay: line %d: empty field: %q", lineNo, line)
		}

		tsNs, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("replay: line %d: timestamp %q: %w", lineNo, tsStr, err)
		}
		if tsNs < 0 {
			return nil, fmt.Errorf("replay: line %d: negative timestamp %d", lineNo, tsNs)
		}

		b, err := hex.DecodeString(strings.ReplaceAll(hexStr, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("replay: line %d: hex payload: %w", lineNo, err)
		}

		recs = append(recs, Record{At: time.Duration(tsNs), Frame: b})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// ReadFile reads a whole log from disk.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return NewReader(f).ReadAll()
}

// Writer records frames with their offset from creation time. Not safe for
// concurrent use.
type Writer struct {
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

// CreateWriter creates path and any missing parent directories.
func CreateWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: time.Now()}, nil
}

func (ww *Writer) WriteFrame(now time.Time, frame []byte) error {
	if ww.closed {
		return errors.New("replay: writer is closed")
	}
	if len(frame) == 0 {
		return errors.New("replay: empty frame")
	}

	d := now.Sub(ww.start)
	if d < 0 {
		d = 0
	}
	_, err := fmt.Fprintf(ww.w, "%d,%s\n", d.Nanoseconds(), hex.EncodeToString(frame))
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Play replays records with their relative timing, calling cb for each
// frame. START markers reset the origin. speed 2.0 halves every wait.
// Playback stops with ctx's error once ctx is done.
func Play(ctx context.Context, records []Record, speed float64, loop bool, sleeper Sleeper, cb func(frame []byte) error) error {
	if speed <= 0 {
		return fmt.Errorf("replay: speed must be > 0")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	if cb == nil {
		return errors.New("replay: callback is nil")
	}
	if len(records) == 0 {
		return errors.New("replay: no records")
	}

	for {
		var origin, lastAt time.Duration
		haveLast := false

		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.Frame == nil {
				origin = r.At
				lastAt = 0
				haveLast = false
				continue
			}

			at := r.At - origin
			if at < 0 {
				at = 0
			}
			if haveLast {
				wait := at - lastAt
				if wait < 0 {
					wait = 0
				}
				wait = time.Duration(float64(wait) / speed)
				if wait > 0 {
					if err := sleeper.Sleep(ctx, wait); err != nil {
						return err
					}
				}
			}

			if err := cb(r.Frame); err != nil {
				return err
			}
			lastAt = at
			haveLast = true
		}

		if !loop {
			return nil
		}
	}
}
