// Package indicator drives a status LED that is lit while the vehicle is
// being steered or is cruising and dark while it holds a position.
package indicator

import (
	"errors"
	"fmt"
	"sync"
)

type driver interface {
	SetValue(v int) error
	Close() error
}

var openLineFn = openLine

type Config struct {
	Enable bool
	Chip   string
	Pin    int
}

// LED is safe for concurrent use. A nil *LED ignores every call, so the
// host can hold one unconditionally.
type LED struct {
	mu    sync.Mutex
	drv   driver
	on    bool
	known bool
}

var ErrDisabled = errors.New("indicator: disabled")

func Open(cfg Config) (*LED, error) {
	if !cfg.Enable {
		return nil, ErrDisabled
	}
	if cfg.Chip == "" {
		cfg.Chip = "gpiochip0"
	}
	drv, err := openLineFn(cfg.Chip, cfg.Pin)
	if err != nil {
		return nil, err
	}
	return &LED{drv: drv}, nil
}

// Set drives the LED. The line is only written when the state changes.
func (l *LED) Set(on bool) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.drv == nil {
		return fmt.Errorf("indicator: closed")
	}
	if l.known && l.on == on {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	if err := l.drv.SetValue(v); err != nil {
		l.known = false
		return err
	}
	l.on, l.known = on, true
	return nil
}

func (l *LED) On() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.known && l.on
}

// Close turns the LED off and releases the line.
func (l *LED) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.drv == nil {
		return nil
	}
	err := l.drv.Close()
	l.drv = nil
	l.on, l.known = false, false
	return err
}
