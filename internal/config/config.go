// Package config loads and validates the YAML host configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pathplanner/internal/plans"
)

type Config struct {
	Planner   PlannerConfig   `yaml:"planner"`
	Loop      LoopConfig      `yaml:"loop"`
	Stick     StickConfig     `yaml:"stick"`
	Sim       SimConfig       `yaml:"sim"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Web       WebConfig       `yaml:"web"`
	Indicator IndicatorConfig `yaml:"indicator"`
}

type PlannerConfig struct {
	Gradient GradientConfig `yaml:"gradient"`
	// RTBAltitudeOffset is how far above the higher of vehicle and takeoff
	// altitude return-to-base flies. Nil selects the default.
	RTBAltitudeOffset *float32  `yaml:"rtb_altitude_offset,omitempty"`
	LandDescent       float32   `yaml:"land_descent"`
	Takeoff           NEDConfig `yaml:"takeoff"`
	InitialMode       string    `yaml:"initial_mode"`
}

type GradientConfig struct {
	Distance float32 `yaml:"distance"`
	Speed    float32 `yaml:"speed"`
}

type NEDConfig struct {
	North float32 `yaml:"north"`
	East  float32 `yaml:"east"`
	Down  float32 `yaml:"down"`
}

func (n NEDConfig) Vec3() plans.Vec3 {
	return plans.Vec3{North: n.North, East: n.East, Down: n.Down}
}

type LoopConfig struct {
	Interval time.Duration `yaml:"interval"`
}

const (
	StickSourceScenario = "scenario"
	StickSourceSerial   = "serial"
	StickSourceTCP      = "tcp"
)

type StickConfig struct {
	Source string `yaml:"source"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// Addr is the host:port of a stick line bridge when Source is tcp.
	Addr   string `yaml:"addr"`
}

type SimConfig struct {
	Enable   bool      `yaml:"enable"`
	Start    NEDConfig `yaml:"start"`
	YawDeg   float64   `yaml:"yaw_deg"`
	MaxAccel float64   `yaml:"max_accel"`
	Scenario string    `yaml:"scenario"`
	Loop     bool      `yaml:"loop"`
}

type TelemetryConfig struct {
	Dest   string       `yaml:"dest"`
	Record RecordConfig `yaml:"record"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type IndicatorConfig struct {
	Enable bool   `yaml:"enable"`
	Chip   string `yaml:"chip"`
	Pin    int    `yaml:"pin"`
}

const (
	DefaultGradientDistance  = 2
	DefaultGradientSpeed     = 5
	DefaultRTBAltitudeOffset = 2
	DefaultLoopInterval      = 20 * time.Millisecond
	DefaultBaud              = 115200
	DefaultMaxAccel          = 4
	DefaultIndicatorChip     = "gpiochip0"
)

// Load reads path and applies DefaultAndValidate. Unknown keys are errors.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, unknownFieldsError(err)
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var linePrefix = regexp.MustCompile(`^line \d+: `)

// unknownFieldsError rewrites yaml.v3's KnownFields report without line
// numbers. Other decode errors pass through unchanged.
func unknownFieldsError(err error) error {
	var te *yaml.TypeError
	if !errors.As(err, &te) {
		return err
	}
	msgs := make([]string, 0, len(te.Errors))
	for _, e := range te.Errors {
		if !strings.Contains(e, "not found in type") {
			return err
		}
		msgs = append(msgs, linePrefix.ReplaceAllString(e, ""))
	}
	return fmt.Errorf("config contains unknown fields: %s", strings.Join(msgs, "; "))
}

func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	p := &cfg.Planner
	if p.Gradient.Distance < 0 {
		return fmt.Errorf("planner.gradient.distance must be > 0")
	}
	if p.Gradient.Distance == 0 {
		p.Gradient.Distance = DefaultGradientDistance
	}
	if p.Gradient.Speed < 0 {
		return fmt.Errorf("planner.gradient.speed must be > 0")
	}
	if p.Gradient.Speed == 0 {
		p.Gradient.Speed = DefaultGradientSpeed
	}
	if p.RTBAltitudeOffset == nil {
		v := float32(DefaultRTBAltitudeOffset)
		p.RTBAltitudeOffset = &v
	}
	if *p.RTBAltitudeOffset < 0 {
		return fmt.Errorf("planner.rtb_altitude_offset must be >= 0")
	}
	if p.LandDescent < 0 {
		return fmt.Errorf("planner.land_descent must be > 0")
	}
	if p.LandDescent == 0 {
		p.LandDescent = plans.DefaultLandDescent
	}
	p.InitialMode = strings.TrimSpace(p.InitialMode)
	if p.InitialMode == "" {
		p.InitialMode = plans.ModePositionHold.String()
	}
	if _, err := plans.ParseFlightMode(p.InitialMode); err != nil {
		return fmt.Errorf("planner.initial_mode: %w", err)
	}

	if cfg.Loop.Interval < 0 {
		return fmt.Errorf("loop.interval must be > 0")
	}
	if cfg.Loop.Interval == 0 {
		cfg.Loop.Interval = DefaultLoopInterval
	}

	s := &cfg.Stick
	s.Source = strings.ToLower(strings.TrimSpace(s.Source))
	if s.Source == "" {
		s.Source = StickSourceScenario
	}
	switch s.Source {
	case StickSourceScenario:
		if strings.TrimSpace(cfg.Sim.Scenario) == "" {
			return fmt.Errorf("sim.scenario is required when stick.source is 'scenario'")
		}
	case StickSourceSerial:
		if strings.TrimSpace(s.Device) == "" {
			return fmt.Errorf("stick.device is required when stick.source is 'serial'")
		}
		if s.Baud == 0 {
			s.Baud = DefaultBaud
		}
		switch s.Baud {
		case 4800, 9600, 19200, 38400, 57600, 115200:
		default:
			return fmt.Errorf("stick.baud must be one of 4800, 9600, 19200, 38400, 57600, 115200")
		}
	case StickSourceTCP:
		if strings.TrimSpace(s.Addr) == "" {
			return fmt.Errorf("stick.addr is required when stick.source is 'tcp'")
		}
	default:
		return fmt.Errorf("stick.source must be 'scenario', 'serial' or 'tcp'")
	}

	if cfg.Sim.MaxAccel < 0 {
		return fmt.Errorf("sim.max_accel must be > 0")
	}
	if cfg.Sim.MaxAccel == 0 {
		cfg.Sim.MaxAccel = DefaultMaxAccel
	}

	cfg.Telemetry.Dest = strings.TrimSpace(cfg.Telemetry.Dest)
	if cfg.Telemetry.Record.Enable && strings.TrimSpace(cfg.Telemetry.Record.Path) == "" {
		return fmt.Errorf("telemetry.record.path is required when telemetry.record.enable is true")
	}

	cfg.Web.Listen = strings.TrimSpace(cfg.Web.Listen)

	if cfg.Indicator.Enable {
		if cfg.Indicator.Pin < 0 {
			return fmt.Errorf("indicator.pin must be >= 0")
		}
		if strings.TrimSpace(cfg.Indicator.Chip) == "" {
			cfg.Indicator.Chip = DefaultIndicatorChip
		}
	}
	return nil
}

// Save validates cfg and writes it to path atomically.
func Save(path string, cfg Config) error {
	if err := DefaultAndValidate(&cfg); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	// Temp file in the same directory so os.Rename is atomic.
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
