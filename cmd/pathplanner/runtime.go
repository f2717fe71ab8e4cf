package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"pathplanner/internal/config"
	"pathplanner/internal/indicator"
	"pathplanner/internal/plans"
	"pathplanner/internal/replay"
	"pathplanner/internal/sim"
	"pathplanner/internal/stick"
	"pathplanner/internal/telemetry"
	"pathplanner/internal/udp"
	"pathplanner/internal/vehicle"
	"pathplanner/internal/web"
)

const (
	// A held segment is only published once; resend it so late listeners
	// and the recorder still see the current target.
	telemetryResend  = time.Second
	overrunLogPeriod = 5 * time.Second
	// Longer gaps (debugger, suspend) are not integrated by the simulator.
	maxSimStep = 250 * time.Millisecond
)

type frameSender interface {
	Send(frame []byte) error
	Close() error
}

// hostRuntime owns the bus, the planning engine and every optional
// component around them. step runs one control cycle.
type hostRuntime struct {
	mu  sync.Mutex
	cfg config.Config

	bus    *vehicle.Bus
	engine *plans.Engine
	status *web.Status
	stream *web.PathBroadcaster

	scenario     *sim.Scenario
	scenarioLoop bool
	craft        *sim.Vehicle
	stickLink    io.Closer
	sender       frameSender
	recorder     *replay.Writer
	led          *indicator.LED

	start       time.Time
	lastTick    time.Time
	lastSent    time.Time
	lastReport  telemetry.PathReport
	haveReport  bool
	failedMode  plans.FlightMode
	failedSetup bool

	lastOverrunLog time.Time
	overrunsLogged uint64
}

func settingsFromConfig(p config.PlannerConfig) vehicle.FlightModeSettings {
	s := vehicle.FlightModeSettings{
		Gradient:    plans.Gradient{Distance: p.Gradient.Distance, Speed: p.Gradient.Speed},
		LandDescent: p.LandDescent,
	}
	if p.RTBAltitudeOffset != nil {
		s.ReturnToBaseAltitudeOffset = *p.RTBAltitudeOffset
	}
	return s
}

// resolvePath makes p relative to the config file's directory.
func resolvePath(configPath, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) || configPath == "" {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

func newHostRuntime(ctx context.Context, cfg config.Config, configPath string, status *web.Status, stream *web.PathBroadcaster) (*hostRuntime, error) {
	c := cfg
	if err := config.DefaultAndValidate(&c); err != nil {
		return nil, err
	}
	if status == nil {
		return nil, fmt.Errorf("status is nil")
	}

	r := &hostRuntime{
		cfg:    c,
		bus:    vehicle.NewBus(settingsFromConfig(c.Planner), vehicle.TakeoffLocation{NED: c.Planner.Takeoff.Vec3()}),
		engine: plans.NewEngine(nil, nil),
		status: status,
		stream: stream,
	}
	now := time.Now()
	r.bus.SetPosition(vehicle.PositionState{NED: c.Planner.Takeoff.Vec3(), UpdatedAt: now})

	switch c.Stick.Source {
	case config.StickSourceScenario:
		path := resolvePath(configPath, c.Sim.Scenario)
		script, err := sim.LoadScenarioScript(path)
		if err != nil {
			return nil, fmt.Errorf("scenario load failed path=%s: %w", path, err)
		}
		sc, err := sim.NewScenario(script)
		if err != nil {
			return nil, fmt.Errorf("scenario invalid path=%s: %w", path, err)
		}
		r.scenario = sc
		r.scenarioLoop = c.Sim.Loop
		log.Printf("stick source=scenario path=%s duration=%s loop=%t", path, sc.Duration(), c.Sim.Loop)
	case config.StickSourceSerial:
		svc := stick.NewService(stick.Config{Device: c.Stick.Device, Baud: c.Stick.Baud}, r.bus)
		if err := svc.Start(ctx); err != nil {
			// Keep planning in the initial mode; the pilot link may come back on restart.
			log.Printf("stick init failed device=%s: %v", c.Stick.Device, err)
		} else {
			r.stickLink = svc
			status.SetLinkReporter("stick", func() any { return svc.Snapshot() })
		}
	case config.StickSourceTCP:
		client, err := stick.NewTCPClient(stick.TCPConfig{Addr: c.Stick.Addr}, r.bus)
		if err == nil {
			err = client.Start(ctx)
		}
		if err != nil {
			log.Printf("stick init failed addr=%s: %v", c.Stick.Addr, err)
		} else {
			r.stickLink = client
			status.SetLinkReporter("stick", func() any { return client.Snapshot() })
		}
	}

	if c.Sim.Enable {
		r.craft = sim.NewVehicle(sim.VehicleConfig{
			Start:    c.Sim.Start.Vec3(),
			YawDeg:   c.Sim.YawDeg,
			MaxAccel: c.Sim.MaxAccel,
		})
		r.craft.Publish(r.bus, now)
		log.Printf("sim enabled start=%+v yaw=%.1f", c.Sim.Start, c.Sim.YawDeg)
	}

	if c.Telemetry.Dest != "" {
		b, err := udp.NewBroadcaster(c.Telemetry.Dest)
		if err != nil {
			log.Printf("telemetry init failed dest=%s: %v", c.Telemetry.Dest, err)
		} else {
			r.sender = b
			status.SetLinkReporter("telemetry", func() any { return b.Stats() })
			log.Printf("telemetry dest=%s", c.Telemetry.Dest)
		}
	}

	if c.Telemetry.Record.Enable {
		path := resolvePath(configPath, c.Telemetry.Record.Path)
		w, err := replay.CreateWriter(path)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("record init failed path=%s: %w", path, err), r.Close())
		}
		r.recorder = w
		log.Printf("recording telemetry path=%s", path)
	}

	if c.Indicator.Enable {
		led, err := indicator.Open(indicator.Config{Enable: true, Chip: c.Indicator.Chip, Pin: c.Indicator.Pin})
		if err != nil {
			log.Printf("indicator init failed chip=%s pin=%d: %v", c.Indicator.Chip, c.Indicator.Pin, err)
		} else {
			r.led = led
		}
	}

	status.SetStatic(c.Stick.Source, c.Loop.Interval.String(), c.Telemetry.Dest)
	return r, nil
}

// requestedMode is the mode the pilot selected, or the configured initial
// mode until a stick sample selects one.
func (r *hostRuntime) requestedMode(cmd vehicle.ManualControlCommand) plans.FlightMode {
	if cmd.UpdatedAt.IsZero() || cmd.FlightMode == 0 {
		r.mu.Lock()
		name := r.cfg.Planner.InitialMode
		r.mu.Unlock()
		m, err := plans.ParseFlightMode(name)
		if err == nil {
			return m
		}
		return plans.ModePositionHold
	}
	return cmd.FlightMode
}

// step runs one control cycle at now.
func (r *hostRuntime) step(now time.Time) {
	if r.start.IsZero() {
		r.start = now
	}
	dt := time.Duration(0)
	if !r.lastTick.IsZero() {
		dt = now.Sub(r.lastTick)
	}
	r.lastTick = now

	if r.scenario != nil {
		st := r.scenario.StateAt(now.Sub(r.start), r.scenarioLoop)
		r.bus.SetManualControl(vehicle.ManualControlCommand{Stick: st.Stick, FlightMode: st.Mode, UpdatedAt: now})
	}

	want := r.requestedMode(r.bus.ManualControl())
	if mode, active := r.engine.Mode(); !active || mode != want {
		r.enter(now, want, mode, active)
	}

	if _, active := r.engine.Mode(); active {
		seg, publish, err := r.engine.Run(r.bus.PlannerInputs())
		if err != nil {
			log.Printf("planner run failed: %v", err)
		} else if publish {
			r.publish(now, seg)
		}
	}

	moving := r.engine.Moving()
	r.status.SetMoving(moving)
	if err := r.led.Set(moving); err != nil {
		log.Printf("indicator set failed: %v", err)
	}

	if r.craft != nil && dt > 0 {
		if dt > maxSimStep {
			dt = maxSimStep
		}
		r.craft.Step(dt, r.bus.PathDesired().Segment)
		r.craft.Publish(r.bus, now)
	}
	r.status.SetVehicle(web.VehicleSnapshot{Position: r.bus.Position().NED, YawDeg: r.bus.Attitude().YawDeg()})

	if r.haveReport && now.Sub(r.lastSent) >= telemetryResend {
		r.sendReport(now, r.lastReport)
		if r.recorder != nil {
			if err := r.recorder.Flush(); err != nil {
				log.Printf("record flush failed: %v", err)
			}
		}
	}
	r.status.MarkTick(now)
}

func (r *hostRuntime) enter(now time.Time, want, prev plans.FlightMode, wasActive bool) {
	seg, err := r.engine.Setup(want, r.bus.PlannerInputs())
	if err != nil {
		if !r.failedSetup || r.failedMode != want {
			log.Printf("flight mode setup failed mode=%s: %v", want, err)
		}
		r.failedSetup, r.failedMode = true, want
		return
	}
	r.failedSetup = false
	if wasActive {
		log.Printf("flight mode %s -> %s", prev, want)
	} else {
		log.Printf("flight mode %s", want)
	}
	r.status.SetMode(want.String())
	r.publish(now, seg)
}

// holding reports whether the vehicle is being held at a fixed target.
func holding(mode plans.FlightMode, moving bool) bool {
	switch mode {
	case plans.ModePositionHold:
		return true
	case plans.ModeVarioFixed, plans.ModeVarioHeading, plans.ModeVarioBearing:
		return !moving
	default:
		return false
	}
}

func (r *hostRuntime) publish(now time.Time, seg plans.PathSegment) {
	r.bus.SetPathDesired(vehicle.PathDesired{Segment: seg, UpdatedAt: now})
	r.status.MarkPublished(now, seg)

	mode, active := r.engine.Mode()
	rep := telemetry.PathReport{
		FlightMode: mode,
		Active:     active,
		Hold:       holding(mode, r.engine.Moving()),
		Segment:    seg,
	}
	r.stream.Publish(web.PathEvent{
		TimeUTC:    now.UTC().Format(time.RFC3339Nano),
		FlightMode: mode.String(),
		Hold:       rep.Hold,
		Segment:    seg,
	})
	r.lastReport, r.haveReport = rep, true
	r.sendReport(now, rep)
}

func (r *hostRuntime) sendReport(now time.Time, rep telemetry.PathReport) {
	r.lastSent = now
	if r.sender == nil && r.recorder == nil {
		return
	}
	frame := telemetry.PathFrame(rep)
	if r.sender != nil {
		// Counted in the broadcaster stats; a missing listener is normal.
		_ = r.sender.Send(frame)
	}
	if r.recorder != nil {
		if err := r.recorder.WriteFrame(now, frame); err != nil {
			log.Printf("record write failed: %v", err)
		}
	}
}

// noteOverrun counts a cycle that took longer than interval. Logging is
// limited to one line per overrunLogPeriod.
func (r *hostRuntime) noteOverrun(now time.Time, took, interval time.Duration) {
	total := r.status.MarkOverrun()
	if now.Sub(r.lastOverrunLog) < overrunLogPeriod {
		return
	}
	log.Printf("control cycle overrun took=%s interval=%s overruns=%d (+%d)", took, interval, total, total-r.overrunsLogged)
	r.lastOverrunLog = now
	r.overrunsLogged = total
}

// run steps at the configured interval until ctx is done. A late cycle is
// never made up: the ticker drops the ticks it missed.
func (r *hostRuntime) run(ctx context.Context) error {
	r.mu.Lock()
	interval := r.cfg.Loop.Interval
	r.mu.Unlock()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.step(time.Now())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			began := time.Now()
			r.step(now)
			if took := time.Since(began); took > interval {
				r.noteOverrun(time.Now(), took, interval)
			}
		}
	}
}

// Apply makes new planner settings effective. Everything else needs a
// restart.
func (r *hostRuntime) Apply(next config.Config) error {
	if r == nil {
		return errors.New("runtime is nil")
	}
	c := next
	if err := config.DefaultAndValidate(&c); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case c.Loop != r.cfg.Loop:
		return fmt.Errorf("loop settings require restart")
	case c.Stick != r.cfg.Stick:
		return fmt.Errorf("stick settings require restart")
	case c.Sim != r.cfg.Sim:
		return fmt.Errorf("sim settings require restart")
	case c.Telemetry != r.cfg.Telemetry:
		return fmt.Errorf("telemetry settings require restart")
	case c.Web != r.cfg.Web:
		return fmt.Errorf("web.listen requires restart")
	case c.Indicator != r.cfg.Indicator:
		return fmt.Errorf("indicator settings require restart")
	}

	r.bus.SetSettings(settingsFromConfig(c.Planner))
	r.bus.SetTakeoff(vehicle.TakeoffLocation{NED: c.Planner.Takeoff.Vec3()})
	r.cfg = c
	log.Printf("planner settings applied gradient=%+v rtb_offset=%.1f land_descent=%.1f",
		c.Planner.Gradient, *c.Planner.RTBAltitudeOffset, c.Planner.LandDescent)
	return nil
}

func (r *hostRuntime) Close() error {
	if r == nil {
		return nil
	}
	var err error
	if r.stickLink != nil {
		err = multierr.Append(err, r.stickLink.Close())
		r.stickLink = nil
	}
	if r.led != nil {
		err = multierr.Append(err, r.led.Close())
		r.led = nil
	}
	if r.recorder != nil {
		err = multierr.Append(err, r.recorder.Close())
		r.recorder = nil
	}
	if r.sender != nil {
		err = multierr.Append(err, r.sender.Close())
		r.sender = nil
	}
	r.stream.Close()
	return err
}
