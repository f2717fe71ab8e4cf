package plans

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pathplanner/internal/deltatime"
	"pathplanner/internal/trig"
)

// FlightMode is a flight mode served by the planning engine.
type FlightMode uint8

const (
	ModePositionHold FlightMode = iota + 1
	ModeReturnToBase
	ModeLand
	ModeVarioFixed
	ModeVarioHeading
	ModeVarioBearing
	ModeAutoCruise
)

var (
	// ErrUnknownMode is returned for a flight mode the engine does not plan.
	ErrUnknownMode = errors.New("plans: unknown flight mode")
	// ErrNotSetUp is returned by Run before any Setup.
	ErrNotSetUp = errors.New("plans: run before setup")
)

var modeNames = map[FlightMode]string{
	ModePositionHold: "position_hold",
	ModeReturnToBase: "return_to_base",
	ModeLand:         "land",
	ModeVarioFixed:   "vario_fixed",
	ModeVarioHeading: "vario_heading",
	ModeVarioBearing: "vario_bearing",
	ModeAutoCruise:   "auto_cruise",
}

// Older ground stations name the vario conventions after the pilot's view.
var modeAliases = map[string]FlightMode{
	"vario_nsew": ModeVarioFixed,
	"vario_fpv":  ModeVarioHeading,
	"vario_los":  ModeVarioBearing,
}

func (m FlightMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseFlightMode accepts the names produced by String plus the
// nsew/fpv/los vario aliases, case-insensitively.
func ParseFlightMode(s string) (FlightMode, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	for m, name := range modeNames {
		if name == key {
			return m, nil
		}
	}
	if m, ok := modeAliases[key]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Convention returns the steering convention of a vario mode.
func (m FlightMode) Convention() (Convention, bool) {
	switch m {
	case ModeVarioFixed:
		return ConventionFixed, true
	case ModeVarioHeading:
		return ConventionHeading, true
	case ModeVarioBearing:
		return ConventionBearing, true
	default:
		return 0, false
	}
}

// ModeState is the persistent state of the active mode: either *VarioState
// or *CruiseState. The vario modes and autocruise are never active together,
// so one value is enough.
type ModeState interface {
	modeState()
}

// Engine dispatches setup and run calls to the routines of the active mode
// and owns that mode's state.
//
// Not safe for concurrent use.
type Engine struct {
	trig     Trig
	newTimer TimerFactory

	mode   FlightMode
	active bool
	state  ModeState
}

// NewEngine returns an engine with no active mode. A nil trig selects the
// lookup table and a nil newTimer the wall-clock delta-time filter.
func NewEngine(t Trig, newTimer TimerFactory) *Engine {
	if t == nil {
		t = trig.Table{}
	}
	if newTimer == nil {
		newTimer = func(expected, min, max, alpha float32) DeltaTimer {
			return deltatime.New(expected, min, max, alpha, time.Now)
		}
	}
	return &Engine{trig: t, newTimer: newTimer}
}

// Setup enters mode and returns its initial segment. Any previous mode state
// is discarded.
func (e *Engine) Setup(mode FlightMode, in Inputs) (PathSegment, error) {
	var seg PathSegment
	var st ModeState
	switch mode {
	case ModePositionHold:
		seg = SetupPositionHold(in)
	case ModeReturnToBase:
		seg = SetupReturnToBase(in)
	case ModeLand:
		seg = SetupLand(in)
	case ModeVarioFixed, ModeVarioHeading, ModeVarioBearing:
		seg, st = SetupVario(in)
	case ModeAutoCruise:
		seg, st = SetupAutoCruise(in, e.trig, e.newTimer)
	default:
		return PathSegment{}, fmt.Errorf("%w: %s", ErrUnknownMode, mode)
	}
	e.mode = mode
	e.active = true
	e.state = st
	return seg, nil
}

// Run executes one cycle of the active mode. The boolean reports whether the
// returned segment must be published; modes without a run routine (position
// hold, return to base) never publish from Run.
func (e *Engine) Run(in Inputs) (PathSegment, bool, error) {
	if !e.active {
		return in.Path, false, ErrNotSetUp
	}
	switch e.mode {
	case ModeLand:
		return RunLand(in), true, nil
	case ModeVarioFixed, ModeVarioHeading, ModeVarioBearing:
		st, ok := e.state.(*VarioState)
		if !ok {
			return in.Path, false, fmt.Errorf("plans: %s has no vario state", e.mode)
		}
		conv, _ := e.mode.Convention()
		seg, publish := RunVario(st, conv, in, e.trig)
		return seg, publish, nil
	case ModeAutoCruise:
		st, ok := e.state.(*CruiseState)
		if !ok {
			return in.Path, false, fmt.Errorf("plans: %s has no cruise state", e.mode)
		}
		return RunAutoCruise(st, in), true, nil
	default:
		return in.Path, false, nil
	}
}

// Mode returns the active flight mode, if any.
func (e *Engine) Mode() (FlightMode, bool) {
	return e.mode, e.active
}

// Moving reports whether the active mode is steering away from a hold:
// a vario mode outside the deadband, or autocruise.
func (e *Engine) Moving() bool {
	switch st := e.state.(type) {
	case *VarioState:
		return !st.Hold
	case *CruiseState:
		return true
	default:
		return false
	}
}
