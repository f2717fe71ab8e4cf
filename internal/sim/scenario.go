package sim

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"pathplanner/internal/plans"
)

// ScenarioScript is a deterministic pilot input timeline: stick samples and
// flight mode selections at given times.
//
// Time is expressed as Go duration strings (e.g. "0s", "250ms", "10s").
// If Duration is zero, it is derived from the latest keyframe time.
//
// YAML schema (v1):
//
//	version: 1
//	duration: 40s
//	keyframes:
//	  - t: 0s
//	    mode: vario_fixed
//	    thrust: 0.5
//	  - t: 2s
//	    pitch: -1
//	    thrust: 0.5
//	  - t: 10s
//	    mode: auto_cruise
//	    yaw: 0.5
//	    thrust: 1
//
// Stick axes are linearly interpolated between keyframes. The flight mode is
// step-wise: a keyframe without mode keeps the previous one. Keyframes must
// use non-decreasing t values and the first keyframe must select a mode.
type ScenarioScript struct {
	Version   int             `yaml:"version"`
	Duration  time.Duration   `yaml:"duration"`
	Keyframes []StickKeyframe `yaml:"keyframes"`
}

// StickKeyframe is a time-stamped pilot input.
type StickKeyframe struct {
	T      time.Duration `yaml:"t"`
	Mode   string        `yaml:"mode"`
	Roll   float32       `yaml:"roll"`
	Pitch  float32       `yaml:"pitch"`
	Yaw    float32       `yaml:"yaw"`
	Thrust float32       `yaml:"thrust"`
}

// Scenario is the validated, runtime representation.
type Scenario struct {
	script ScenarioScript
	modes  []plans.FlightMode // resolved mode per keyframe
	// Derived duration (script.Duration or max keyframe time).
	duration time.Duration
}

// LoadScenarioScript reads and unmarshals a YAML scenario script from path.
func LoadScenarioScript(path string) (ScenarioScript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return ScenarioScript{}, err
	}
	return ParseScenarioScriptYAML(b)
}

// ParseScenarioScriptYAML parses a YAML scenario script. Unknown keys are
// rejected so typos in axis names do not silently read as zero.
func ParseScenarioScriptYAML(b []byte) (ScenarioScript, error) {
	var s ScenarioScript
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return ScenarioScript{}, fmt.Errorf("scenario: %w", err)
	}
	return s, nil
}

// NewScenario validates script and returns a runtime Scenario.
func NewScenario(script ScenarioScript) (*Scenario, error) {
	if script.Version == 0 {
		script.Version = 1
	}
	if script.Version != 1 {
		return nil, fmt.Errorf("unsupported scenario version %d", script.Version)
	}
	if len(script.Keyframes) == 0 {
		return nil, fmt.Errorf("keyframes is required")
	}

	modes := make([]plans.FlightMode, len(script.Keyframes))
	var cur plans.FlightMode
	for i, kf := range script.Keyframes {
		if kf.T < 0 {
			return nil, fmt.Errorf("keyframes[%d].t must be >= 0", i)
		}
		if i > 0 && kf.T < script.Keyframes[i-1].T {
			return nil, fmt.Errorf("keyframes must be sorted by t (index %d)", i)
		}
		if err := validateAxes(kf, i); err != nil {
			return nil, err
		}
		if strings.TrimSpace(kf.Mode) != "" {
			m, err := plans.ParseFlightMode(kf.Mode)
			if err != nil {
				return nil, fmt.Errorf("keyframes[%d].mode: %w", i, err)
			}
			cur = m
		}
		if cur == 0 {
			return nil, fmt.Errorf("keyframes[0].mode is required")
		}
		modes[i] = cur
	}

	dur := script.Duration
	if dur <= 0 {
		dur = script.Keyframes[len(script.Keyframes)-1].T
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration is required (or deriveable from keyframes)")
	}

	return &Scenario{script: script, modes: modes, duration: dur}, nil
}

func validateAxes(kf StickKeyframe, i int) error {
	for _, ax := range []struct {
		name string
		v    float32
	}{{"roll", kf.Roll}, {"pitch", kf.Pitch}, {"yaw", kf.Yaw}} {
		if ax.v < -1 || ax.v > 1 {
			return fmt.Errorf("keyframes[%d].%s must be within [-1,1]", i, ax.name)
		}
	}
	if kf.Thrust < 0 || kf.Thrust > 1 {
		return fmt.Errorf("keyframes[%d].thrust must be within [0,1]", i)
	}
	return nil
}

// Duration returns the effective scenario duration.
func (s *Scenario) Duration() time.Duration {
	if s == nil {
		return 0
	}
	return s.duration
}

// ScenarioState is the pilot input at a time.
type ScenarioState struct {
	Mode  plans.FlightMode
	Stick plans.Stick
}

// StateAt computes the pilot input at elapsed.
//
// If loop is true, elapsed wraps around Duration(). Otherwise elapsed is clamped
// to [0, Duration()].
func (s *Scenario) StateAt(elapsed time.Duration, loop bool) ScenarioState {
	if s == nil {
		return ScenarioState{}
	}
	if elapsed < 0 {
		elapsed = 0
	}
	if s.duration > 0 {
		if loop {
			elapsed = elapsed % s.duration
		} else if elapsed > s.duration {
			elapsed = s.duration
		}
	}

	i0, i1, alpha := selectSegment(s.script.Keyframes, elapsed)
	k0, k1 := s.script.Keyframes[i0], s.script.Keyframes[i1]
	return ScenarioState{
		// The mode switches exactly at its keyframe, never by interpolation.
		Mode: s.modes[i0],
		Stick: plans.Stick{
			Roll:   lerp32(k0.Roll, k1.Roll, alpha),
			Pitch:  lerp32(k0.Pitch, k1.Pitch, alpha),
			Yaw:    lerp32(k0.Yaw, k1.Yaw, alpha),
			Thrust: lerp32(k0.Thrust, k1.Thrust, alpha),
		},
	}
}

func selectSegment(kfs []StickKeyframe, t time.Duration) (int, int, float32) {
	if len(kfs) == 1 {
		return 0, 0, 0
	}
	idx := sort.Search(len(kfs), func(i int) bool { return kfs[i].T > t })
	if idx <= 0 {
		return 0, 0, 0
	}
	if idx >= len(kfs) {
		last := len(kfs) - 1
		return last, last, 0
	}
	k0 := kfs[idx-1]
	k1 := kfs[idx]
	dt := k1.T - k0.T
	if dt <= 0 {
		return idx, idx, 0
	}
	alpha := float64(t-k0.T) / float64(dt)
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	return idx - 1, idx, float32(alpha)
}

func lerp32(a, b, t float32) float32 {
	return a + (b-a)*t
}
