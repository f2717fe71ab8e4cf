package plans

import "math"

// Cruise timer tuning. The filter is re-initialised on every autocruise entry
// because it went unfed while another mode was active.
const (
	CruiseTimerExpected = 0.02
	CruiseTimerMin      = 1.0e-6
	CruiseTimerMax      = 1.0
	CruiseTimerAlpha    = 1.0e-2
)

// CruiseYawRate is the heading change in degrees per second at full yaw stick.
const CruiseYawRate = 10.0

// minCruiseThrust keeps the cruise vector non-zero so its heading survives
// a closed throttle.
const minCruiseThrust = 1e-6

// DeltaTimer yields a smoothed cycle period in seconds.
type DeltaTimer interface {
	AverageSeconds() float32
}

// TimerFactory creates a DeltaTimer with the given expected period, bounds
// and smoothing factor.
type TimerFactory func(expected, min, max, alpha float32) DeltaTimer

// CruiseState is the persistent state of autocruise.
type CruiseState struct {
	// Anchor is the virtual origin the cruise target advances from.
	Anchor Vec3
	Timer  DeltaTimer
}

func (*CruiseState) modeState() {}

// SetupAutoCruise starts cruising one meter ahead of the nose, level.
func SetupAutoCruise(in Inputs, trig Trig, newTimer TimerFactory) (PathSegment, *CruiseState) {
	st := &CruiseState{
		Anchor: in.Position,
		Timer:  newTimer(CruiseTimerExpected, CruiseTimerMin, CruiseTimerMax, CruiseTimerAlpha),
	}
	nose := Vec3{North: trig.CosDeg(in.YawDeg), East: trig.SinDeg(in.YawDeg)}
	// Speed is irrelevant here; the first run rescales the vector.
	return holdAt(st.Anchor.Add(nose), in.Gradient), st
}

// RunAutoCruise advances the cruise target for one cycle. Yaw stick turns
// the cruise heading and thrust scales the look-ahead distance. Pitch pulled
// back (positive) climbs, pushed forward descends.
func RunAutoCruise(st *CruiseState, in Inputs) PathSegment {
	v := in.Stick.vector()
	v[3] = 0.5 // thrust is handled separately below
	normalizeDeadband(&v)
	thrust := in.Stick.Thrust
	if !(thrust >= minCruiseThrust) {
		thrust = minCruiseThrust
	}
	thrust = boundf(thrust, minCruiseThrust, 1)

	seg := in.Path
	dir := seg.End.Sub(st.Anchor)
	length := dir.Length()
	if !(length >= minVectorLength) {
		// Degenerate or non-finite: restart heading North.
		dir = Vec3{}
		length = 1
	}
	dir = dir.Scale(1 / length)

	// Follow the vehicle's real progress along the previous direction only.
	advanceAnchor(&st.Anchor, in.Position, dir)

	heading := math.Atan2(float64(dir.East), float64(dir.North)) * 180 / math.Pi
	heading += CruiseYawRate * float64(v[2]) * float64(st.Timer.AverageSeconds())

	reach := in.Gradient.Distance * thrust
	rad := heading * math.Pi / 180
	step := Vec3{
		North: float32(math.Cos(rad)) * reach,
		East:  float32(math.Sin(rad)) * reach,
		Down:  -v[1] * reach,
	}

	seg.End = st.Anchor.Add(step)
	return withGradientStart(seg, in.Gradient)
}
