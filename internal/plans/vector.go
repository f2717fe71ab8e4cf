package plans

import "math"

const (
	stickDeadband  = 0.1
	thrustDeadband = 0.2

	// Below this a vector length is treated as zero and replaced by 1.
	minVectorLength = 1e-9
)

// Trig supplies sine and cosine of an angle in degrees.
type Trig interface {
	SinDeg(deg float32) float32
	CosDeg(deg float32) float32
}

func boundf(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func absf(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// normalizeDeadband clamps roll, pitch and yaw (indices 0..2) to [-1, 1] and
// zeroes them inside the stick deadband. Thrust (index 3) is clamped to
// [0, 1], remapped to [-1, 1] and zeroed inside the wider thrust deadband.
// It reports whether any axis is left outside its deadband.
func normalizeDeadband(v *[4]float32) bool {
	moving := false
	for i := 0; i < 3; i++ {
		v[i] = boundf(v[i], -1, 1)
		if absf(v[i]) > stickDeadband {
			moving = true
		} else {
			v[i] = 0
		}
	}

	v[3] = boundf(v[3], 0, 1)
	v[3] = 2*v[3] - 1
	// The remap doubles the thrust span, hence the doubled deadband.
	if absf(v[3]) > thrustDeadband {
		moving = true
	} else {
		v[3] = 0
	}
	return moving
}

// unitSteeringVector turns a deadbanded stick vector into a unit direction
// (North from pitch, East from roll, Down from thrust) rotated horizontally
// by angleDeg, and the stick magnitude scaled by distance.
//
// Yaw does not contribute; it only counts towards the moving decision.
func unitSteeringVector(v [4]float32, angleDeg, distance float32, trig Trig) (Vec3, float32) {
	length := float32(math.Sqrt(float64(v[0]*v[0] + v[1]*v[1] + v[3]*v[3])))
	if length <= minVectorLength {
		// Unreachable from the vario loop: callers only steer outside the deadband.
		length = 1
	}
	dir := Vec3{
		North: v[1] / length,
		East:  v[0] / length,
		Down:  v[3] / length,
	}
	magnitude := length * distance

	sin := trig.SinDeg(angleDeg)
	cos := trig.CosDeg(angleDeg)
	north := dir.North*cos - dir.East*sin
	east := dir.North*sin + dir.East*cos
	dir.North = north
	dir.East = east
	return dir, magnitude
}

// bearingDeg is the bearing from 'from' to 'to' in degrees, 0 = North,
// 90 = East.
func bearingDeg(from, to Vec3) float32 {
	return float32(math.Atan2(float64(to.East-from.East), float64(to.North-from.North)) * 180 / math.Pi)
}

// advanceAnchor moves anchor along dir by the scalar projection of
// (position - anchor) onto dir. A negative projection leaves anchor alone so
// it never regresses against the direction of travel.
func advanceAnchor(anchor *Vec3, position, dir Vec3) {
	kp := position.Sub(*anchor).Dot(dir)
	if kp > 0 {
		*anchor = anchor.Add(dir.Scale(kp))
	}
}

// gradientStart builds the segment start for end. In fly-to-endpoint mode
// only the offset magnitude matters, so it is always laid out along North.
func gradientStart(end Vec3, g Gradient) Vec3 {
	return Vec3{North: end.North + g.Distance, East: end.East, Down: end.Down}
}

func withGradientStart(seg PathSegment, g Gradient) PathSegment {
	seg.Start = gradientStart(seg.End, g)
	seg.Mode = PathModeFlyEndpoint
	return seg
}
