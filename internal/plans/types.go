// Package plans computes the path segment a path follower tracks for the
// stick-driven and autonomous flight modes.
//
// Every routine is a pure function of an Inputs snapshot plus, for the
// vario and autocruise modes, a small state object owned by the caller.
// The host reads the vehicle bus, calls exactly one setup routine when a
// flight mode is entered, then calls the matching run routine once per
// control cycle and publishes the returned segment.
//
// Nothing in this package is safe for concurrent use.
package plans

import "math"

// Vec3 is a point or vector in the local North/East/Down frame, meters.
type Vec3 struct {
	North float32 `json:"north"`
	East  float32 `json:"east"`
	Down  float32 `json:"down"`
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{North: v.North + o.North, East: v.East + o.East, Down: v.Down + o.Down}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{North: v.North - o.North, East: v.East - o.East, Down: v.Down - o.Down}
}

func (v Vec3) Scale(k float32) Vec3 {
	return Vec3{North: v.North * k, East: v.East * k, Down: v.Down * k}
}

func (v Vec3) Dot(o Vec3) float32 {
	return v.North*o.North + v.East*o.East + v.Down*o.Down
}

func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Stick is a raw manual control sample before any deadband is applied.
// Roll, Pitch and Yaw are nominally in [-1, 1], Thrust in [0, 1].
type Stick struct {
	Roll   float32 `json:"roll"`
	Pitch  float32 `json:"pitch"`
	Yaw    float32 `json:"yaw"`
	Thrust float32 `json:"thrust"`
}

func (s Stick) vector() [4]float32 {
	return [4]float32{s.Roll, s.Pitch, s.Yaw, s.Thrust}
}

// Gradient is the position-hold approach configuration: the planar offset
// used to build every segment start point and the approach speed.
type Gradient struct {
	Distance float32 `json:"distance"`
	Speed    float32 `json:"speed"`
}

// PathMode tells the follower how to interpret a segment.
type PathMode uint8

const (
	// PathModeFlyEndpoint makes the follower fly to End. Start only shapes the
	// approach; its bearing relative to End carries no meaning.
	PathModeFlyEndpoint PathMode = 1
)

func (m PathMode) String() string {
	if m == PathModeFlyEndpoint {
		return "fly_endpoint"
	}
	return "unknown"
}

// PathSegment is the geometry handed to the path follower each cycle.
type PathSegment struct {
	Start      Vec3     `json:"start"`
	End        Vec3     `json:"end"`
	StartSpeed float32  `json:"start_speed"`
	EndSpeed   float32  `json:"end_speed"`
	Mode       PathMode `json:"mode"`
}

// Inputs is one snapshot of everything the planning routines read from the
// vehicle bus. Path is the segment currently published.
type Inputs struct {
	Position Vec3
	YawDeg   float32
	Stick    Stick
	Takeoff  Vec3
	Gradient Gradient

	// ReturnToBaseAltitudeOffset is subtracted from the destination Down, so
	// positive values climb.
	ReturnToBaseAltitudeOffset float32
	// LandDescent is how far below the vehicle the land target is kept.
	// Zero selects DefaultLandDescent.
	LandDescent float32

	Path PathSegment
}
