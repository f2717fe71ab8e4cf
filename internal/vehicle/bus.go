// Package vehicle holds the process-local records the planner reads and
// writes each control cycle.
package vehicle

import (
	"math"
	"sync"
	"time"

	"github.com/westphae/quaternion"

	"pathplanner/internal/plans"
)

type PositionState struct {
	NED       plans.Vec3
	UpdatedAt time.Time
}

// AttitudeState carries the body-to-NED attitude quaternion.
type AttitudeState struct {
	Q         quaternion.Quaternion
	UpdatedAt time.Time
}

// YawDeg is the heading of the body nose axis projected onto the horizontal
// plane, degrees in (-180, 180], 0 = North, 90 = East.
func (a AttitudeState) YawDeg() float32 {
	q := a.Q
	if q == (quaternion.Quaternion{}) {
		return 0
	}
	nose := q.RotateVec3(quaternion.Vec3{X: 1})
	return float32(math.Atan2(nose.Y, nose.X) * 180 / math.Pi)
}

// YawQuaternion is the level attitude with the nose at yawDeg.
func YawQuaternion(yawDeg float64) quaternion.Quaternion {
	half := yawDeg * math.Pi / 360
	return quaternion.Quaternion{W: math.Cos(half), Z: math.Sin(half)}
}

// ManualControlCommand is one stick sample plus the flight mode the pilot
// selected with it.
type ManualControlCommand struct {
	Stick      plans.Stick
	FlightMode plans.FlightMode
	UpdatedAt  time.Time
}

type TakeoffLocation struct {
	NED plans.Vec3
}

// PathDesired is the segment last published for the path follower.
type PathDesired struct {
	Segment   plans.PathSegment
	UpdatedAt time.Time
}

type FlightModeSettings struct {
	Gradient                   plans.Gradient
	ReturnToBaseAltitudeOffset float32
	LandDescent                float32
}

// Bus is safe for concurrent use.
type Bus struct {
	mu sync.RWMutex

	position PositionState
	attitude AttitudeState
	manual   ManualControlCommand
	takeoff  TakeoffLocation
	path     PathDesired
	settings FlightModeSettings
}

func NewBus(settings FlightModeSettings, takeoff TakeoffLocation) *Bus {
	return &Bus{
		settings: settings,
		takeoff:  takeoff,
		attitude: AttitudeState{Q: quaternion.Quaternion{W: 1}},
	}
}

func (b *Bus) Position() PositionState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.position
}

func (b *Bus) SetPosition(p PositionState) {
	b.mu.Lock()
	b.position = p
	b.mu.Unlock()
}

func (b *Bus) Attitude() AttitudeState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.attitude
}

func (b *Bus) SetAttitude(a AttitudeState) {
	b.mu.Lock()
	b.attitude = a
	b.mu.Unlock()
}

func (b *Bus) ManualControl() ManualControlCommand {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.manual
}

func (b *Bus) SetManualControl(m ManualControlCommand) {
	b.mu.Lock()
	b.manual = m
	b.mu.Unlock()
}

func (b *Bus) Takeoff() TakeoffLocation {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.takeoff
}

func (b *Bus) SetTakeoff(t TakeoffLocation) {
	b.mu.Lock()
	b.takeoff = t
	b.mu.Unlock()
}

func (b *Bus) PathDesired() PathDesired {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

func (b *Bus) SetPathDesired(p PathDesired) {
	b.mu.Lock()
	b.path = p
	b.mu.Unlock()
}

func (b *Bus) Settings() FlightModeSettings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

func (b *Bus) SetSettings(s FlightModeSettings) {
	b.mu.Lock()
	b.settings = s
	b.mu.Unlock()
}

// PlannerInputs snapshots every record the planning routines read, under a
// single lock so one cycle never mixes old and new values.
func (b *Bus) PlannerInputs() plans.Inputs {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return plans.Inputs{
		Position:                   b.position.NED,
		YawDeg:                     b.attitude.YawDeg(),
		Stick:                      b.manual.Stick,
		Takeoff:                    b.takeoff.NED,
		Gradient:                   b.settings.Gradient,
		ReturnToBaseAltitudeOffset: b.settings.ReturnToBaseAltitudeOffset,
		LandDescent:                b.settings.LandDescent,
		Path:                       b.path.Segment,
	}
}
