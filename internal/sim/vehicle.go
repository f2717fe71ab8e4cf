// Package sim closes the loop for bench runs: a scripted pilot feeds the
// stick, and a point-mass multicopter flies whatever segment the planner
// publishes so the vehicle position evolves as it would in flight.
package sim

import (
	"math"
	"time"

	"github.com/westphae/quaternion"
	"go.einride.tech/pid"

	"pathplanner/internal/plans"
	"pathplanner/internal/vehicle"
)

const (
	defaultMaxAccel = 4.0  // m/s^2
	defaultMaxSpeed = 10.0 // m/s when the segment carries no speed
	defaultYawRate  = 90.0 // deg/s
	// Below this ground speed the nose is left where it is.
	minTurnSpeed = 0.5
)

type VehicleConfig struct {
	Start    plans.Vec3
	YawDeg   float64
	MaxAccel float64
	YawRate  float64
}

// Vehicle is a point mass tracking a path segment end with one position PID
// per NED axis. The PID output is the commanded velocity, limited by the
// segment start speed and reached within the acceleration limit.
//
// Not safe for concurrent use.
type Vehicle struct {
	cfg VehicleConfig

	pos [3]float64
	vel [3]float64
	yaw float64

	axes [3]pid.Controller
}

func NewVehicle(cfg VehicleConfig) *Vehicle {
	if cfg.MaxAccel <= 0 {
		cfg.MaxAccel = defaultMaxAccel
	}
	if cfg.YawRate <= 0 {
		cfg.YawRate = defaultYawRate
	}
	v := &Vehicle{
		cfg: cfg,
		pos: [3]float64{float64(cfg.Start.North), float64(cfg.Start.East), float64(cfg.Start.Down)},
		yaw: wrapDeg(cfg.YawDeg),
	}
	for i := range v.axes {
		// No wind or gravity to reject, so no integral term.
		v.axes[i] = pid.Controller{
			Config: pid.ControllerConfig{
				ProportionalGain: 0.8,
				DerivativeGain:   0.05,
			},
		}
	}
	return v
}

// Step advances the vehicle by dt toward seg.End.
func (v *Vehicle) Step(dt time.Duration, seg plans.PathSegment) {
	if dt <= 0 {
		return
	}
	sec := dt.Seconds()
	target := [3]float64{float64(seg.End.North), float64(seg.End.East), float64(seg.End.Down)}

	var cmd [3]float64
	for i := range v.axes {
		v.axes[i].Update(pid.ControllerInput{
			ReferenceSignal:  target[i],
			ActualSignal:     v.pos[i],
			SamplingInterval: dt,
		})
		cmd[i] = v.axes[i].State.ControlSignal
	}

	maxSpeed := float64(seg.StartSpeed)
	if maxSpeed <= 0 {
		maxSpeed = defaultMaxSpeed
	}
	if n := norm3(cmd); n > maxSpeed {
		for i := range cmd {
			cmd[i] *= maxSpeed / n
		}
	}

	var dv [3]float64
	for i := range dv {
		dv[i] = cmd[i] - v.vel[i]
	}
	if n, lim := norm3(dv), v.cfg.MaxAccel*sec; n > lim {
		for i := range dv {
			dv[i] *= lim / n
		}
	}
	for i := range v.vel {
		v.vel[i] += dv[i]
		v.pos[i] += v.vel[i] * sec
	}

	if math.Hypot(v.vel[0], v.vel[1]) >= minTurnSpeed {
		want := math.Atan2(v.vel[1], v.vel[0]) * 180 / math.Pi
		diff := wrapDeg(want - v.yaw)
		step := v.cfg.YawRate * sec
		if diff > step {
			diff = step
		} else if diff < -step {
			diff = -step
		}
		v.yaw = wrapDeg(v.yaw + diff)
	}
}

func (v *Vehicle) Position() plans.Vec3 {
	return plans.Vec3{North: float32(v.pos[0]), East: float32(v.pos[1]), Down: float32(v.pos[2])}
}

func (v *Vehicle) Velocity() plans.Vec3 {
	return plans.Vec3{North: float32(v.vel[0]), East: float32(v.vel[1]), Down: float32(v.vel[2])}
}

func (v *Vehicle) YawDeg() float64 {
	return v.yaw
}

// Attitude is the level attitude at the current heading.
func (v *Vehicle) Attitude() quaternion.Quaternion {
	return vehicle.YawQuaternion(v.yaw)
}

// Publish writes position and attitude to the bus.
func (v *Vehicle) Publish(bus *vehicle.Bus, now time.Time) {
	bus.SetPosition(vehicle.PositionState{NED: v.Position(), UpdatedAt: now})
	bus.SetAttitude(vehicle.AttitudeState{Q: v.Attitude(), UpdatedAt: now})
}

func norm3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// wrapDeg maps an angle into (-180, 180].
func wrapDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
