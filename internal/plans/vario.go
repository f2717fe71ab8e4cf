package plans

import "fmt"

// Convention selects the frame the vario sticks steer in.
type Convention uint8

const (
	// ConventionFixed maps forward stick to North and right roll to East.
	ConventionFixed Convention = iota
	// ConventionHeading rotates the sticks by the vehicle yaw (first person).
	ConventionHeading
	// ConventionBearing rotates the sticks by the bearing from the takeoff
	// location to the vehicle (line of sight).
	ConventionBearing
)

func (c Convention) String() string {
	switch c {
	case ConventionFixed:
		return "fixed"
	case ConventionHeading:
		return "heading"
	case ConventionBearing:
		return "bearing"
	default:
		return fmt.Sprintf("convention(%d)", uint8(c))
	}
}

// VarioState is the persistent state of the vario modes.
type VarioState struct {
	// Hold is true while the sticks are centred and the vehicle holds.
	Hold bool
	// Anchor is the virtual origin the moving target advances from.
	Anchor Vec3
}

func (*VarioState) modeState() {}

// SetupVario enters a vario mode holding the current position.
func SetupVario(in Inputs) (PathSegment, *VarioState) {
	return SetupPositionHold(in), &VarioState{Hold: true}
}

// steeringAngle is the horizontal rotation applied to the stick vector.
func steeringAngle(conv Convention, in Inputs) float32 {
	switch conv {
	case ConventionHeading:
		return in.YawDeg
	case ConventionBearing:
		return bearingDeg(in.Takeoff, in.Position)
	default:
		return 0
	}
}

// RunVario recomputes the vario segment for one cycle. The boolean reports
// whether the returned segment changed and must be published; it is false
// while the vehicle keeps holding.
func RunVario(st *VarioState, conv Convention, in Inputs, trig Trig) (PathSegment, bool) {
	seg := in.Path
	v := in.Stick.vector()

	// Deadband is evaluated in stick space, before any rotation.
	if !normalizeDeadband(&v) {
		if st.Hold {
			return seg, false
		}
		// Sticks released: hold the last commanded target.
		st.Hold = true
		return withGradientStart(seg, in.Gradient), true
	}

	// Pitch is positive pulled back; pushing forward steers North.
	v[1] = -v[1]
	dir, magnitude := unitSteeringVector(v, steeringAngle(conv, in), in.Gradient.Distance, trig)
	// Thrust is up in the stick frame; the world frame is down-positive.
	worldDir := Vec3{North: dir.North, East: dir.East, Down: -dir.Down}

	if st.Hold {
		// Start from the last commanded target rather than the raw position,
		// so entering the move does not jump.
		st.Hold = false
		st.Anchor = seg.End
	} else {
		advanceAnchor(&st.Anchor, in.Position, worldDir)
	}

	seg.End = st.Anchor.Add(worldDir.Scale(magnitude))
	return withGradientStart(seg, in.Gradient), true
}
