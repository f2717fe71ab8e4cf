package plans

import (
	"math"
	"testing"

	"pathplanner/internal/trig"
)

var centred = Stick{Thrust: 0.5}

func varioInputs(pos Vec3) Inputs {
	return Inputs{
		Position: pos,
		Stick:    centred,
		Gradient: Gradient{Distance: 2, Speed: 5},
	}
}

func TestSetupVario_Holds(t *testing.T) {
	in := varioInputs(Vec3{North: 1, East: 2, Down: -3})
	seg, st := SetupVario(in)
	if !st.Hold {
		t.Fatalf("hold=false after setup")
	}
	if seg != SetupPositionHold(in) {
		t.Fatalf("seg=%+v want position hold", seg)
	}
}

func TestRunVario_HoldingDoesNotPublish(t *testing.T) {
	in := varioInputs(Vec3{North: 1, East: 2, Down: -3})
	in.Path, _ = SetupVario(in)
	st := &VarioState{Hold: true}

	in.Stick = Stick{Roll: 0.05, Pitch: -0.08, Yaw: 0.1, Thrust: 0.55}
	seg, publish := RunVario(st, ConventionFixed, in, trig.Table{})
	if publish {
		t.Fatalf("publish=true while holding inside the deadband")
	}
	if seg != in.Path {
		t.Fatalf("seg changed while holding: %+v", seg)
	}
}

func TestRunVario_FixedForwardStick(t *testing.T) {
	in := varioInputs(Vec3{North: 10, East: 5, Down: -3})
	var st *VarioState
	in.Path, st = SetupVario(in)

	in.Stick = Stick{Pitch: -1, Thrust: 0.5}
	seg, publish := RunVario(st, ConventionFixed, in, trig.Table{})
	if !publish {
		t.Fatalf("publish=false on first moving cycle")
	}
	if st.Hold {
		t.Fatalf("hold=true while moving")
	}
	if st.Anchor != (Vec3{North: 10, East: 5, Down: -3}) {
		t.Fatalf("anchor=%+v want previous end", st.Anchor)
	}
	requireVecNear(t, "end", seg.End, Vec3{North: 12, East: 5, Down: -3}, 1e-5)
	requireGradientOffset(t, seg, in.Gradient)
}

func TestRunVario_HeadingConventionRotatesByYaw(t *testing.T) {
	in := varioInputs(Vec3{})
	var st *VarioState
	in.Path, st = SetupVario(in)

	in.YawDeg = 90
	in.Stick = Stick{Pitch: -1, Thrust: 0.5}
	seg, _ := RunVario(st, ConventionHeading, in, trig.Table{})
	requireVecNear(t, "end", seg.End, Vec3{East: 2}, 1e-5)
}

func TestRunVario_PulledBackPitchFliesSouth(t *testing.T) {
	in := varioInputs(Vec3{North: 10, East: 5, Down: -3})
	var st *VarioState
	in.Path, st = SetupVario(in)

	in.Stick = Stick{Pitch: 1, Roll: 1, Thrust: 0.5}
	seg, _ := RunVario(st, ConventionFixed, in, trig.Table{})
	requireVecNear(t, "end", seg.End, Vec3{North: 8, East: 7, Down: -3}, 1e-4)
}

func TestRunVario_HeadingConventionSurvivesNonFiniteYaw(t *testing.T) {
	in := varioInputs(Vec3{North: 3, East: -1, Down: -2})
	var st *VarioState
	in.Path, st = SetupVario(in)

	in.YawDeg = float32(math.NaN())
	in.Stick = Stick{Pitch: -1, Thrust: 0.5}
	seg, publish := RunVario(st, ConventionHeading, in, trig.Table{})
	if !publish {
		t.Fatalf("publish=false on first moving cycle")
	}
	requireVecNear(t, "end", seg.End, st.Anchor, 1e-5)

	// A valid heading on the next cycle steers normally again.
	in.Path = seg
	in.YawDeg = 0
	seg, _ = RunVario(st, ConventionHeading, in, trig.Table{})
	requireVecNear(t, "end", seg.End, Vec3{North: 5, East: -1, Down: -2}, 1e-5)
}

func TestRunVario_BearingConventionRotatesByLineOfSight(t *testing.T) {
	in := varioInputs(Vec3{North: 0, East: -20, Down: -5})
	in.Takeoff = Vec3{}
	var st *VarioState
	in.Path, st = SetupVario(in)

	// Vehicle is due West of takeoff: forward stick flies further away (West).
	in.YawDeg = 45 // ignored by this convention
	in.Stick = Stick{Pitch: -1, Thrust: 0.5}
	seg, _ := RunVario(st, ConventionBearing, in, trig.Table{})
	requireVecNear(t, "end", seg.End, Vec3{North: 0, East: -22, Down: -5}, 1e-4)
}

func TestRunVario_ThrustClimbs(t *testing.T) {
	in := varioInputs(Vec3{Down: -10})
	var st *VarioState
	in.Path, st = SetupVario(in)

	in.Stick = Stick{Thrust: 1}
	seg, _ := RunVario(st, ConventionFixed, in, trig.Table{})
	requireVecNear(t, "end", seg.End, Vec3{Down: -12}, 1e-5)

	// Vehicle climbed 1.5m; the anchor follows it upward only.
	in.Path = seg
	in.Position = Vec3{North: 0.3, Down: -11.5}
	seg, _ = RunVario(st, ConventionFixed, in, trig.Table{})
	requireVecNear(t, "anchor", st.Anchor, Vec3{Down: -11.5}, 1e-5)
	requireVecNear(t, "end", seg.End, Vec3{Down: -13.5}, 1e-5)
}

func TestRunVario_AnchorAdvancesWithVehicle(t *testing.T) {
	in := varioInputs(Vec3{})
	var st *VarioState
	in.Path, st = SetupVario(in)
	in.Stick = Stick{Pitch: -1, Thrust: 0.5}

	in.Path, _ = RunVario(st, ConventionFixed, in, trig.Table{})

	in.Position = Vec3{North: 1.5, East: 0.4}
	seg, _ := RunVario(st, ConventionFixed, in, trig.Table{})
	requireVecNear(t, "anchor", st.Anchor, Vec3{North: 1.5}, 1e-5)
	requireVecNear(t, "end", seg.End, Vec3{North: 3.5}, 1e-5)

	// Vehicle overshot backwards: anchor stays.
	in.Path = seg
	in.Position = Vec3{North: -4}
	seg, _ = RunVario(st, ConventionFixed, in, trig.Table{})
	requireVecNear(t, "anchor", st.Anchor, Vec3{North: 1.5}, 1e-5)
	requireVecNear(t, "end", seg.End, Vec3{North: 3.5}, 1e-5)
}

func TestRunVario_ReleaseHoldsLastTarget(t *testing.T) {
	in := varioInputs(Vec3{North: 2, East: 2, Down: -4})
	var st *VarioState
	in.Path, st = SetupVario(in)

	in.Stick = Stick{Roll: 0.7, Pitch: 0.4, Thrust: 0.5}
	for i := 0; i < 5; i++ {
		in.Path, _ = RunVario(st, ConventionFixed, in, trig.Table{})
		in.Position = in.Position.Add(Vec3{North: 0.1, East: 0.2})
	}
	lastMoving := in.Path

	in.Stick = centred
	seg, publish := RunVario(st, ConventionFixed, in, trig.Table{})
	if !publish {
		t.Fatalf("publish=false on release")
	}
	if !st.Hold {
		t.Fatalf("hold=false after release")
	}
	if seg.End != lastMoving.End {
		t.Fatalf("held end=%+v want last moving end %+v", seg.End, lastMoving.End)
	}
	if seg.End == in.Position {
		t.Fatalf("held end snapped to raw position")
	}
	requireGradientOffset(t, seg, in.Gradient)

	// Next centred cycle keeps holding silently.
	in.Path = seg
	if _, publish := RunVario(st, ConventionFixed, in, trig.Table{}); publish {
		t.Fatalf("publish=true on second centred cycle")
	}
}

func TestRunVario_ReenterMoveStartsFromHeldTarget(t *testing.T) {
	in := varioInputs(Vec3{})
	var st *VarioState
	in.Path, st = SetupVario(in)

	in.Stick = Stick{Roll: 1, Thrust: 0.5}
	in.Path, _ = RunVario(st, ConventionFixed, in, trig.Table{})
	in.Stick = centred
	in.Path, _ = RunVario(st, ConventionFixed, in, trig.Table{})
	held := in.Path.End

	in.Position = Vec3{East: 50} // far from both the anchor and the target
	in.Stick = Stick{Pitch: -1, Thrust: 0.5}
	seg, _ := RunVario(st, ConventionFixed, in, trig.Table{})
	if st.Anchor != held {
		t.Fatalf("anchor=%+v want held target %+v", st.Anchor, held)
	}
	requireVecNear(t, "end", seg.End, held.Add(Vec3{North: 2}), 1e-5)
}
