package plans

import (
	"math"
	"testing"
)

func planarOffset(seg PathSegment) float64 {
	dn := float64(seg.Start.North - seg.End.North)
	de := float64(seg.Start.East - seg.End.East)
	return math.Hypot(dn, de)
}

func requireGradientOffset(t *testing.T, seg PathSegment, g Gradient) {
	t.Helper()
	if d := planarOffset(seg); math.Abs(d-float64(g.Distance)) > 1e-4 {
		t.Fatalf("start/end planar offset=%v want %v (seg=%+v)", d, g.Distance, seg)
	}
	if seg.Mode != PathModeFlyEndpoint {
		t.Fatalf("mode=%v want fly_endpoint", seg.Mode)
	}
}

func TestSetupPositionHold(t *testing.T) {
	in := Inputs{
		Position: Vec3{North: 10, East: 5, Down: -3},
		Gradient: Gradient{Distance: 2, Speed: 5},
	}
	seg := SetupPositionHold(in)

	if seg.End != (Vec3{North: 10, East: 5, Down: -3}) {
		t.Fatalf("end=%+v", seg.End)
	}
	if seg.Start != (Vec3{North: 12, East: 5, Down: -3}) {
		t.Fatalf("start=%+v", seg.Start)
	}
	if seg.StartSpeed != 5 || seg.EndSpeed != 0 {
		t.Fatalf("speeds=%v/%v want 5/0", seg.StartSpeed, seg.EndSpeed)
	}
	requireGradientOffset(t, seg, in.Gradient)
}

func TestSetupReturnToBase_TakesHigherAltitude(t *testing.T) {
	cases := []struct {
		name     string
		posDown  float32
		takeDown float32
		offset   float32
		wantDown float32
	}{
		{name: "TakeoffHigher", posDown: -3, takeDown: -10, offset: 2, wantDown: -12},
		{name: "VehicleHigher", posDown: -30, takeDown: -1, offset: 2, wantDown: -32},
		{name: "NoOffset", posDown: -4, takeDown: -4, offset: 0, wantDown: -4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := Inputs{
				Position:                   Vec3{North: 100, East: -40, Down: tc.posDown},
				Takeoff:                    Vec3{North: 7, East: 8, Down: tc.takeDown},
				Gradient:                   Gradient{Distance: 2, Speed: 5},
				ReturnToBaseAltitudeOffset: tc.offset,
			}
			seg := SetupReturnToBase(in)
			want := Vec3{North: 7, East: 8, Down: tc.wantDown}
			if seg.End != want {
				t.Fatalf("end=%+v want %+v", seg.End, want)
			}
			if seg.StartSpeed != 5 || seg.EndSpeed != 0 {
				t.Fatalf("speeds=%v/%v want 5/0", seg.StartSpeed, seg.EndSpeed)
			}
			requireGradientOffset(t, seg, in.Gradient)
		})
	}
}

func TestSetupLand_HoldsCurrentPosition(t *testing.T) {
	in := Inputs{
		Position: Vec3{North: -1, East: 2, Down: -8},
		Gradient: Gradient{Distance: 3, Speed: 1},
	}
	if got, want := SetupLand(in), SetupPositionHold(in); got != want {
		t.Fatalf("land=%+v want %+v", got, want)
	}
}

func TestRunLand_TargetBelowVehicle(t *testing.T) {
	in := Inputs{
		Position: Vec3{North: 1, East: 1, Down: -8},
		Gradient: Gradient{Distance: 2, Speed: 5},
	}
	in.Path = SetupLand(in)

	// Vehicle drifted and descended; the horizontal target stays put.
	in.Position = Vec3{North: 1.5, East: 0.7, Down: -6}
	seg := RunLand(in)
	if seg.End.North != 1 || seg.End.East != 1 {
		t.Fatalf("end moved horizontally: %+v", seg.End)
	}
	if seg.End.Down != -1 {
		t.Fatalf("end.down=%v want -1 (default 5m below)", seg.End.Down)
	}
	requireGradientOffset(t, seg, in.Gradient)

	in.LandDescent = 2
	if seg := RunLand(in); seg.End.Down != -4 {
		t.Fatalf("end.down=%v want -4", seg.End.Down)
	}
}
