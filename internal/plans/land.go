package plans

// DefaultLandDescent is how far below the vehicle the land target sits when
// Inputs.LandDescent is unset.
const DefaultLandDescent = 5

// RunLand keeps the horizontal target and pins the vertical target a fixed
// distance below the vehicle, so the follower keeps descending until
// touchdown.
func RunLand(in Inputs) PathSegment {
	descent := in.LandDescent
	if descent <= 0 {
		descent = DefaultLandDescent
	}
	seg := in.Path
	seg.End.Down = in.Position.Down + descent
	seg.Mode = PathModeFlyEndpoint
	return seg
}
