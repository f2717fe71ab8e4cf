package plans

// SetupPositionHold holds the current position.
func SetupPositionHold(in Inputs) PathSegment {
	return holdAt(in.Position, in.Gradient)
}

// SetupReturnToBase flies back over the takeoff location. The destination
// altitude is the higher of the current and the takeoff altitude, raised by
// the configured offset (Down grows downward, so the higher one is the min).
func SetupReturnToBase(in Inputs) PathSegment {
	destDown := in.Position.Down
	if in.Takeoff.Down < destDown {
		destDown = in.Takeoff.Down
	}
	destDown -= in.ReturnToBaseAltitudeOffset

	return holdAt(Vec3{North: in.Takeoff.North, East: in.Takeoff.East, Down: destDown}, in.Gradient)
}

// SetupLand starts a landing as a position hold; RunLand then lowers the
// target every cycle.
func SetupLand(in Inputs) PathSegment {
	return SetupPositionHold(in)
}

func holdAt(end Vec3, g Gradient) PathSegment {
	return PathSegment{
		Start:      gradientStart(end, g),
		End:        end,
		StartSpeed: g.Speed,
		EndSpeed:   0,
		Mode:       PathModeFlyEndpoint,
	}
}
