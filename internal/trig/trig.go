// Package trig provides table-driven sine and cosine for angles in degrees.
package trig

import "math"

// sinTable holds sin(i°) for i in [0, 90].
var sinTable = func() [91]float32 {
	var table [91]float32
	for i := range table {
		table[i] = float32(math.Sin(float64(i) * math.Pi / 180))
	}
	return table
}()

// quarter interpolates the table for deg in [0, 90].
func quarter(deg float64) float32 {
	i := int(deg)
	if i < 0 {
		return sinTable[0]
	}
	if i >= 90 {
		return sinTable[90]
	}
	frac := float32(deg - float64(i))
	return sinTable[i] + (sinTable[i+1]-sinTable[i])*frac
}

// SinDeg returns sin(deg). Integral degrees are exact table values, so
// multiples of 90° yield exactly 0 or ±1. A non-finite angle yields 0.
func SinDeg(deg float32) float32 {
	if math.IsNaN(float64(deg)) || math.IsInf(float64(deg), 0) {
		return 0
	}
	a := math.Mod(float64(deg), 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a = 0
	}
	switch {
	case a <= 90:
		return quarter(a)
	case a <= 180:
		return quarter(180 - a)
	case a <= 270:
		return -quarter(a - 180)
	default:
		return -quarter(360 - a)
	}
}

// CosDeg returns cos(deg).
func CosDeg(deg float32) float32 {
	return SinDeg(deg + 90)
}

// Table satisfies the planner's trig provider with the lookup functions.
type Table struct{}

func (Table) SinDeg(deg float32) float32 { return SinDeg(deg) }
func (Table) CosDeg(deg float32) float32 { return CosDeg(deg) }
