package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"pathplanner/internal/plans"
)

// MsgIDPath identifies a path segment report.
const MsgIDPath = 0x50

const pathMsgLen = 36

const (
	pathFlagHold   = 0x01
	pathFlagActive = 0x02
)

var ErrNotPath = errors.New("telemetry: not a path message")

// PathReport is what a ground station sees of one published segment.
type PathReport struct {
	FlightMode plans.FlightMode
	// Active is false until the planner has entered a flight mode.
	Active  bool
	Hold    bool
	Segment plans.PathSegment
}

// EncodePath builds the unframed 0x50 message:
//
//	0      message ID
//	1      flags (bit0 hold, bit1 active)
//	2      flight mode
//	3      path mode
//	4..15  start north/east/down
//	16..27 end north/east/down
//	28..31 start speed
//	32..35 end speed
//
// All floats are big-endian IEEE-754 single precision.
func EncodePath(r PathReport) []byte {
	msg := make([]byte, pathMsgLen)
	msg[0] = MsgIDPath
	var flags byte
	if r.Hold {
		flags |= pathFlagHold
	}
	if r.Active {
		flags |= pathFlagActive
	}
	msg[1] = flags
	msg[2] = byte(r.FlightMode)
	msg[3] = byte(r.Segment.Mode)

	putVec(msg[4:], r.Segment.Start)
	putVec(msg[16:], r.Segment.End)
	putFloat(msg[28:], r.Segment.StartSpeed)
	putFloat(msg[32:], r.Segment.EndSpeed)
	return msg
}

// PathFrame is Frame(EncodePath(r)).
func PathFrame(r PathReport) []byte {
	return Frame(EncodePath(r))
}

func DecodePath(msg []byte) (PathReport, error) {
	if len(msg) == 0 || msg[0] != MsgIDPath {
		return PathReport{}, ErrNotPath
	}
	if len(msg) != pathMsgLen {
		return PathReport{}, fmt.Errorf("telemetry: path message length %d want %d", len(msg), pathMsgLen)
	}
	r := PathReport{
		FlightMode: plans.FlightMode(msg[2]),
		Active:     msg[1]&pathFlagActive != 0,
		Hold:       msg[1]&pathFlagHold != 0,
	}
	r.Segment.Mode = plans.PathMode(msg[3])
	r.Segment.Start = getVec(msg[4:])
	r.Segment.End = getVec(msg[16:])
	r.Segment.StartSpeed = getFloat(msg[28:])
	r.Segment.EndSpeed = getFloat(msg[32:])
	return r, nil
}

// DecodePathFrame unframes and decodes one frame, rejecting CRC mismatches.
func DecodePathFrame(frame []byte) (PathReport, error) {
	msg, ok, err := Unframe(frame)
	if err != nil {
		return PathReport{}, err
	}
	if !ok {
		return PathReport{}, fmt.Errorf("telemetry: crc mismatch")
	}
	return DecodePath(msg)
}

func putFloat(b []byte, v float32) {
	binary.BigEndian.PutUint32(b, math.Float32bits(v))
}

func getFloat(b []byte) float32 {
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

func putVec(b []byte, v plans.Vec3) {
	putFloat(b[0:], v.North)
	putFloat(b[4:], v.East)
	putFloat(b[8:], v.Down)
}

func getVec(b []byte) plans.Vec3 {
	return plans.Vec3{North: getFloat(b[0:]), East: getFloat(b[4:]), Down: getFloat(b[8:])}
}
