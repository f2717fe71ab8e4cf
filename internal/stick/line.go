// Package stick reads manual control samples from a serial stick link.
//
// Each sample is one ASCII line:
//
//	$STK,<roll>,<pitch>,<yaw>,<thrust>[,<mode>]*<hh>
//
// where hh is the XOR of every byte between '$' and '*', in hex. Roll, pitch
// and yaw are in [-1, 1] with pitch positive pulled back (nose up), thrust in
// [0, 1]. The optional mode is any flight mode name; when omitted the
// previously selected mode stays in force. Non-finite axes are rejected.
package stick

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"pathplanner/internal/plans"
	"pathplanner/internal/vehicle"
)

const talker = "STK"

func checksum(payload string) byte {
	var ck byte
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return ck
}

// ParseLine decodes one sample. A zero FlightMode in the result means the
// line carried no mode.
func ParseLine(line string, now time.Time) (vehicle.ManualControlCommand, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return vehicle.ManualControlCommand{}, fmt.Errorf("stick: missing '$'")
	}
	star := strings.LastIndexByte(line, '*')
	if star == -1 {
		return vehicle.ManualControlCommand{}, fmt.Errorf("stick: missing checksum")
	}
	payload := line[1:star]
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return vehicle.ManualControlCommand{}, fmt.Errorf("stick: short checksum")
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return vehicle.ManualControlCommand{}, fmt.Errorf("stick: bad checksum %q", ck)
	}
	if got := checksum(payload); got != want[0] {
		return vehicle.ManualControlCommand{}, fmt.Errorf("stick: checksum mismatch got=%02X want=%02X", got, want[0])
	}

	parts := strings.Split(payload, ",")
	if parts[0] != talker {
		return vehicle.ManualControlCommand{}, fmt.Errorf("stick: unexpected sentence %q", parts[0])
	}
	if len(parts) != 5 && len(parts) != 6 {
		return vehicle.ManualControlCommand{}, fmt.Errorf("stick: %d fields want 4 or 5", len(parts)-1)
	}

	var axes [4]float32
	for i := range axes {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i+1]), 32)
		if err != nil {
			return vehicle.ManualControlCommand{}, fmt.Errorf("stick: field %d: %w", i+1, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return vehicle.ManualControlCommand{}, fmt.Errorf("stick: field %d: not finite", i+1)
		}
		axes[i] = float32(v)
	}

	cmd := vehicle.ManualControlCommand{
		Stick:     plans.Stick{Roll: axes[0], Pitch: axes[1], Yaw: axes[2], Thrust: axes[3]},
		UpdatedAt: now,
	}
	if len(parts) == 6 && strings.TrimSpace(parts[5]) != "" {
		mode, err := plans.ParseFlightMode(parts[5])
		if err != nil {
			return vehicle.ManualControlCommand{}, fmt.Errorf("stick: %w", err)
		}
		cmd.FlightMode = mode
	}
	return cmd, nil
}

// FormatLine renders a sample in the link format, checksum included. A zero
// FlightMode omits the mode field.
func FormatLine(s plans.Stick, mode plans.FlightMode) string {
	payload := fmt.Sprintf("%s,%.3f,%.3f,%.3f,%.3f", talker, s.Roll, s.Pitch, s.Yaw, s.Thrust)
	if mode != 0 {
		payload += "," + mode.String()
	}
	return fmt.Sprintf("$%s*%02X", payload, checksum(payload))
}
