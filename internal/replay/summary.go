package replay

import (
	"time"

	"pathplanner/internal/plans"
	"pathplanner/internal/telemetry"
)

// Summary describes a recorded log without replaying it.
type Summary struct {
	Segments    int
	Frames      int
	Invalid     int
	MaxDuration time.Duration
	MsgIDCounts map[byte]int
	// ModeCounts counts path reports per flight mode.
	ModeCounts map[plans.FlightMode]int
	// LastPath is the last decodable path report, if any.
	LastPath *telemetry.PathReport
}

// Summarize counts frames per message ID and path reports per flight mode.
// Frames that fail framing or CRC checks are counted as invalid.
func Summarize(records []Record) Summary {
	s := Summary{MsgIDCounts: map[byte]int{}, ModeCounts: map[plans.FlightMode]int{}}
	origin := time.Duration(0)
	hasFrames := false
	segments := 0

	for _, r := range records {
		if r.Frame == nil {
			segments++
			origin = r.At
			continue
		}
		hasFrames = true
		s.Frames++

		at := r.At - origin
		if at > s.MaxDuration {
			s.MaxDuration = at
		}

		msg, ok, err := telemetry.Unframe(r.Frame)
		if err != nil || !ok || len(msg) == 0 {
			s.Invalid++
			continue
		}
		s.MsgIDCounts[msg[0]]++
		if msg[0] != telemetry.MsgIDPath {
			continue
		}
		rep, err := telemetry.DecodePath(msg)
		if err != nil {
			s.Invalid++
			continue
		}
		s.ModeCounts[rep.FlightMode]++
		s.LastPath = &rep
	}
	if segments == 0 && hasFrames {
		segments = 1
	}
	s.Segments = segments
	return s
}
