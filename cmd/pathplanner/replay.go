package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"pathplanner/internal/plans"
	"pathplanner/internal/replay"
)

func runReplay(ctx context.Context, path string, speed float64, loop bool, sleeper replay.Sleeper, send func(frame []byte) error) error {
	records, err := replay.ReadFile(path)
	if err != nil {
		return err
	}
	return replay.Play(ctx, records, speed, loop, sleeper, send)
}

func printLogSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	recs, err := replay.ReadFile(path)
	if err != nil {
		return err
	}
	s := replay.Summarize(recs)

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "frames: %d\n", s.Frames)
	fmt.Fprintf(w, "invalid_frames: %d\n", s.Invalid)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)

	ids := make([]int, 0, len(s.MsgIDCounts))
	for k := range s.MsgIDCounts {
		ids = append(ids, int(k))
	}
	sort.Ints(ids)
	fmt.Fprintf(w, "msg_id_counts:\n")
	for _, k := range ids {
		fmt.Fprintf(w, "  0x%02X: %d\n", k, s.MsgIDCounts[byte(k)])
	}

	modes := make([]int, 0, len(s.ModeCounts))
	for m := range s.ModeCounts {
		modes = append(modes, int(m))
	}
	sort.Ints(modes)
	fmt.Fprintf(w, "flight_mode_counts:\n")
	for _, m := range modes {
		fm := plans.FlightMode(m)
		fmt.Fprintf(w, "  %s: %d\n", fm, s.ModeCounts[fm])
	}

	if p := s.LastPath; p != nil {
		e := p.Segment.End
		fmt.Fprintf(w, "last_path: mode=%s hold=%t end=(%.2f, %.2f, %.2f) speed=%.2f\n",
			p.FlightMode, p.Hold, e.North, e.East, e.Down, p.Segment.StartSpeed)
	}
	return nil
}
