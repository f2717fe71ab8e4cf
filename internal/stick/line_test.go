package stick

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"pathplanner/internal/plans"
	"pathplanner/internal/vehicle"
)

func withChecksum(payload string) string {
	return fmt.Sprintf("$%s*%02X", payload, checksum(payload))
}

func TestParseLine(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cmd, err := ParseLine(withChecksum("STK,0.250,-1.000,0.000,0.500,vario_fpv"), now)
	if err != nil {
		t.Fatalf("ParseLine() error: %v", err)
	}
	want := plans.Stick{Roll: 0.25, Pitch: -1, Yaw: 0, Thrust: 0.5}
	if cmd.Stick != want {
		t.Fatalf("stick=%+v want %+v", cmd.Stick, want)
	}
	if cmd.FlightMode != plans.ModeVarioHeading {
		t.Fatalf("mode=%v want vario_heading", cmd.FlightMode)
	}
	if !cmd.UpdatedAt.Equal(now) {
		t.Fatalf("updatedAt=%v want %v", cmd.UpdatedAt, now)
	}

	cmd, err = ParseLine(withChecksum("STK,0,0,0.3,1")+"\r\n", now)
	if err != nil {
		t.Fatalf("ParseLine() error: %v", err)
	}
	if cmd.FlightMode != 0 || cmd.Stick.Yaw != 0.3 || cmd.Stick.Thrust != 1 {
		t.Fatalf("cmd=%+v", cmd)
	}
}

func TestParseLine_Rejects(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{name: "NoDollar", line: "STK,0,0,0,0*00"},
		{name: "NoChecksum", line: "$STK,0,0,0,0"},
		{name: "ShortChecksum", line: "$STK,0,0,0,0*1"},
		{name: "BadChecksum", line: "$STK,0,0,0,0*ZZ"},
		{name: "ChecksumMismatch", line: "$STK,0,0,0,0*00"},
		{name: "WrongTalker", line: withChecksum("GPGGA,0,0,0,0")},
		{name: "TooFewFields", line: withChecksum("STK,0,0,0")},
		{name: "TooManyFields", line: withChecksum("STK,0,0,0,0,land,x")},
		{name: "NotANumber", line: withChecksum("STK,0,abc,0,0")},
		{name: "UnknownMode", line: withChecksum("STK,0,0,0,0,acro")},
		{name: "NaNThrust", line: withChecksum("STK,0,0,0,NaN,auto_cruise")},
		{name: "InfRoll", line: withChecksum("STK,+Inf,0,0,0.5")},
		{name: "NegInfPitch", line: withChecksum("STK,0,-inf,0,0.5")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseLine(tc.line, time.Time{}); err == nil {
				t.Fatalf("expected error for %q", tc.line)
			}
		})
	}
}

func TestFormatLine_ParsesBack(t *testing.T) {
	s := plans.Stick{Roll: -0.5, Pitch: 0.75, Yaw: 0.125, Thrust: 0.25}
	line := FormatLine(s, plans.ModeAutoCruise)
	if !strings.HasPrefix(line, "$STK,-0.500,0.750,0.125,0.250,auto_cruise*") {
		t.Fatalf("line=%q", line)
	}
	cmd, err := ParseLine(line, time.Time{})
	if err != nil {
		t.Fatalf("ParseLine(%q) error: %v", line, err)
	}
	if cmd.Stick != s || cmd.FlightMode != plans.ModeAutoCruise {
		t.Fatalf("cmd=%+v", cmd)
	}

	if line := FormatLine(s, 0); strings.Contains(line, "auto_cruise") {
		t.Fatalf("mode rendered for zero mode: %q", line)
	}
}

func TestReader_RunInheritsModeAndSkipsNoise(t *testing.T) {
	input := strings.Join([]string{
		"boot banner",
		FormatLine(plans.Stick{Thrust: 0.5}, plans.ModeVarioFixed),
		"$STK,1,1,1,1*00",
		FormatLine(plans.Stick{Pitch: 1, Thrust: 0.5}, 0),
		FormatLine(plans.Stick{Thrust: 0.5}, plans.ModeLand),
	}, "\n")

	rd := NewReader(strings.NewReader(input))
	var got []vehicle.ManualControlCommand
	err := rd.Run(context.Background(), func(cmd vehicle.ManualControlCommand) {
		got = append(got, cmd)
	})
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err=%v want io.EOF", err)
	}
	if len(got) != 3 {
		t.Fatalf("samples=%d want 3", len(got))
	}
	wantModes := []plans.FlightMode{plans.ModeVarioFixed, plans.ModeVarioFixed, plans.ModeLand}
	for i, m := range wantModes {
		if got[i].FlightMode != m {
			t.Fatalf("sample %d mode=%v want %v", i, got[i].FlightMode, m)
		}
	}
	if got[1].Stick.Pitch != 1 {
		t.Fatalf("sample 1 stick=%+v", got[1].Stick)
	}
	if lines, bad := rd.Counts(); lines != 4 || bad != 1 {
		t.Fatalf("lines=%d bad=%d want 4/1", lines, bad)
	}
}

func TestReader_RunSkipsOverlongLine(t *testing.T) {
	input := "$STK," + strings.Repeat("0", 3*maxLineLen) + "\r\n" +
		FormatLine(plans.Stick{Roll: -0.5, Thrust: 0.5}, plans.ModeAutoCruise) + "\n"

	rd := NewReader(strings.NewReader(input))
	var got []vehicle.ManualControlCommand
	err := rd.Run(context.Background(), func(cmd vehicle.ManualControlCommand) {
		got = append(got, cmd)
	})
	if !errors.Is(err, io.EOF) {
		t.Fatalf("err=%v want io.EOF", err)
	}
	if len(got) != 1 || got[0].FlightMode != plans.ModeAutoCruise || got[0].Stick.Roll != -0.5 {
		t.Fatalf("samples=%+v want one autocruise sample", got)
	}
	if lines, bad := rd.Counts(); lines != 2 || bad != 1 {
		t.Fatalf("lines=%d bad=%d want 2/1", lines, bad)
	}
}

func TestReader_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rd := NewReader(strings.NewReader(FormatLine(plans.Stick{}, plans.ModeLand)))
	called := false
	err := rd.Run(ctx, func(vehicle.ManualControlCommand) { called = true })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if called {
		t.Fatalf("callback ran after cancel")
	}
}

func TestService_OpenFailureReported(t *testing.T) {
	bus := vehicle.NewBus(vehicle.FlightModeSettings{}, vehicle.TakeoffLocation{})
	svc := NewService(Config{Device: "/nonexistent/tty-stick", Baud: 115200}, bus)
	if err := svc.Start(context.Background()); err == nil {
		_ = svc.Close()
		t.Fatalf("expected open error")
	}
	if snap := svc.Snapshot(); snap.LastError == "" {
		t.Fatalf("lastError empty after failed start")
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}
