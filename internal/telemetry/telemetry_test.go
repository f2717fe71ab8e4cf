package telemetry

import (
	"bytes"
	"errors"
	"testing"

	"pathplanner/internal/plans"
)

func TestFrame_StartEndFlags(t *testing.T) {
	got := Frame([]byte{0x00, 0x01})
	if got[0] != flagByte {
		t.Fatalf("missing start flag: 0x%02x", got[0])
	}
	if got[len(got)-1] != flagByte {
		t.Fatalf("missing end flag: 0x%02x", got[len(got)-1])
	}
}

func TestFrame_EscapesControlBytes(t *testing.T) {
	got := Frame([]byte{0x00, flagByte, escapeByte})
	for i := 1; i < len(got)-1; i++ {
		if got[i] == flagByte {
			t.Fatalf("unescaped flag byte found at %d", i)
		}
	}
	msg, ok, err := Unframe(got)
	if err != nil || !ok {
		t.Fatalf("Unframe ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(msg, []byte{0x00, flagByte, escapeByte}) {
		t.Fatalf("msg=% x", msg)
	}
}

func TestUnframe_DetectsCorruption(t *testing.T) {
	frame := Frame([]byte{MsgIDPath, 0x01, 0x02, 0x03})
	frame[2] ^= 0x04
	_, ok, err := Unframe(frame)
	if err != nil {
		t.Fatalf("Unframe err=%v", err)
	}
	if ok {
		t.Fatalf("crc ok on corrupted frame")
	}
}

func TestUnframe_Malformed(t *testing.T) {
	cases := []struct {
		name  string
		frame []byte
	}{
		{name: "Short", frame: []byte{flagByte, 0x00, flagByte}},
		{name: "NoStartFlag", frame: []byte{0x00, 0x01, 0x02, flagByte}},
		{name: "NoEndFlag", frame: []byte{flagByte, 0x01, 0x02, 0x03}},
		{name: "TruncatedEscape", frame: []byte{flagByte, 0x01, 0x02, escapeByte, flagByte}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := Unframe(tc.frame); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestPathReport_EncodeDecode(t *testing.T) {
	want := PathReport{
		FlightMode: plans.ModeVarioBearing,
		Active:     true,
		Hold:       true,
		Segment: plans.PathSegment{
			Start:      plans.Vec3{North: 12.5, East: -3.25, Down: -40},
			End:        plans.Vec3{North: 10.5, East: -3.25, Down: -40},
			StartSpeed: 5,
			EndSpeed:   0,
			Mode:       plans.PathModeFlyEndpoint,
		},
	}
	msg := EncodePath(want)
	if len(msg) != 36 || msg[0] != MsgIDPath {
		t.Fatalf("msg len=%d id=0x%02x", len(msg), msg[0])
	}
	if msg[1] != 0x03 || msg[2] != byte(plans.ModeVarioBearing) || msg[3] != 1 {
		t.Fatalf("header=% x", msg[:4])
	}
	// 12.5 = 0x41480000
	if !bytes.Equal(msg[4:8], []byte{0x41, 0x48, 0x00, 0x00}) {
		t.Fatalf("start.north=% x want 41 48 00 00", msg[4:8])
	}

	got, err := DecodePathFrame(PathFrame(want))
	if err != nil {
		t.Fatalf("DecodePathFrame: %v", err)
	}
	if got != want {
		t.Fatalf("got=%+v want %+v", got, want)
	}
}

func TestDecodePath_Rejects(t *testing.T) {
	if _, err := DecodePath([]byte{0x00, 0x01}); !errors.Is(err, ErrNotPath) {
		t.Fatalf("err=%v want ErrNotPath", err)
	}
	if _, err := DecodePath([]byte{MsgIDPath, 0x01}); err == nil {
		t.Fatalf("expected length error")
	}

	frame := PathFrame(PathReport{Active: true})
	frame[5] ^= 0x10
	if _, err := DecodePathFrame(frame); err == nil {
		t.Fatalf("expected crc error")
	}
}
