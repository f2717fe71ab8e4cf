package web

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestLogBuffer_SplitsAcrossWrites(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("first line\nsec"))
	_, _ = b.Write([]byte("ond line\r\n\nthird"))

	lines, _ := b.Snapshot(0, "")
	if strings.Join(lines, "|") != "first line|second line" {
		t.Fatalf("lines=%q", lines)
	}

	_, _ = b.Write([]byte("\n"))
	lines, _ = b.Snapshot(0, "")
	if len(lines) != 3 || lines[2] != "third" {
		t.Fatalf("lines=%q", lines)
	}
}

func TestLogBuffer_DropsOldest(t *testing.T) {
	b := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		fmt.Fprintf(b, "line %d\n", i)
	}
	lines, dropped := b.Snapshot(10, "")
	if dropped != 2 {
		t.Fatalf("dropped=%d want 2", dropped)
	}
	if strings.Join(lines, "|") != "line 2|line 3|line 4" {
		t.Fatalf("lines=%q", lines)
	}
}

func TestLogBuffer_TailAndMatch(t *testing.T) {
	b := NewLogBuffer(0)
	for i := 0; i < 6; i++ {
		kind := "cycle"
		if i%2 == 0 {
			kind = "mode"
		}
		fmt.Fprintf(b, "%s n=%d\n", kind, i)
	}
	lines, _ := b.Snapshot(2, "mode")
	if strings.Join(lines, "|") != "mode n=2|mode n=4" {
		t.Fatalf("lines=%q", lines)
	}
	lines, _ = b.Snapshot(2, "")
	if strings.Join(lines, "|") != "mode n=4|cycle n=5" {
		t.Fatalf("lines=%q", lines)
	}
}

func TestLogBuffer_LongPartialFlushed(t *testing.T) {
	b := NewLogBuffer(5)
	_, _ = b.Write([]byte(strings.Repeat("x", maxPartialLine+1)))
	lines, _ := b.Snapshot(0, "")
	if len(lines) != 1 || len(lines[0]) != maxPartialLine+1 {
		t.Fatalf("lines=%d", len(lines))
	}
}

func TestLogsHandler(t *testing.T) {
	b := NewLogBuffer(10)
	fmt.Fprintf(b, "alpha\nbeta\n")
	ts := httptest.NewServer(Handler(nil, SettingsStore{}, b, nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/logs?tail=1")
	if err != nil {
		t.Fatalf("get logs: %v", err)
	}
	var got LogsResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	resp.Body.Close()
	if len(got.Lines) != 1 || got.Lines[0] != "beta" {
		t.Fatalf("lines=%q", got.Lines)
	}

	resp, err = http.Get(ts.URL + "/api/logs?format=text")
	if err != nil {
		t.Fatalf("get logs text: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "alpha\nbeta\n" {
		t.Fatalf("body=%q", body)
	}

	resp, err = http.Get(ts.URL + "/api/logs?tail=0")
	if err != nil {
		t.Fatalf("get logs bad tail: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", resp.StatusCode)
	}
}
