package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pathplanner/internal/plans"
)

func TestPathBroadcaster_LatestToNewSubscriber(t *testing.T) {
	b := NewPathBroadcaster()
	b.Publish(PathEvent{FlightMode: "land"})
	b.Publish(PathEvent{FlightMode: "position_hold"})

	id, ch := b.Subscribe(1)
	defer b.Unsubscribe(id)
	select {
	case ev := <-ch:
		if ev.Seq != 2 || ev.FlightMode != "position_hold" || ev.TimeUTC == "" {
			t.Fatalf("ev=%+v", ev)
		}
	default:
		t.Fatalf("no immediate sample")
	}
}

func TestPathBroadcaster_SlowSubscriberDrops(t *testing.T) {
	b := NewPathBroadcaster()
	id, ch := b.Subscribe(1)
	for i := 0; i < 5; i++ {
		b.Publish(PathEvent{})
	}
	if ev := <-ch; ev.Seq != 1 {
		t.Fatalf("seq=%d want 1", ev.Seq)
	}
	b.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("channel open after Unsubscribe")
	}
	if n := b.Subscribers(); n != 0 {
		t.Fatalf("subscribers=%d", n)
	}
}

func TestPathBroadcaster_Close(t *testing.T) {
	b := NewPathBroadcaster()
	_, ch := b.Subscribe(1)
	b.Close()
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("channel open after Close")
	}
	if _, ch := b.Subscribe(1); ch != nil {
		t.Fatalf("subscribe after Close returned a channel")
	}
	b.Publish(PathEvent{})

	var nilB *PathBroadcaster
	nilB.Publish(PathEvent{})
	nilB.Close()
}

func dialStream(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) PathEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("message type=%d want text", kind)
	}
	var ev PathEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func TestStream_DeliversSegments(t *testing.T) {
	b := NewPathBroadcaster()
	ts := httptest.NewServer(Handler(nil, SettingsStore{}, nil, b))
	defer ts.Close()

	first := plans.PathSegment{End: plans.Vec3{North: 1}, Mode: plans.PathModeFlyEndpoint}
	b.Publish(PathEvent{FlightMode: "vario_fixed", Segment: first})

	conn := dialStream(t, ts)
	defer conn.Close()

	ev := readEvent(t, conn)
	if ev.Seq != 1 || ev.Segment != first {
		t.Fatalf("first ev=%+v", ev)
	}

	second := plans.PathSegment{End: plans.Vec3{North: 2}, Mode: plans.PathModeFlyEndpoint}
	b.Publish(PathEvent{FlightMode: "vario_fixed", Hold: true, Segment: second})
	ev = readEvent(t, conn)
	if ev.Seq != 2 || !ev.Hold || ev.Segment != second {
		t.Fatalf("second ev=%+v", ev)
	}
}

func TestStream_CloseEndsConnection(t *testing.T) {
	b := NewPathBroadcaster()
	ts := httptest.NewServer(Handler(nil, SettingsStore{}, nil, b))
	defer ts.Close()

	b.Publish(PathEvent{})
	conn := dialStream(t, ts)
	defer conn.Close()
	readEvent(t, conn)

	b.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("err=%v want normal closure", err)
	}
}

func TestStream_RejectsPlainHTTP(t *testing.T) {
	ts := httptest.NewServer(Handler(nil, SettingsStore{}, nil, NewPathBroadcaster()))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", resp.StatusCode)
	}

	ts2 := httptest.NewServer(Handler(nil, SettingsStore{}, nil, nil))
	defer ts2.Close()
	resp, err = http.Get(ts2.URL + "/api/stream")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d want 404", resp.StatusCode)
	}
}
