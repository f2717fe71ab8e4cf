package web

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pathplanner/internal/plans"
)

// PathEvent is one published segment as sent on /api/stream.
type PathEvent struct {
	Seq        uint64            `json:"seq"`
	TimeUTC    string            `json:"time_utc"`
	FlightMode string            `json:"flight_mode"`
	Hold       bool              `json:"hold"`
	Segment    plans.PathSegment `json:"segment"`
}

// PathBroadcaster fans published segments out to stream listeners. It keeps
// the most recent event so new subscribers get an immediate sample. Slow
// subscribers drop events rather than stall the control loop.
type PathBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan PathEvent
	nextID   int
	seq      uint64
	last     PathEvent
	haveLast bool
	closed   bool
}

func NewPathBroadcaster() *PathBroadcaster {
	return &PathBroadcaster{
		subs: make(map[int]chan PathEvent),
	}
}

// Subscribe returns a nil channel after Close.
func (b *PathBroadcaster) Subscribe(buffer int) (int, <-chan PathEvent) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan PathEvent, buffer)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, nil
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	last := b.last
	have := b.haveLast
	b.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (b *PathBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *PathBroadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish stamps ev with the next sequence number and, if unset, the
// current time.
func (b *PathBroadcaster) Publish(ev PathEvent) {
	if b == nil {
		return
	}
	if ev.TimeUTC == "" {
		ev.TimeUTC = time.Now().UTC().Format(time.RFC3339Nano)
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.seq++
	ev.Seq = b.seq
	b.last = ev
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	b.mu.Unlock()
}

// Close ends every subscription. Hijacked stream connections are not
// tracked by http.Server.Shutdown, so this is what stops them.
func (b *PathBroadcaster) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

const (
	socketBufferSize  = 1024
	messageBufferSize = 16
	writeWait         = 5 * time.Second
	pongWait          = 30 * time.Second
	pingPeriod        = pongWait * 9 / 10
)

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

// StreamHandler upgrades to a websocket and sends one JSON text message per
// published segment until the client leaves or the broadcaster closes.
func StreamHandler(b *PathBroadcaster) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if b == nil {
			http.Error(w, "stream unavailable", http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			log.Printf("web: stream upgrade failed remote=%s err=%v", r.RemoteAddr, err)
			return
		}
		defer conn.Close()

		id, events := b.Subscribe(messageBufferSize)
		defer b.Unsubscribe(id)
		if events == nil {
			writeClose(conn)
			return
		}

		// The reader only drains control frames and notices the peer leaving.
		gone := make(chan struct{})
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-gone:
				return
			case ev, ok := <-events:
				if !ok {
					writeClose(conn)
					return
				}
				msg, err := json.Marshal(ev)
				if err != nil {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	})
}

func writeClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
