package web

import (
	"sync"
	"sync/atomic"
	"time"

	"pathplanner/internal/plans"
)

type Status struct {
	startUnixNano int64
	lastTickNano  int64
	cycles        uint64
	published     uint64
	overruns      uint64
	active        atomic.Bool
	moving        atomic.Bool
	mode          atomic.Value // string
	stickSource   atomic.Value // string
	interval      atomic.Value // string
	telemetryDest atomic.Value // string
	segment       atomic.Value // SegmentSnapshot
	vehicle       atomic.Value // VehicleSnapshot

	linkMu    sync.Mutex
	reporters map[string]func() any
}

func NewStatus() *Status {
	s := &Status{}
	now := time.Now().UTC()
	atomic.StoreInt64(&s.startUnixNano, now.UnixNano())
	s.mode.Store("")
	s.stickSource.Store("")
	s.interval.Store("")
	s.telemetryDest.Store("")
	s.segment.Store(SegmentSnapshot{})
	s.vehicle.Store(VehicleSnapshot{})
	return s
}

// SegmentSnapshot is the last segment the control loop published.
type SegmentSnapshot struct {
	Valid         bool              `json:"valid"`
	Segment       plans.PathSegment `json:"segment"`
	LastUpdateUTC string            `json:"last_update_utc,omitempty"`
}

// VehicleSnapshot is the vehicle state the planner last read.
type VehicleSnapshot struct {
	Position plans.Vec3 `json:"position"`
	YawDeg   float32    `json:"yaw_deg"`
}

func (s *Status) SetStatic(stickSource string, interval string, telemetryDest string) {
	if stickSource != "" {
		s.stickSource.Store(stickSource)
	}
	if interval != "" {
		s.interval.Store(interval)
	}
	if telemetryDest != "" {
		s.telemetryDest.Store(telemetryDest)
	}
}

// SetMode records the active flight mode. An empty mode marks the planner
// inactive.
func (s *Status) SetMode(mode string) {
	s.mode.Store(mode)
	s.active.Store(mode != "")
}

// SetLinkReporter installs fn to report the health of the named link (stick,
// telemetry) under "links" in snapshots. A nil fn removes the reporter.
func (s *Status) SetLinkReporter(name string, fn func() any) {
	s.linkMu.Lock()
	defer s.linkMu.Unlock()
	if fn == nil {
		delete(s.reporters, name)
		return
	}
	if s.reporters == nil {
		s.reporters = map[string]func() any{}
	}
	s.reporters[name] = fn
}

func (s *Status) SetMoving(v bool) {
	s.moving.Store(v)
}

func (s *Status) SetVehicle(v VehicleSnapshot) {
	s.vehicle.Store(v)
}

// MarkTick counts one control cycle.
func (s *Status) MarkTick(nowUTC time.Time) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.StoreInt64(&s.lastTickNano, nowUTC.UnixNano())
	atomic.AddUint64(&s.cycles, 1)
}

func (s *Status) MarkPublished(nowUTC time.Time, seg plans.PathSegment) {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	atomic.AddUint64(&s.published, 1)
	s.segment.Store(SegmentSnapshot{
		Valid:         true,
		Segment:       seg,
		LastUpdateUTC: nowUTC.UTC().Format(time.RFC3339Nano),
	})
}

// MarkOverrun counts a cycle that took longer than the loop interval and
// returns the new total.
func (s *Status) MarkOverrun() uint64 {
	return atomic.AddUint64(&s.overruns, 1)
}

type StatusSnapshot struct {
	Service       string          `json:"service"`
	NowUTC        string          `json:"now_utc"`
	UptimeSec     int64           `json:"uptime_sec"`
	FlightMode    string          `json:"flight_mode"`
	Active        bool            `json:"active"`
	Moving        bool            `json:"moving"`
	StickSource   string          `json:"stick_source"`
	Interval      string          `json:"interval"`
	TelemetryDest string          `json:"telemetry_dest,omitempty"`
	Cycles        uint64          `json:"cycles"`
	SegmentsTotal uint64          `json:"segments_published_total"`
	Overruns      uint64          `json:"overruns"`
	LastTickUTC   string          `json:"last_tick_utc,omitempty"`
	LastSegment   SegmentSnapshot `json:"last_segment"`
	Vehicle       VehicleSnapshot `json:"vehicle"`
	Links         map[string]any  `json:"links,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()
	uptime := nowUTC.Sub(start)
	lastTick := atomic.LoadInt64(&s.lastTickNano)

	snap := StatusSnapshot{
		Service:       serviceName,
		NowUTC:        nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec:     int64(uptime.Seconds()),
		FlightMode:    s.mode.Load().(string),
		Active:        s.active.Load(),
		Moving:        s.moving.Load(),
		StickSource:   s.stickSource.Load().(string),
		Interval:      s.interval.Load().(string),
		TelemetryDest: s.telemetryDest.Load().(string),
		Cycles:        atomic.LoadUint64(&s.cycles),
		SegmentsTotal: atomic.LoadUint64(&s.published),
		Overruns:      atomic.LoadUint64(&s.overruns),
		LastSegment:   s.segment.Load().(SegmentSnapshot),
		Vehicle:       s.vehicle.Load().(VehicleSnapshot),
	}
	s.linkMu.Lock()
	if len(s.reporters) > 0 {
		snap.Links = make(map[string]any, len(s.reporters))
		for name, fn := range s.reporters {
			snap.Links[name] = fn()
		}
	}
	s.linkMu.Unlock()
	if lastTick != 0 {
		snap.LastTickUTC = time.Unix(0, lastTick).UTC().Format(time.RFC3339Nano)
	}
	return snap
}
