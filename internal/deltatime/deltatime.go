package deltatime

import "time"

// Filter estimates the period between successive AverageSeconds calls.
//
// The first call returns the expected period and starts the clock. Each
// later call measures the time since the previous one, bounds it to
// [min, max] and folds it into an exponential moving average seeded with the
// expected period.
//
// Not safe for concurrent use.
type Filter struct {
	min   float32
	max   float32
	alpha float32

	average float32
	started bool
	last    time.Time
	now     func() time.Time
}

// New starts a filter. now may be nil to use time.Now.
func New(expected, min, max, alpha float32, now func() time.Time) *Filter {
	if now == nil {
		now = time.Now
	}
	return &Filter{
		min:     min,
		max:     max,
		alpha:   alpha,
		average: expected,
		now:     now,
	}
}

// AverageSeconds records a sample and returns the smoothed period.
func (f *Filter) AverageSeconds() float32 {
	t := f.now()
	if !f.started {
		f.started = true
		f.last = t
		return f.average
	}
	dt := float32(t.Sub(f.last).Seconds())
	f.last = t
	if dt < f.min {
		dt = f.min
	}
	if dt > f.max {
		dt = f.max
	}
	f.average = f.average*(1-f.alpha) + dt*f.alpha
	return f.average
}
