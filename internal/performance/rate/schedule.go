// Package rate provides the open-model arrival clock for load testing.
package rate

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"
)

// Schedule computes and emits evenly spaced iteration start instants.
//
// Unlike a token or leaky bucket, which answer "when may the next iteration
// run given what happened so far", a Schedule is fixed in advance: instant i
// is start + i*timeUnit/rate, for every i with that offset below duration. How long
// earlier iterations take has no effect on later instants.
//
// # Falling behind
//
// If the emitter wakes up after one or more nominal instants have passed,
// it emits a single arrival immediately and resumes at the first nominal
// instant that is still in the future. The skipped instants are counted as
// missed rather than released as a burst.
//
// # Example
//
//	s, _ := NewSchedule(100, time.Second, time.Minute) // 100 per second for 1m
//	stats := s.Run(ctx, time.Now(), func(a Arrival) {
//	    // dispatch iteration a.Seq, intended for a.Scheduled
//	})
type Schedule struct {
	rate     float64
	timeUnit time.Duration
	duration time.Duration
	interval time.Duration
	count    int64

	// clock hooks, replaced in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	emitted atomic.Int64
	missed  atomic.Int64
	late    atomic.Int64
}

// Arrival is one intended iteration start.
type Arrival struct {
	// Seq is the nominal index of the instant, starting at 0
	Seq int64

	// Scheduled is the intended start instant
	Scheduled time.Time

	// Lag is how far past Scheduled the arrival was actually emitted
	Lag time.Duration
}

// Stats contains statistics about a Schedule run.
type Stats struct {
	Rate     float64       `json:"rate"`     // Iterations per time unit
	TimeUnit time.Duration `json:"timeUnit"` // Unit the rate is expressed in
	Interval time.Duration `json:"interval"` // Spacing between nominal instants
	Planned  int64         `json:"planned"`  // Nominal instants in the run
	Emitted  int64         `json:"emitted"`  // Arrivals actually emitted
	Missed   int64         `json:"missed"`   // Nominal instants skipped while behind
	Late     int64         `json:"late"`     // Arrivals emitted after the next instant had passed
}

// ErrInvalidRate is returned for non-positive rates, time units or durations.
var ErrInvalidRate = errors.New("rate, time unit and duration must be positive")

// NewSchedule creates a schedule for rate iterations per timeUnit over duration.
func NewSchedule(rate float64, timeUnit, duration time.Duration) (*Schedule, error) {
	if rate <= 0 || timeUnit <= 0 || duration <= 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
		return nil, ErrInvalidRate
	}

	interval := time.Duration(float64(timeUnit) / rate)
	if interval <= 0 {
		interval = 1
	}

	return &Schedule{
		rate:     rate,
		timeUnit: timeUnit,
		duration: duration,
		interval: interval,
		count:    countInstants(rate, timeUnit, duration),
		now:      time.Now,
		sleep:    sleepContext,
	}, nil
}

// countInstants returns how many instants i*timeUnit/rate lie in [0, duration).
func countInstants(rate float64, timeUnit, duration time.Duration) int64 {
	x := rate * float64(duration) / float64(timeUnit)
	n := int64(math.Ceil(x - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

// Interval returns the spacing between consecutive nominal instants.
func (s *Schedule) Interval() time.Duration {
	return s.interval
}

// Count returns the number of nominal instants covering [0, duration).
func (s *Schedule) Count() int64 {
	return s.count
}

// Duration returns the span the schedule covers.
func (s *Schedule) Duration() time.Duration {
	return s.duration
}

// Instant returns nominal instant i relative to start. It is computed from
// the rate directly so rounding of Interval does not accumulate.
func (s *Schedule) Instant(start time.Time, i int64) time.Time {
	return start.Add(time.Duration(math.Round(float64(i) * float64(s.timeUnit) / s.rate)))
}

// Run emits every nominal instant at or after its time and blocks until the
// schedule is exhausted or ctx is cancelled. emit is called synchronously on
// the scheduling goroutine and must not block.
func (s *Schedule) Run(ctx context.Context, start time.Time, emit func(Arrival)) Stats {
	for i := int64(0); i < s.count; {
		target := s.Instant(start, i)

		if wait := target.Sub(s.now()); wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				break
			}
		} else if ctx.Err() != nil {
			break
		}

		now := s.now()
		lag := now.Sub(target)
		if lag < 0 {
			lag = 0
		}
		emit(Arrival{Seq: i, Scheduled: target, Lag: lag})
		s.emitted.Add(1)

		next := i + 1
		if lag >= s.interval {
			// first nominal instant strictly after now
			resume := int64(math.Floor(float64(now.Sub(start))*s.rate/float64(s.timeUnit))) + 1
			if resume > s.count {
				resume = s.count
			}
			s.late.Add(1)
			s.missed.Add(resume - next)
			next = resume
		}
		i = next
	}

	return s.Stats()
}

// Stats returns a snapshot of the schedule counters.
func (s *Schedule) Stats() Stats {
	return Stats{
		Rate:     s.rate,
		TimeUnit: s.timeUnit,
		Interval: s.interval,
		Planned:  s.count,
		Emitted:  s.emitted.Load(),
		Missed:   s.missed.Load(),
		Late:     s.late.Load(),
	}
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
