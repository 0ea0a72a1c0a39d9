package shuffle

import (
	"context"
	"errors"
	"time"

	"github.com/coder/quartz"
)

// DefaultFrameInterval is the per-frame tick driving motion interpolation,
// roughly 60 frames per second.
const DefaultFrameInterval = 16 * time.Millisecond

// Scheduler drives a motion task: fn observes eased progress in [0,1] once
// per frame, and the returned channel closes when the motion completes.
// The engine joins on two of these channels per swap before committing the
// logical update.
type Scheduler interface {
	Animate(ctx context.Context, d time.Duration, fn func(progress float64)) <-chan struct{}
}

var errMotionDone = errors.New("motion complete")

// ClockScheduler implements Scheduler on a quartz.Clock. Production code
// hands it quartz.NewReal(); tests hand it a quartz.Mock and fast-forward
// time instead of waiting on real frames.
type ClockScheduler struct {
	clock quartz.Clock
	frame time.Duration
}

// NewClockScheduler creates a scheduler ticking at DefaultFrameInterval.
func NewClockScheduler(clock quartz.Clock) *ClockScheduler {
	return &ClockScheduler{clock: clock, frame: DefaultFrameInterval}
}

// Animate runs one motion task over duration d. fn is called with eased
// progress each frame and is guaranteed a final call with 1 on normal
// completion; progress never decreases. A cancelled ctx ends the motion
// early without the final call. A nil fn is allowed for pure delays.
func (s *ClockScheduler) Animate(ctx context.Context, d time.Duration, fn func(progress float64)) <-chan struct{} {
	done := make(chan struct{})
	if fn == nil {
		fn = func(float64) {}
	}
	if d <= 0 {
		fn(1)
		close(done)
		return done
	}

	start := s.clock.Now("motion")
	waiter := s.clock.TickerFunc(ctx, s.frame, func() error {
		elapsed := s.clock.Since(start, "motion")
		if elapsed >= d {
			fn(1)
			return errMotionDone
		}
		fn(EaseInOut(float64(elapsed) / float64(d)))
		return nil
	}, "motion")

	go func() {
		defer close(done)
		_ = waiter.Wait()
	}()
	return done
}

// EaseInOut is the smoothstep curve used for all cup motion: slow start,
// slow finish. Input outside [0,1] is clamped.
func EaseInOut(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}
