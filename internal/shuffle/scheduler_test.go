package shuffle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEaseInOut(t *testing.T) {
	assert.Equal(t, 0.0, EaseInOut(0))
	assert.Equal(t, 1.0, EaseInOut(1))
	assert.Equal(t, 0.5, EaseInOut(0.5))
	assert.Equal(t, 0.0, EaseInOut(-3))
	assert.Equal(t, 1.0, EaseInOut(2))

	// Slow start, slow finish: the curve sits below the line early and
	// above it late.
	assert.Less(t, EaseInOut(0.25), 0.25)
	assert.Greater(t, EaseInOut(0.75), 0.75)
}

func TestClockScheduler_ProgressAndCompletion(t *testing.T) {
	mock := quartz.NewMock(t)
	sched := NewClockScheduler(mock)
	ctx := context.Background()

	var mu sync.Mutex
	var progress []float64
	done := sched.Animate(ctx, 80*time.Millisecond, func(p float64) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		mock.Advance(16 * time.Millisecond).MustWait(ctx)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("motion did not complete after advancing past its duration")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1], "final frame must report completion")
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1], "progress must not decrease")
	}
}

func TestClockScheduler_JoinBarrier(t *testing.T) {
	// A swap starts two motions together and commits only after both
	// resolve; verify two animations driven by the same clock both finish.
	mock := quartz.NewMock(t)
	sched := NewClockScheduler(mock)
	ctx := context.Background()

	first := sched.Animate(ctx, 48*time.Millisecond, nil)
	second := sched.Animate(ctx, 48*time.Millisecond, nil)

	for i := 0; i < 3; i++ {
		mock.Advance(16 * time.Millisecond).MustWait(ctx)
	}

	for _, ch := range []<-chan struct{}{first, second} {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatal("motion did not resolve")
		}
	}
}

func TestClockScheduler_ZeroDurationCompletesImmediately(t *testing.T) {
	mock := quartz.NewMock(t)
	sched := NewClockScheduler(mock)

	var final float64
	done := sched.Animate(context.Background(), 0, func(p float64) { final = p })

	select {
	case <-done:
	default:
		t.Fatal("zero-duration motion must complete synchronously")
	}
	assert.Equal(t, 1.0, final)
}

func TestClockScheduler_CancelledContextEndsMotion(t *testing.T) {
	mock := quartz.NewMock(t)
	sched := NewClockScheduler(mock)
	ctx, cancel := context.WithCancel(context.Background())

	done := sched.Animate(ctx, time.Second, nil)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled motion did not end")
	}
}
