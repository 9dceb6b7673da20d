package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeExpirer struct {
	mu      sync.Mutex
	expired int
	err     error
	calls   []time.Time
}

func (f *fakeExpirer) ExpireIdle(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, now)
	return f.expired, f.err
}

func (f *fakeExpirer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestJanitor_Sweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	exp := &fakeExpirer{expired: 2}
	j := NewJanitor(JanitorConfig{}, exp, zerolog.Nop())
	j.now = func() time.Time { return now }

	assert.Equal(t, time.Minute, j.interval)
	assert.Equal(t, 2, j.Sweep(context.Background()))
	assert.Equal(t, []time.Time{now}, exp.calls)

	exp.err = errors.New("store down")
	exp.expired = 1
	assert.Equal(t, 1, j.Sweep(context.Background()))
}

func TestJanitor_Run(t *testing.T) {
	exp := &fakeExpirer{}
	j := NewJanitor(JanitorConfig{Interval: 5 * time.Millisecond}, exp, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return exp.callCount() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
