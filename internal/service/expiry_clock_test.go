package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySweeper struct {
	calls atomic.Int32
}

func (s *flakySweeper) SweepExpired(context.Context) (int, error) {
	switch s.calls.Add(1) {
	case 1:
		return 0, errors.New("boom")
	case 2:
		panic("sweep exploded")
	default:
		return 1, nil
	}
}

func TestExpiryClockKeepsRunningAfterFailures(t *testing.T) {
	sweeper := &flakySweeper{}
	clock := NewExpiryClock(sweeper, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- clock.Run(ctx) }()

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 4 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("expiry clock did not stop")
	}
}

func TestExpiryClockDefaultInterval(t *testing.T) {
	clock := NewExpiryClock(&flakySweeper{}, 0, nil)
	assert.Equal(t, DefaultSweepInterval, clock.interval)
}

func TestExpiryClockEndsMeetings(t *testing.T) {
	h := newHarness(t)
	m, host := h.create(t, 1)
	ann := newConn("ann")
	h.join(t, ann, m.ID, "", host.ID)
	_, err := h.svc.StartMeeting(context.Background(), m.ID, host.ID)
	require.NoError(t, err)
	h.clock.Advance(time.Minute)

	clock := NewExpiryClock(h.svc, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- clock.Run(ctx) }()

	require.Eventually(t, func() bool {
		return ann.count("meetingEnded") == 1
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, ann.count("meetingEnded"))
}
