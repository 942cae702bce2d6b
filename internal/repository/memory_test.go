package repository

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/immxrtalbeast/meetsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingObserver struct {
	mu     sync.Mutex
	events []domain.LifecycleEvent
}

func (o *recordingObserver) OnLifecycle(ev domain.LifecycleEvent) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func (o *recordingObserver) count(kind domain.LifecycleKind) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, ev := range o.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func newTestStore(t *testing.T, opts ...StoreOption) (*MeetingStore, *fakeClock, *recordingObserver) {
	t.Helper()
	clock := newFakeClock()
	obs := &recordingObserver{}
	opts = append([]StoreOption{WithClock(clock.Now)}, opts...)
	s := NewMeetingStore(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
	s.Observe(obs)
	return s, clock, obs
}

func draft(duration int) domain.MeetingDraft {
	return domain.MeetingDraft{
		Title:           "Standup",
		DurationMinutes: duration,
		HostName:        "Ann",
		Settings:        domain.DefaultSettings(),
	}
}

func TestNewMeetingID(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewMeetingID()
		require.Len(t, id, 10)
		assert.Regexp(t, `^[a-z0-9]{10}$`, id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1000)
}

func TestMeetingStoreCreate(t *testing.T) {
	ctx := context.Background()
	s, _, obs := newTestStore(t)

	m, err := s.Create(ctx, draft(30))
	require.NoError(t, err)
	assert.False(t, m.IsActive)
	require.Len(t, m.Participants, 1)
	assert.True(t, m.Participants[0].IsHost)
	assert.Equal(t, m.HostID, m.Participants[0].ID)
	assert.Equal(t, 1, obs.count(domain.LifecycleCreated))

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	_, err = s.Create(ctx, draft(0))
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = s.Create(ctx, draft(1441))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMeetingStoreCreateRetriesOnCollision(t *testing.T) {
	ctx := context.Background()
	ids := []string{"aaaaaaaaaa", "aaaaaaaaaa", "bbbbbbbbbb"}
	var i int
	gen := func() string {
		id := ids[i%len(ids)]
		i++
		return id
	}
	s, _, _ := newTestStore(t, WithIDGenerator(gen))

	first, err := s.Create(ctx, draft(5))
	require.NoError(t, err)
	second, err := s.Create(ctx, draft(5))
	require.NoError(t, err)

	assert.Equal(t, "aaaaaaaaaa", first.ID)
	assert.Equal(t, "bbbbbbbbbb", second.ID)
	assert.NotEqual(t, first.HostID, second.HostID)
}

func TestMeetingStoreCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, WithIDGenerator(func() string { return "samesameid" }))

	_, err := s.Create(ctx, draft(5))
	require.NoError(t, err)
	_, err = s.Create(ctx, draft(5))
	assert.ErrorIs(t, err, domain.ErrInternal)
}

func TestMeetingStoreGetUnknown(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMeetingStoreJoin(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	m, err := s.Create(ctx, draft(30))
	require.NoError(t, err)

	res, err := s.Join(ctx, m.ID, "Bob", "")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Participant.IsHost)
	assert.Len(t, res.Meeting.Participants, 2)

	again, err := s.Join(ctx, m.ID, "Bob", res.Participant.ID)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, res.Participant.ID, again.Participant.ID)
	assert.Len(t, again.Meeting.Participants, 2)

	_, err = s.Join(ctx, "missing", "Bob", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMeetingStoreJoinFull(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	d := draft(30)
	d.Settings.MaxParticipants = 2
	m, err := s.Create(ctx, d)
	require.NoError(t, err)

	_, err = s.Join(ctx, m.ID, "Bob", "")
	require.NoError(t, err)
	_, err = s.Join(ctx, m.ID, "Cid", "")
	assert.ErrorIs(t, err, domain.ErrFull)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, 2)
}

func TestMeetingStoreStartAndEnd(t *testing.T) {
	ctx := context.Background()
	s, _, obs := newTestStore(t)
	m, err := s.Create(ctx, draft(30))
	require.NoError(t, err)
	bob, err := s.Join(ctx, m.ID, "Bob", "")
	require.NoError(t, err)

	_, err = s.Start(ctx, m.ID, bob.Participant.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	started, err := s.Start(ctx, m.ID, m.HostID)
	require.NoError(t, err)
	assert.True(t, started.IsActive)
	require.NotNil(t, started.StartedAt)

	_, err = s.Start(ctx, m.ID, m.HostID)
	assert.ErrorIs(t, err, domain.ErrAlreadyActive)

	_, err = s.End(ctx, m.ID, bob.Participant.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	still, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, still.IsActive)

	ended, err := s.End(ctx, m.ID, m.HostID)
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	assert.Equal(t, domain.ReasonHostEnded, ended.EndReason)

	assert.Equal(t, 1, obs.count(domain.LifecycleStarted))
	assert.Equal(t, 1, obs.count(domain.LifecycleEnded))
}

func TestMeetingStoreLazyExpiryIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s, clock, obs := newTestStore(t)
	m, err := s.Create(ctx, draft(1))
	require.NoError(t, err)
	_, err = s.Start(ctx, m.ID, m.HostID)
	require.NoError(t, err)

	clock.Advance(61 * time.Second)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, domain.ReasonExpired, got.EndReason)

	_, err = s.Get(ctx, m.ID)
	require.NoError(t, err)

	expired, err := s.Expire(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, expired, "already ended by the lazy path")

	assert.Equal(t, 1, obs.count(domain.LifecycleEnded))

	_, err = s.End(ctx, m.ID, m.HostID)
	assert.ErrorIs(t, err, domain.ErrExpired)
	_, err = s.Join(ctx, m.ID, "Late", "")
	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestMeetingStoreSweepPath(t *testing.T) {
	ctx := context.Background()
	s, clock, obs := newTestStore(t)
	due, err := s.Create(ctx, draft(1))
	require.NoError(t, err)
	long, err := s.Create(ctx, draft(60))
	require.NoError(t, err)
	idle, err := s.Create(ctx, draft(1))
	require.NoError(t, err)

	_, err = s.Start(ctx, due.ID, due.HostID)
	require.NoError(t, err)
	_, err = s.Start(ctx, long.ID, long.HostID)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)

	ids, err := s.DueForExpiry(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{due.ID}, ids)

	list, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1, "due meetings are filtered out before the sweep")
	assert.Equal(t, long.ID, list[0].ID)

	ok, err := s.Expire(ctx, due.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Expire(ctx, due.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Expire(ctx, idle.ID)
	require.NoError(t, err)
	assert.False(t, ok, "never-started meetings are not expired")

	assert.Equal(t, 1, obs.count(domain.LifecycleEnded))
}

func TestMeetingStoreListActiveOrderAndStats(t *testing.T) {
	ctx := context.Background()
	s, clock, _ := newTestStore(t)

	var ids []string
	for i := 0; i < 3; i++ {
		m, err := s.Create(ctx, draft(60))
		require.NoError(t, err)
		_, err = s.Start(ctx, m.ID, m.HostID)
		require.NoError(t, err)
		ids = append(ids, m.ID)
		clock.Advance(time.Second)
	}
	_, err := s.Join(ctx, ids[0], "Bob", "")
	require.NoError(t, err)
	_, err = s.Create(ctx, draft(60))
	require.NoError(t, err)

	list, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[0], list[2].ID)
	assert.Equal(t, 2, list[2].ParticipantsCount)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{TotalMeetings: 4, ActiveMeetings: 3, TotalParticipants: 5}, st)
}

func TestMeetingStoreParticipantUpdates(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	m, err := s.Create(ctx, draft(30))
	require.NoError(t, err)

	p, upd, err := s.ToggleParticipant(ctx, m.ID, m.HostID, domain.ToggleMute)
	require.NoError(t, err)
	assert.True(t, p.IsMuted)
	require.NotNil(t, upd.IsMuted)
	assert.True(t, *upd.IsMuted)

	p, _, err = s.ToggleParticipant(ctx, m.ID, m.HostID, domain.ToggleMute)
	require.NoError(t, err)
	assert.False(t, p.IsMuted)

	name := "Annie"
	p, err = s.UpdateParticipant(ctx, m.ID, m.HostID, domain.ParticipantUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Annie", p.Name)

	_, err = s.UpdateParticipant(ctx, m.ID, "ghost", domain.ParticipantUpdate{Name: &name})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	blank := " "
	_, err = s.UpdateParticipant(ctx, m.ID, m.HostID, domain.ParticipantUpdate{Name: &blank})
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Annie", got.Participants[0].Name)
}

func TestMeetingStoreClearConnection(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	m, err := s.Create(ctx, draft(30))
	require.NoError(t, err)

	c1, c2 := "conn-1", "conn-2"
	_, err = s.UpdateParticipant(ctx, m.ID, m.HostID, domain.ParticipantUpdate{ConnectionID: &c1})
	require.NoError(t, err)
	_, err = s.UpdateParticipant(ctx, m.ID, m.HostID, domain.ParticipantUpdate{ConnectionID: &c2})
	require.NoError(t, err)

	p, cleared, err := s.ClearConnection(ctx, m.ID, m.HostID, c1)
	require.NoError(t, err)
	assert.False(t, cleared, "a stale connection must not unbind the newer one")
	assert.Equal(t, c2, p.ConnectionID)

	p, cleared, err = s.ClearConnection(ctx, m.ID, m.HostID, c2)
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.False(t, p.Connected())
}

func TestMeetingStoreSnapshotsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	m, err := s.Create(ctx, draft(30))
	require.NoError(t, err)

	m.Participants[0].Name = "mutated"

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Participants[0].Name)
}

func TestMeetingStoreConcurrentJoins(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	d := draft(30)
	d.Settings.MaxParticipants = 20
	m, err := s.Create(ctx, d)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		full int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.Join(ctx, m.ID, fmt.Sprintf("guest-%d", i), "")
			if err != nil {
				mu.Lock()
				full++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	got, err := s.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, 20)
	assert.Equal(t, 21, full)
}

func TestMeetingStoreCanceledContext(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, draft(5))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryAuditRepository(t *testing.T) {
	ctx := context.Background()
	r := NewInMemoryAuditRepository()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, r.Record(ctx, domain.NewAuditEntry("m1", domain.AuditCreated, "host", at)))
	require.NoError(t, r.Record(ctx, domain.NewAuditEntry("m1", domain.AuditStarted, "host", at.Add(time.Minute))))
	require.NoError(t, r.Record(ctx, domain.NewAuditEntry("m2", domain.AuditCreated, "other", at)))

	got, err := r.ListByMeeting(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.AuditCreated, got[0].Action)
	assert.Equal(t, domain.AuditStarted, got[1].Action)

	none, err := r.ListByMeeting(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}
