package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/meetsync/internal/domain"
)

const (
	meetingIDLength   = 10
	meetingIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	maxCreateAttempts = 8
)

type meetingEntry struct {
	mu      sync.Mutex
	meeting *domain.Meeting
}

// MeetingStore keeps meetings in memory. The map lock guards membership only;
// each meeting has its own lock so rooms do not contend with each other.
type MeetingStore struct {
	mu       sync.RWMutex
	meetings map[string]*meetingEntry

	now      func() time.Time
	newID    func() string
	observer LifecycleObserver
	log      *slog.Logger
}

type StoreOption func(*MeetingStore)

func WithClock(now func() time.Time) StoreOption {
	return func(s *MeetingStore) { s.now = now }
}

func WithIDGenerator(gen func() string) StoreOption {
	return func(s *MeetingStore) { s.newID = gen }
}

func NewMeetingStore(log *slog.Logger, opts ...StoreOption) *MeetingStore {
	if log == nil {
		log = slog.Default()
	}
	s := &MeetingStore{
		meetings: make(map[string]*meetingEntry),
		now:      time.Now,
		newID:    NewMeetingID,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe registers the lifecycle observer. Call before the store is shared.
func (s *MeetingStore) Observe(o LifecycleObserver) {
	s.observer = o
}

// NewMeetingID returns a 10 character id over [a-z0-9] drawn from a random
// uuid. Not secret, only unique enough for retry-on-collision.
func NewMeetingID() string {
	u := uuid.New()
	id := make([]byte, 0, meetingIDLength)
	for i, b := range u {
		// version and variant nibbles live in bytes 6 and 8
		if i == 6 || i == 8 {
			continue
		}
		id = append(id, meetingIDAlphabet[int(b)%len(meetingIDAlphabet)])
		if len(id) == meetingIDLength {
			break
		}
	}
	return string(id)
}

func (s *MeetingStore) Create(ctx context.Context, draft domain.MeetingDraft) (domain.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return domain.Meeting{}, err
	}

	draft, err := draft.Normalize()
	if err != nil {
		return domain.Meeting{}, err
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := s.newID()

		s.mu.Lock()
		if _, taken := s.meetings[id]; taken {
			s.mu.Unlock()
			s.log.Warn("meeting id collision, regenerating", slog.String("meeting_id", id))
			continue
		}
		now := s.now()
		entry := &meetingEntry{meeting: domain.NewMeeting(id, draft, now)}
		entry.mu.Lock()
		s.meetings[id] = entry
		s.mu.Unlock()

		snapshot := entry.meeting.Clone()
		s.notify(domain.LifecycleEvent{
			Kind:    domain.LifecycleCreated,
			Meeting: snapshot,
			Actor:   snapshot.HostID,
			At:      now,
		})
		entry.mu.Unlock()
		return snapshot, nil
	}

	return domain.Meeting{}, fmt.Errorf("%w: could not allocate a meeting id", domain.ErrInternal)
}

func (s *MeetingStore) Get(ctx context.Context, id string) (domain.Meeting, error) {
	var out domain.Meeting
	err := s.withMeeting(ctx, id, func(m *domain.Meeting) error {
		out = m.Clone()
		return nil
	})
	return out, err
}

func (s *MeetingStore) Join(ctx context.Context, id, name, participantID string) (JoinResult, error) {
	var res JoinResult
	err := s.withMeeting(ctx, id, func(m *domain.Meeting) error {
		before := len(m.Participants)
		p, err := m.Join(name, participantID, s.now())
		if err != nil {
			return err
		}
		res.Participant = *p
		res.Created = len(m.Participants) > before
		res.Meeting = m.Clone()
		return nil
	})
	return res, err
}

func (s *MeetingStore) UpdateParticipant(ctx context.Context, meetingID, participantID string, upd domain.ParticipantUpdate) (domain.Participant, error) {
	var out domain.Participant
	err := s.withMeeting(ctx, meetingID, func(m *domain.Meeting) error {
		p := m.Participant(participantID)
		if p == nil {
			return fmt.Errorf("participant: %w", domain.ErrNotFound)
		}
		if err := p.Apply(upd); err != nil {
			return err
		}
		out = *p
		return nil
	})
	return out, err
}

func (s *MeetingStore) ToggleParticipant(ctx context.Context, meetingID, participantID string, t domain.Toggle) (domain.Participant, domain.ParticipantUpdate, error) {
	var (
		out domain.Participant
		upd domain.ParticipantUpdate
	)
	err := s.withMeeting(ctx, meetingID, func(m *domain.Meeting) error {
		p := m.Participant(participantID)
		if p == nil {
			return fmt.Errorf("participant: %w", domain.ErrNotFound)
		}
		upd = p.Flip(t)
		out = *p
		return nil
	})
	return out, upd, err
}

// ClearConnection unbinds connID from the participant only if it is still the
// bound connection. The bool reports whether anything was cleared.
func (s *MeetingStore) ClearConnection(ctx context.Context, meetingID, participantID, connID string) (domain.Participant, bool, error) {
	var (
		out     domain.Participant
		cleared bool
	)
	err := s.withMeeting(ctx, meetingID, func(m *domain.Meeting) error {
		p := m.Participant(participantID)
		if p == nil {
			return fmt.Errorf("participant: %w", domain.ErrNotFound)
		}
		if connID != "" && p.ConnectionID == connID {
			p.ConnectionID = ""
			cleared = true
		}
		out = *p
		return nil
	})
	return out, cleared, err
}

func (s *MeetingStore) Start(ctx context.Context, id, hostID string) (domain.Meeting, error) {
	var out domain.Meeting
	err := s.withMeeting(ctx, id, func(m *domain.Meeting) error {
		now := s.now()
		if err := m.Start(hostID, now); err != nil {
			return err
		}
		out = m.Clone()
		s.notify(domain.LifecycleEvent{
			Kind:    domain.LifecycleStarted,
			Meeting: out,
			Actor:   hostID,
			At:      now,
		})
		return nil
	})
	return out, err
}

func (s *MeetingStore) End(ctx context.Context, id, hostID string) (domain.Meeting, error) {
	var out domain.Meeting
	err := s.withMeeting(ctx, id, func(m *domain.Meeting) error {
		now := s.now()
		caller := domain.HostCaller(hostID)
		reason, err := m.End(caller, now)
		if err != nil {
			return err
		}
		out = m.Clone()
		s.notify(domain.LifecycleEvent{
			Kind:    domain.LifecycleEnded,
			Meeting: out,
			Reason:  reason,
			Actor:   caller.Actor(),
			At:      now,
		})
		return nil
	})
	return out, err
}

// Expire ends the meeting if it is due. It reports whether this call made the
// transition; a meeting already ended by another path reports false.
func (s *MeetingStore) Expire(ctx context.Context, id string) (bool, error) {
	entry, err := s.entry(ctx, id)
	if err != nil {
		return false, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return s.expireLocked(entry.meeting), nil
}

// DueForExpiry lists the ids of active meetings whose duration has elapsed.
func (s *MeetingStore) DueForExpiry(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	var due []string
	s.each(func(m *domain.Meeting) {
		if m.IsDue(now) {
			due = append(due, m.ID)
		}
	})
	return due, nil
}

// ListActive returns summaries of active meetings, newest first. Meetings that
// are due but not yet swept are left out without being transitioned.
func (s *MeetingStore) ListActive(ctx context.Context) ([]domain.MeetingSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]domain.MeetingSummary, 0)
	s.each(func(m *domain.Meeting) {
		if m.IsActive && !m.IsDue(now) {
			out = append(out, m.Summary())
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MeetingStore) Stats(ctx context.Context) (domain.Stats, error) {
	if err := ctx.Err(); err != nil {
		return domain.Stats{}, err
	}
	now := s.now()
	var st domain.Stats
	s.each(func(m *domain.Meeting) {
		st.TotalMeetings++
		st.TotalParticipants += len(m.Participants)
		if m.IsActive && !m.IsDue(now) {
			st.ActiveMeetings++
		}
	})
	return st, nil
}

func (s *MeetingStore) entry(ctx context.Context, id string) (*meetingEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	entry, ok := s.meetings[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("meeting: %w", domain.ErrNotFound)
	}
	return entry, nil
}

// withMeeting runs fn with the meeting locked, after applying a pending expiry.
func (s *MeetingStore) withMeeting(ctx context.Context, id string, fn func(m *domain.Meeting) error) error {
	entry, err := s.entry(ctx, id)
	if err != nil {
		return err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	s.expireLocked(entry.meeting)
	return fn(entry.meeting)
}

func (s *MeetingStore) expireLocked(m *domain.Meeting) bool {
	now := s.now()
	caller := domain.SystemCaller()
	reason, err := m.End(caller, now)
	if err != nil || reason == "" {
		return false
	}
	s.log.Info("meeting expired", slog.String("meeting_id", m.ID))
	s.notify(domain.LifecycleEvent{
		Kind:    domain.LifecycleEnded,
		Meeting: m.Clone(),
		Reason:  reason,
		Actor:   caller.Actor(),
		At:      now,
	})
	return true
}

func (s *MeetingStore) each(fn func(m *domain.Meeting)) {
	s.mu.RLock()
	entries := make([]*meetingEntry, 0, len(s.meetings))
	for _, e := range s.meetings {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		e.mu.Lock()
		fn(e.meeting)
		e.mu.Unlock()
	}
}

func (s *MeetingStore) notify(ev domain.LifecycleEvent) {
	if s.observer != nil {
		s.observer.OnLifecycle(ev)
	}
}

// InMemoryAuditRepository keeps the audit trail in process memory.
type InMemoryAuditRepository struct {
	mu      sync.RWMutex
	entries map[string][]domain.AuditEntry
}

func NewInMemoryAuditRepository() *InMemoryAuditRepository {
	return &InMemoryAuditRepository{
		entries: make(map[string][]domain.AuditEntry),
	}
}

func (r *InMemoryAuditRepository) Record(ctx context.Context, entry domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entry.MeetingID] = append(r.entries[entry.MeetingID], entry)
	return nil
}

func (r *InMemoryAuditRepository) ListByMeeting(ctx context.Context, meetingID string) ([]domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.AuditEntry, len(r.entries[meetingID]))
	copy(out, r.entries[meetingID])
	return out, nil
}
