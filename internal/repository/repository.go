package repository

import (
	"context"

	"github.com/immxrtalbeast/meetsync/internal/domain"
)

// MeetingRepository is the authoritative meeting table. Every method is
// atomic per meeting and returns snapshots, never live records.
type MeetingRepository interface {
	Create(ctx context.Context, draft domain.MeetingDraft) (domain.Meeting, error)
	Get(ctx context.Context, id string) (domain.Meeting, error)
	Join(ctx context.Context, id, name, participantID string) (JoinResult, error)
	UpdateParticipant(ctx context.Context, meetingID, participantID string, upd domain.ParticipantUpdate) (domain.Participant, error)
	ToggleParticipant(ctx context.Context, meetingID, participantID string, t domain.Toggle) (domain.Participant, domain.ParticipantUpdate, error)
	ClearConnection(ctx context.Context, meetingID, participantID, connID string) (domain.Participant, bool, error)
	Start(ctx context.Context, id, hostID string) (domain.Meeting, error)
	End(ctx context.Context, id, hostID string) (domain.Meeting, error)
	Expire(ctx context.Context, id string) (bool, error)
	DueForExpiry(ctx context.Context) ([]string, error)
	ListActive(ctx context.Context) ([]domain.MeetingSummary, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// JoinResult is the outcome of a join: the meeting after the join, the
// joining participant, and whether a new participant record was created.
type JoinResult struct {
	Meeting     domain.Meeting
	Participant domain.Participant
	Created     bool
}

//go:generate mockgen -destination=mocks/mock_repository.go -package=mocks github.com/immxrtalbeast/meetsync/internal/repository AuditRepository

// AuditRepository stores the audit trail of meeting transitions.
type AuditRepository interface {
	Record(ctx context.Context, entry domain.AuditEntry) error
	ListByMeeting(ctx context.Context, meetingID string) ([]domain.AuditEntry, error)
}

// LifecycleObserver is told about every committed lifecycle transition. It
// runs while the meeting is locked and must not call back into the store.
type LifecycleObserver interface {
	OnLifecycle(ev domain.LifecycleEvent)
}

type LifecycleObserverFunc func(ev domain.LifecycleEvent)

func (f LifecycleObserverFunc) OnLifecycle(ev domain.LifecycleEvent) { f(ev) }
