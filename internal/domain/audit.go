package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditCreated AuditAction = "created"
	AuditJoined  AuditAction = "joined"
	AuditStarted AuditAction = "started"
	AuditEnded   AuditAction = "ended"
	AuditExpired AuditAction = "expired"
)

// AuditEntry records one meeting state transition for traceability.
type AuditEntry struct {
	ID        uuid.UUID   `json:"id"`
	MeetingID string      `json:"meetingId"`
	Action    AuditAction `json:"action"`
	ActorID   string      `json:"actorId"`
	Reason    string      `json:"reason,omitempty"`
	At        time.Time   `json:"at"`
}

func NewAuditEntry(meetingID string, action AuditAction, actorID string, at time.Time) AuditEntry {
	return AuditEntry{
		ID:        uuid.New(),
		MeetingID: meetingID,
		Action:    action,
		ActorID:   actorID,
		At:        at,
	}
}

// AuditFromLifecycle maps a lifecycle transition onto its audit entry.
func AuditFromLifecycle(ev LifecycleEvent) AuditEntry {
	action := AuditCreated
	switch ev.Kind {
	case LifecycleStarted:
		action = AuditStarted
	case LifecycleEnded:
		action = AuditEnded
		if ev.Reason == ReasonExpired {
			action = AuditExpired
		}
	}
	entry := NewAuditEntry(ev.Meeting.ID, action, ev.Actor, ev.At)
	entry.Reason = string(ev.Reason)
	return entry
}
