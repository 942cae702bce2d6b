package model

import (
	"time"

	"github.com/google/uuid"
)

type AuditEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	MeetingID string    `gorm:"size:16;index:idx_audit_meeting_at,priority:1;not null"`
	Action    string    `gorm:"size:32;not null"`
	ActorID   string    `gorm:"size:64;not null"`
	Reason    string    `gorm:"size:32"`
	At        time.Time `gorm:"index:idx_audit_meeting_at,priority:2;not null"`
	CreatedAt time.Time
}

func (AuditEntry) TableName() string {
	return "meeting_audit"
}
