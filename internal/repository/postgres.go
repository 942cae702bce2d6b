package repository

import (
	"context"
	"errors"

	"github.com/immxrtalbeast/meetsync/internal/domain"
	"github.com/immxrtalbeast/meetsync/internal/repository/model"
	"gorm.io/gorm"
)

var ErrAuditEntryExists = errors.New("audit entry already exists")

type PostgresAuditRepository struct {
	db *gorm.DB
}

func NewPostgresAuditRepository(db *gorm.DB) *PostgresAuditRepository {
	return &PostgresAuditRepository{db: db}
}

func (r *PostgresAuditRepository) Record(ctx context.Context, entry domain.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(toModelAudit(entry)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAuditEntryExists
		}
		return err
	}
	return nil
}

func (r *PostgresAuditRepository) ListByMeeting(ctx context.Context, meetingID string) ([]domain.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.AuditEntry
	err := r.db.WithContext(ctx).
		Where("meeting_id = ?", meetingID).
		Order("at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]domain.AuditEntry, 0, len(rows))
	for i := range rows {
		out = append(out, toDomainAudit(&rows[i]))
	}
	return out, nil
}

func toModelAudit(e domain.AuditEntry) *model.AuditEntry {
	return &model.AuditEntry{
		ID:        e.ID,
		MeetingID: e.MeetingID,
		Action:    string(e.Action),
		ActorID:   e.ActorID,
		Reason:    e.Reason,
		At:        e.At.UTC(),
	}
}

func toDomainAudit(e *model.AuditEntry) domain.AuditEntry {
	return domain.AuditEntry{
		ID:        e.ID,
		MeetingID: e.MeetingID,
		Action:    domain.AuditAction(e.Action),
		ActorID:   e.ActorID,
		Reason:    e.Reason,
		At:        e.At.UTC(),
	}
}
