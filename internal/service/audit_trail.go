package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/meetsync/internal/domain"
	"github.com/immxrtalbeast/meetsync/internal/repository"
	"github.com/immxrtalbeast/meetsync/lib/logger/sl"
)

const auditDrainTimeout = 5 * time.Second

// AuditTrail queues audit entries and writes them from a single worker so
// callers holding a meeting lock never wait on storage.
type AuditTrail struct {
	repo    repository.AuditRepository
	entries chan domain.AuditEntry
	log     *slog.Logger
}

func NewAuditTrail(repo repository.AuditRepository, buffer int, log *slog.Logger) *AuditTrail {
	if log == nil {
		log = slog.Default()
	}
	if buffer <= 0 {
		buffer = 1
	}
	return &AuditTrail{
		repo:    repo,
		entries: make(chan domain.AuditEntry, buffer),
		log:     log,
	}
}

// Record enqueues entry. When the queue is full the entry is dropped.
func (a *AuditTrail) Record(entry domain.AuditEntry) {
	select {
	case a.entries <- entry:
	default:
		a.log.Warn("audit queue full, dropping entry",
			slog.String("meeting_id", entry.MeetingID),
			slog.String("action", string(entry.Action)),
		)
	}
}

// Run writes queued entries until ctx is done, then flushes what is left.
func (a *AuditTrail) Run(ctx context.Context) error {
	const op = "service.audit.run"
	log := a.log.With(slog.String("op", op))

	for {
		select {
		case <-ctx.Done():
			a.drain(log)
			return nil
		case entry := <-a.entries:
			a.write(ctx, log, entry)
		}
	}
}

func (a *AuditTrail) List(ctx context.Context, meetingID string) ([]domain.AuditEntry, error) {
	return a.repo.ListByMeeting(ctx, meetingID)
}

func (a *AuditTrail) drain(log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), auditDrainTimeout)
	defer cancel()

	for {
		select {
		case entry := <-a.entries:
			a.write(ctx, log, entry)
		default:
			return
		}
	}
}

func (a *AuditTrail) write(ctx context.Context, log *slog.Logger, entry domain.AuditEntry) {
	if err := a.repo.Record(ctx, entry); err != nil {
		log.Error("failed to record audit entry",
			slog.String("meeting_id", entry.MeetingID),
			slog.String("action", string(entry.Action)),
			sl.Err(err),
		)
	}
}
