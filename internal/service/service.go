package service

import (
	"context"
	"time"

	"github.com/immxrtalbeast/meetsync/internal/domain"
)

// Conn is a live client connection as seen by the router. Send must not block.
type Conn interface {
	ID() string
	Send(n domain.Notification) error
}

type MeetingInteractor interface {
	CreateMeeting(ctx context.Context, in CreateMeetingInput) (domain.Meeting, domain.Participant, error)
	GetMeeting(ctx context.Context, id string) (domain.Meeting, time.Duration, error)
	JoinMeeting(ctx context.Context, id, name, participantID string) (domain.Meeting, domain.Participant, error)
	StartMeeting(ctx context.Context, id, hostID string) (domain.Meeting, error)
	EndMeeting(ctx context.Context, id, hostID string) (domain.Meeting, error)
	UpdateParticipant(ctx context.Context, meetingID, participantID string, upd domain.ParticipantUpdate) (domain.Participant, error)
	ListMeetings(ctx context.Context, limit, offset int) (MeetingPage, error)
	Stats(ctx context.Context) (domain.Stats, error)
	MeetingAudit(ctx context.Context, id string) ([]domain.AuditEntry, error)
}

type EventRouter interface {
	HandleEvent(ctx context.Context, conn Conn, ev domain.InboundEvent)
	Disconnect(ctx context.Context, conn Conn)
}

type CreateMeetingInput struct {
	Title           string
	DurationMinutes int
	HostName        string
	Settings        *domain.SettingsOverride
}

type MeetingPage struct {
	Meetings []domain.MeetingSummary
	Total    int
	Limit    int
	Offset   int
}
