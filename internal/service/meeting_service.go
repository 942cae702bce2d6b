package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/meetsync/internal/domain"
	"github.com/immxrtalbeast/meetsync/internal/repository"
	"github.com/immxrtalbeast/meetsync/lib/logger/sl"
)

const (
	DefaultListLimit = 20
	DefaultListMax   = 100
)

type joinPayload struct {
	MeetingID     string `json:"meetingId"`
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
}

type namePayload struct {
	Name string `json:"name"`
}

type messagePayload struct {
	Message string `json:"message"`
}

type pongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// MeetingService routes channel events and boundary requests onto the meeting
// store and fans the results out to rooms. Every store call that touches a
// meeting runs under that meeting's room lock, so broadcasts reach a room in
// the order its mutations were applied.
type MeetingService struct {
	meetings repository.MeetingRepository
	sessions *SessionRegistry
	audit    *AuditTrail
	log      *slog.Logger

	now          func() time.Time
	defaults     domain.Settings
	listLimitMax int

	roomsMu   sync.Mutex
	roomLocks map[string]*sync.Mutex
}

type Option func(*MeetingService)

func WithClock(now func() time.Time) Option {
	return func(s *MeetingService) { s.now = now }
}

func WithDefaultSettings(settings domain.Settings) Option {
	return func(s *MeetingService) { s.defaults = settings }
}

func WithListLimitMax(n int) Option {
	return func(s *MeetingService) {
		if n > 0 {
			s.listLimitMax = n
		}
	}
}

func NewMeetingService(
	meetings repository.MeetingRepository,
	sessions *SessionRegistry,
	audit *AuditTrail,
	log *slog.Logger,
	opts ...Option,
) *MeetingService {
	if log == nil {
		log = slog.Default()
	}
	s := &MeetingService{
		meetings:     meetings,
		sessions:     sessions,
		audit:        audit,
		log:          log,
		now:          time.Now,
		defaults:     domain.DefaultSettings(),
		listLimitMax: DefaultListMax,
		roomLocks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnLifecycle is the single fan-out path for meeting transitions, whichever
// caller caused them. The store invokes it under the meeting lock.
func (s *MeetingService) OnLifecycle(ev domain.LifecycleEvent) {
	s.audit.Record(domain.AuditFromLifecycle(ev))

	switch ev.Kind {
	case domain.LifecycleCreated:
		s.roomsMu.Lock()
		if _, ok := s.roomLocks[ev.Meeting.ID]; !ok {
			s.roomLocks[ev.Meeting.ID] = &sync.Mutex{}
		}
		s.roomsMu.Unlock()
	case domain.LifecycleStarted:
		startedAt := ev.At
		if ev.Meeting.StartedAt != nil {
			startedAt = *ev.Meeting.StartedAt
		}
		s.sessions.Broadcast(ev.Meeting.ID, domain.Notification{
			Type: domain.NotifyMeetingStarted,
			Payload: domain.MeetingStartedPayload{
				MeetingID: ev.Meeting.ID,
				StartedAt: startedAt,
				Duration:  ev.Meeting.DurationMinutes,
			},
		}, "")
	case domain.LifecycleEnded:
		s.sessions.Broadcast(ev.Meeting.ID, domain.MeetingEndedNotification(ev.Meeting.ID, ev.Reason), "")
	}

	s.log.Info("meeting lifecycle",
		slog.String("meeting_id", ev.Meeting.ID),
		slog.String("kind", string(ev.Kind)),
		slog.String("actor", ev.Actor),
		slog.String("reason", string(ev.Reason)),
	)
}

// lockRoom serializes work on one meeting. Ids the service never saw created
// get no lock; the store will reject them.
func (s *MeetingService) lockRoom(id string) func() {
	s.roomsMu.Lock()
	l, ok := s.roomLocks[id]
	s.roomsMu.Unlock()
	if !ok {
		return func() {}
	}
	l.Lock()
	return l.Unlock
}

func (s *MeetingService) CreateMeeting(ctx context.Context, in CreateMeetingInput) (domain.Meeting, domain.Participant, error) {
	const op = "service.meeting.create"
	log := s.log.With(slog.String("op", op))

	m, err := s.meetings.Create(ctx, domain.MeetingDraft{
		Title:           in.Title,
		DurationMinutes: in.DurationMinutes,
		HostName:        in.HostName,
		Settings:        s.defaults.With(in.Settings),
	})
	if err != nil {
		log.Info("create rejected", sl.Err(err))
		return domain.Meeting{}, domain.Participant{}, err
	}

	log.Info("meeting created",
		slog.String("meeting_id", m.ID),
		slog.Int("duration", m.DurationMinutes),
	)
	return m, m.Participants[0], nil
}

// GetMeeting returns the meeting with its remaining time, applying a pending
// expiry first.
func (s *MeetingService) GetMeeting(ctx context.Context, id string) (domain.Meeting, time.Duration, error) {
	unlock := s.lockRoom(id)
	defer unlock()

	m, err := s.meetings.Get(ctx, id)
	if err != nil {
		return domain.Meeting{}, 0, err
	}
	return m, m.TimeRemaining(s.now()), nil
}

// JoinMeeting registers or refreshes a participant without a connection.
// Presence is announced once a connection binds.
func (s *MeetingService) JoinMeeting(ctx context.Context, id, name, participantID string) (domain.Meeting, domain.Participant, error) {
	unlock := s.lockRoom(id)
	defer unlock()

	res, err := s.meetings.Join(ctx, id, name, participantID)
	if err != nil {
		return domain.Meeting{}, domain.Participant{}, err
	}
	s.recordJoin(res)
	return res.Meeting, res.Participant, nil
}

func (s *MeetingService) StartMeeting(ctx context.Context, id, hostID string) (domain.Meeting, error) {
	unlock := s.lockRoom(id)
	defer unlock()

	return s.meetings.Start(ctx, id, hostID)
}

func (s *MeetingService) EndMeeting(ctx context.Context, id, hostID string) (domain.Meeting, error) {
	unlock := s.lockRoom(id)
	defer unlock()

	return s.meetings.End(ctx, id, hostID)
}

// UpdateParticipant applies a boundary update and announces it to the room.
// Connection bindings cannot be changed from here.
func (s *MeetingService) UpdateParticipant(ctx context.Context, meetingID, participantID string, upd domain.ParticipantUpdate) (domain.Participant, error) {
	upd.ConnectionID = nil

	unlock := s.lockRoom(meetingID)
	defer unlock()

	p, err := s.meetings.UpdateParticipant(ctx, meetingID, participantID, upd)
	if err != nil {
		return domain.Participant{}, err
	}
	if upd.Empty() {
		return p, nil
	}
	if upd.Name != nil {
		name := p.Name
		upd.Name = &name
	}
	s.sessions.Broadcast(meetingID, participantUpdated(p.ID, upd), "")
	return p, nil
}

func (s *MeetingService) ListMeetings(ctx context.Context, limit, offset int) (MeetingPage, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > s.listLimitMax {
		limit = s.listLimitMax
	}
	if offset < 0 {
		offset = 0
	}

	all, err := s.meetings.ListActive(ctx)
	if err != nil {
		return MeetingPage{}, err
	}

	page := MeetingPage{
		Meetings: []domain.MeetingSummary{},
		Total:    len(all),
		Limit:    limit,
		Offset:   offset,
	}
	if offset < len(all) {
		end := min(offset+limit, len(all))
		page.Meetings = all[offset:end]
	}
	return page, nil
}

func (s *MeetingService) Stats(ctx context.Context) (domain.Stats, error) {
	return s.meetings.Stats(ctx)
}

func (s *MeetingService) MeetingAudit(ctx context.Context, id string) ([]domain.AuditEntry, error) {
	if _, _, err := s.GetMeeting(ctx, id); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, id)
}

// SweepExpired ends every overdue meeting. Meetings another path already
// ended are skipped silently. It returns how many this sweep ended.
func (s *MeetingService) SweepExpired(ctx context.Context) (int, error) {
	ids, err := s.meetings.DueForExpiry(ctx)
	if err != nil {
		return 0, err
	}

	var (
		n    int
		errs []error
	)
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		expired, err := s.expire(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("meeting %s: %w", id, err))
			continue
		}
		if expired {
			n++
		}
	}
	return n, errors.Join(errs...)
}

func (s *MeetingService) expire(ctx context.Context, id string) (bool, error) {
	unlock := s.lockRoom(id)
	defer unlock()
	return s.meetings.Expire(ctx, id)
}

// HandleEvent dispatches one inbound channel event. Failures are reported to
// conn only.
func (s *MeetingService) HandleEvent(ctx context.Context, conn Conn, ev domain.InboundEvent) {
	const op = "service.meeting.handle.event"
	log := s.log.With(
		slog.String("op", op),
		slog.String("conn_id", conn.ID()),
		slog.String("type", ev.Type),
	)

	var err error
	switch ev.Canonical() {
	case domain.EventJoin:
		err = s.handleJoin(ctx, conn, ev.Payload)
	case domain.EventStart:
		err = s.withBinding(conn, func(b Binding) error {
			_, err := s.StartMeeting(ctx, b.MeetingID, b.ParticipantID)
			return err
		})
	case domain.EventEnd:
		err = s.withBinding(conn, func(b Binding) error {
			_, err := s.EndMeeting(ctx, b.MeetingID, b.ParticipantID)
			return err
		})
	case domain.EventToggleMute:
		err = s.withBinding(conn, func(b Binding) error {
			return s.toggle(ctx, b, domain.ToggleMute)
		})
	case domain.EventToggleCamera:
		err = s.withBinding(conn, func(b Binding) error {
			return s.toggle(ctx, b, domain.ToggleCamera)
		})
	case domain.EventUpdateName:
		err = s.withBinding(conn, func(b Binding) error {
			return s.rename(ctx, b, ev.Payload)
		})
	case domain.EventSendMessage:
		err = s.withBinding(conn, func(b Binding) error {
			return s.sendMessage(ctx, b, ev.Payload)
		})
	case domain.EventPing:
		err = conn.Send(domain.Notification{
			Type:    domain.NotifyPong,
			Payload: pongPayload{Timestamp: s.now()},
		})
	default:
		err = fmt.Errorf("%w: unknown event type %q", domain.ErrValidation, ev.Type)
	}

	if err != nil {
		s.reportError(log, conn, err)
	}
}

// Disconnect releases the connection's binding and tells the room the
// participant left, unless a newer connection already took over.
func (s *MeetingService) Disconnect(ctx context.Context, conn Conn) {
	b, ok := s.sessions.Unbind(conn.ID())
	if !ok {
		return
	}
	s.leave(ctx, b)
}

func (s *MeetingService) handleJoin(ctx context.Context, conn Conn, raw json.RawMessage) error {
	const op = "service.meeting.join"

	var in joinPayload
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	if in.MeetingID == "" {
		return fmt.Errorf("%w: meetingId is required", domain.ErrValidation)
	}

	prev, hadPrev, err := s.bind(ctx, conn, in)
	if err != nil {
		return err
	}

	if hadPrev {
		s.leave(ctx, prev)
	}

	s.log.Debug("connection joined",
		slog.String("op", op),
		slog.String("meeting_id", in.MeetingID),
		slog.String("conn_id", conn.ID()),
	)
	return nil
}

func (s *MeetingService) bind(ctx context.Context, conn Conn, in joinPayload) (Binding, bool, error) {
	unlock := s.lockRoom(in.MeetingID)
	defer unlock()

	res, err := s.meetings.Join(ctx, in.MeetingID, in.Name, in.ParticipantID)
	if err != nil {
		return Binding{}, false, err
	}

	connID := conn.ID()
	p, err := s.meetings.UpdateParticipant(ctx, in.MeetingID, res.Participant.ID, domain.ParticipantUpdate{ConnectionID: &connID})
	if err != nil {
		return Binding{}, false, err
	}

	prev, hadPrev, displaced := s.sessions.Bind(conn, in.MeetingID, p.ID)
	if displaced != "" {
		s.log.Info("connection replaced",
			slog.String("meeting_id", in.MeetingID),
			slog.String("participant_id", p.ID),
			slog.String("old_conn_id", displaced),
		)
	}
	s.recordJoin(res)

	if err := conn.Send(domain.Notification{
		Type: domain.NotifyMeetingJoined,
		Payload: domain.MeetingJoinedPayload{
			Meeting:            res.Meeting,
			TimeRemaining:      int64(res.Meeting.TimeRemaining(s.now()).Seconds()),
			CurrentParticipant: p,
		},
	}); err != nil {
		s.log.Warn("failed to deliver snapshot", slog.String("conn_id", connID), sl.Err(err))
	}

	s.sessions.Broadcast(in.MeetingID, domain.Notification{
		Type:    domain.NotifyParticipantJoined,
		Payload: domain.ParticipantJoinedPayload{Participant: p},
	}, connID)

	// a rejoin of the same participant on the same meeting is not a move
	if hadPrev && prev.MeetingID == in.MeetingID && prev.ParticipantID == p.ID {
		return Binding{}, false, nil
	}
	return prev, hadPrev, nil
}

func (s *MeetingService) leave(ctx context.Context, b Binding) {
	unlock := s.lockRoom(b.MeetingID)
	defer unlock()

	p, cleared, err := s.meetings.ClearConnection(ctx, b.MeetingID, b.ParticipantID, b.ConnID)
	if err != nil {
		s.log.Warn("failed to clear connection",
			slog.String("meeting_id", b.MeetingID),
			slog.String("participant_id", b.ParticipantID),
			sl.Err(err),
		)
		return
	}
	if !cleared {
		return
	}
	s.sessions.Broadcast(b.MeetingID, domain.Notification{
		Type: domain.NotifyParticipantLeft,
		Payload: domain.ParticipantLeftPayload{
			ParticipantID:   p.ID,
			ParticipantName: p.Name,
		},
	}, b.ConnID)
}

func (s *MeetingService) toggle(ctx context.Context, b Binding, t domain.Toggle) error {
	unlock := s.lockRoom(b.MeetingID)
	defer unlock()

	p, upd, err := s.meetings.ToggleParticipant(ctx, b.MeetingID, b.ParticipantID, t)
	if err != nil {
		return err
	}
	s.sessions.Broadcast(b.MeetingID, participantUpdated(p.ID, upd), "")
	return nil
}

func (s *MeetingService) rename(ctx context.Context, b Binding, raw json.RawMessage) error {
	var in namePayload
	if err := decodePayload(raw, &in); err != nil {
		return err
	}
	name, err := domain.NormalizeName(in.Name)
	if err != nil {
		return err
	}

	unlock := s.lockRoom(b.MeetingID)
	defer unlock()

	p, err := s.meetings.UpdateParticipant(ctx, b.MeetingID, b.ParticipantID, domain.ParticipantUpdate{Name: &name})
	if err != nil {
		return err
	}
	s.sessions.Broadcast(b.MeetingID, participantUpdated(p.ID, domain.ParticipantUpdate{Name: &p.Name}), "")
	return nil
}

func (s *MeetingService) sendMessage(ctx context.Context, b Binding, raw json.RawMessage) error {
	var in messagePayload
	if err := decodePayload(raw, &in); err != nil {
		return err
	}

	unlock := s.lockRoom(b.MeetingID)
	defer unlock()

	m, err := s.meetings.Get(ctx, b.MeetingID)
	if err != nil {
		return err
	}
	sender := m.Participant(b.ParticipantID)
	if sender == nil {
		return fmt.Errorf("participant: %w", domain.ErrNotFound)
	}
	msg, err := domain.NewChatMessage(*sender, in.Message, s.now())
	if err != nil {
		return err
	}
	s.sessions.Broadcast(b.MeetingID, domain.Notification{
		Type:    domain.NotifyNewMessage,
		Payload: msg,
	}, "")
	return nil
}

func (s *MeetingService) withBinding(conn Conn, fn func(b Binding) error) error {
	b, ok := s.sessions.Lookup(conn.ID())
	if !ok {
		return fmt.Errorf("%w: join a meeting first", domain.ErrValidation)
	}
	return fn(b)
}

func (s *MeetingService) recordJoin(res repository.JoinResult) {
	entry := domain.NewAuditEntry(res.Meeting.ID, domain.AuditJoined, res.Participant.ID, s.now())
	if !res.Created {
		entry.Reason = "reconnect"
	}
	s.audit.Record(entry)
}

func (s *MeetingService) reportError(log *slog.Logger, conn Conn, err error) {
	code := domain.Code(err)
	msg := err.Error()
	if code == domain.CodeInternal {
		log.Error("event failed", sl.Err(err))
		msg = "internal error"
	} else {
		log.Debug("event rejected", slog.String("code", code), sl.Err(err))
	}
	if sendErr := conn.Send(domain.ErrorNotification(msg, code)); sendErr != nil {
		log.Warn("failed to deliver error", sl.Err(sendErr))
	}
}

func participantUpdated(participantID string, upd domain.ParticipantUpdate) domain.Notification {
	return domain.Notification{
		Type: domain.NotifyParticipantUpdated,
		Payload: domain.ParticipantUpdatedPayload{
			ParticipantID: participantID,
			Updates:       upd,
		},
	}
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed payload", domain.ErrValidation)
	}
	return nil
}
