package service

import (
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/meetsync/internal/domain"
	"github.com/immxrtalbeast/meetsync/lib/logger/sl"
)

// Binding ties a connection to the participant it speaks for.
type Binding struct {
	ConnID        string
	MeetingID     string
	ParticipantID string
}

type participantKey struct {
	meetingID     string
	participantID string
}

type session struct {
	conn    Conn
	binding Binding
}

// SessionRegistry indexes live connections by connection id, by participant,
// and by room. All lookups are map hits.
type SessionRegistry struct {
	mu            sync.RWMutex
	byConn        map[string]*session
	byParticipant map[participantKey]string
	rooms         map[string]map[string]Conn
	log           *slog.Logger
}

func NewSessionRegistry(log *slog.Logger) *SessionRegistry {
	if log == nil {
		log = slog.Default()
	}
	return &SessionRegistry{
		byConn:        make(map[string]*session),
		byParticipant: make(map[participantKey]string),
		rooms:         make(map[string]map[string]Conn),
		log:           log,
	}
}

// Bind attaches conn to the participant. It returns the binding conn held
// before, if any, and the id of another connection that was bound to the same
// participant and has now been detached from the room.
func (r *SessionRegistry) Bind(conn Conn, meetingID, participantID string) (prev Binding, hadPrev bool, displaced string) {
	connID := conn.ID()
	key := participantKey{meetingID: meetingID, participantID: participantID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.byConn[connID]; ok {
		prev, hadPrev = s.binding, true
		r.removeLocked(connID)
	}
	if other, ok := r.byParticipant[key]; ok && other != connID {
		displaced = other
		r.removeLocked(other)
	}

	b := Binding{ConnID: connID, MeetingID: meetingID, ParticipantID: participantID}
	r.byConn[connID] = &session{conn: conn, binding: b}
	r.byParticipant[key] = connID
	room, ok := r.rooms[meetingID]
	if !ok {
		room = make(map[string]Conn)
		r.rooms[meetingID] = room
	}
	room[connID] = conn
	return prev, hadPrev, displaced
}

// Unbind forgets the connection and returns what it was bound to.
func (r *SessionRegistry) Unbind(connID string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byConn[connID]
	if !ok {
		return Binding{}, false
	}
	r.removeLocked(connID)
	return s.binding, true
}

func (r *SessionRegistry) Lookup(connID string) (Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byConn[connID]
	if !ok {
		return Binding{}, false
	}
	return s.binding, true
}

// RoomSize is the number of connections bound to the meeting.
func (r *SessionRegistry) RoomSize(meetingID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[meetingID])
}

// Broadcast sends n to every connection in the room except exceptConnID.
// Sends happen outside the registry lock.
func (r *SessionRegistry) Broadcast(meetingID string, n domain.Notification, exceptConnID string) {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.rooms[meetingID]))
	for id, c := range r.rooms[meetingID] {
		if id == exceptConnID {
			continue
		}
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(n); err != nil {
			r.log.Warn("failed to deliver notification",
				slog.String("meeting_id", meetingID),
				slog.String("conn_id", c.ID()),
				slog.String("type", n.Type),
				sl.Err(err),
			)
		}
	}
}

func (r *SessionRegistry) removeLocked(connID string) {
	s, ok := r.byConn[connID]
	if !ok {
		return
	}
	delete(r.byConn, connID)

	key := participantKey{meetingID: s.binding.MeetingID, participantID: s.binding.ParticipantID}
	if r.byParticipant[key] == connID {
		delete(r.byParticipant, key)
	}

	if room, ok := r.rooms[s.binding.MeetingID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, s.binding.MeetingID)
		}
	}
}
