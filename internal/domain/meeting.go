package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinDurationMinutes = 1
	MaxDurationMinutes = 1440
	MaxTitleLength     = 255
)

type MeetingState string

const (
	StateCreated MeetingState = "created"
	StateActive  MeetingState = "active"
	StateEnded   MeetingState = "ended"
)

type EndReason string

const (
	ReasonHostEnded EndReason = "hostEnded"
	ReasonExpired   EndReason = "expired"
)

// Settings are fixed when the meeting is created and enforced on join.
type Settings struct {
	AllowJoin       bool `json:"allowJoin"`
	RequireApproval bool `json:"requireApproval"`
	MaxParticipants int  `json:"maxParticipants"`
}

func DefaultSettings() Settings {
	return Settings{
		AllowJoin:       true,
		RequireApproval: false,
		MaxParticipants: 50,
	}
}

// SettingsOverride carries the settings a creator chose explicitly.
type SettingsOverride struct {
	AllowJoin       *bool `json:"allowJoin"`
	RequireApproval *bool `json:"requireApproval"`
	MaxParticipants *int  `json:"maxParticipants"`
}

// With returns s with every non-nil field of o applied.
func (s Settings) With(o *SettingsOverride) Settings {
	if o == nil {
		return s
	}
	if o.AllowJoin != nil {
		s.AllowJoin = *o.AllowJoin
	}
	if o.RequireApproval != nil {
		s.RequireApproval = *o.RequireApproval
	}
	if o.MaxParticipants != nil {
		s.MaxParticipants = *o.MaxParticipants
	}
	return s
}

// MeetingDraft is the input of meeting creation.
type MeetingDraft struct {
	Title           string
	DurationMinutes int
	HostName        string
	Settings        Settings
}

// Normalize trims the draft and validates ranges.
func (d MeetingDraft) Normalize() (MeetingDraft, error) {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return d, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if utf8.RuneCountInString(d.Title) > MaxTitleLength {
		return d, fmt.Errorf("%w: title is too long", ErrValidation)
	}
	if d.DurationMinutes < MinDurationMinutes || d.DurationMinutes > MaxDurationMinutes {
		return d, fmt.Errorf("%w: duration must be between %d and %d minutes",
			ErrValidation, MinDurationMinutes, MaxDurationMinutes)
	}
	hostName, err := NormalizeName(d.HostName)
	if err != nil {
		return d, fmt.Errorf("host: %w", err)
	}
	d.HostName = hostName
	if d.Settings.MaxParticipants < 1 {
		return d, fmt.Errorf("%w: maxParticipants must be at least 1", ErrValidation)
	}
	return d, nil
}

// Meeting is a time-boxed group session. Mutated only by the meeting store,
// which serializes access per meeting.
type Meeting struct {
	ID              string        `json:"id"`
	Title           string        `json:"title"`
	DurationMinutes int           `json:"duration"`
	CreatedAt       time.Time     `json:"createdAt"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`
	IsActive        bool          `json:"isActive"`
	EndReason       EndReason     `json:"endReason,omitempty"`
	HostID          string        `json:"hostId"`
	Settings        Settings      `json:"settings"`
	Participants    []Participant `json:"participants"`
}

// NewMeeting builds a meeting from a normalized draft with the host as its
// first participant.
func NewMeeting(id string, d MeetingDraft, now time.Time) *Meeting {
	host := NewParticipant(d.HostName, true, now)
	return &Meeting{
		ID:              id,
		Title:           d.Title,
		DurationMinutes: d.DurationMinutes,
		CreatedAt:       now,
		HostID:          host.ID,
		Settings:        d.Settings,
		Participants:    []Participant{host},
	}
}

func (m *Meeting) Duration() time.Duration {
	return time.Duration(m.DurationMinutes) * time.Minute
}

func (m *Meeting) State() MeetingState {
	switch {
	case m.EndedAt != nil:
		return StateEnded
	case m.IsActive:
		return StateActive
	default:
		return StateCreated
	}
}

// IsDue reports whether an active meeting has run its full duration.
func (m *Meeting) IsDue(now time.Time) bool {
	if !m.IsActive || m.StartedAt == nil {
		return false
	}
	return now.Sub(*m.StartedAt) >= m.Duration()
}

// TimeRemaining is the full duration before start, zero after end.
func (m *Meeting) TimeRemaining(now time.Time) time.Duration {
	switch m.State() {
	case StateCreated:
		return m.Duration()
	case StateEnded:
		return 0
	}
	left := m.Duration() - now.Sub(*m.StartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// Host returns the host participant.
func (m *Meeting) Host() *Participant {
	for i := range m.Participants {
		if m.Participants[i].IsHost {
			return &m.Participants[i]
		}
	}
	return nil
}

func (m *Meeting) Participant(id string) *Participant {
	if id == "" {
		return nil
	}
	for i := range m.Participants {
		if m.Participants[i].ID == id {
			return &m.Participants[i]
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand out of the store.
func (m *Meeting) Clone() Meeting {
	c := *m
	c.Participants = make([]Participant, len(m.Participants))
	copy(c.Participants, m.Participants)
	if m.StartedAt != nil {
		t := *m.StartedAt
		c.StartedAt = &t
	}
	if m.EndedAt != nil {
		t := *m.EndedAt
		c.EndedAt = &t
	}
	return c
}

func (m *Meeting) Summary() MeetingSummary {
	return MeetingSummary{
		ID:                m.ID,
		Title:             m.Title,
		DurationMinutes:   m.DurationMinutes,
		CreatedAt:         m.CreatedAt,
		ParticipantsCount: len(m.Participants),
		IsActive:          m.IsActive,
	}
}

func (m *Meeting) authorizeHost(callerID string) error {
	host := m.Host()
	if host == nil || callerID == "" || host.ID != callerID {
		return fmt.Errorf("%w: only the host can do this", ErrForbidden)
	}
	return nil
}

// Start moves a created meeting to active.
func (m *Meeting) Start(callerID string, now time.Time) error {
	if err := m.authorizeHost(callerID); err != nil {
		return err
	}
	switch m.State() {
	case StateActive:
		return ErrAlreadyActive
	case StateEnded:
		return ErrEnded
	}
	started := now
	m.StartedAt = &started
	m.IsActive = true
	return nil
}

// End moves an active meeting to ended. The system caller only ends meetings
// that are due and treats anything else as a no-op; the returned reason is
// empty when nothing changed.
func (m *Meeting) End(caller Caller, now time.Time) (EndReason, error) {
	if caller.IsSystem() {
		if !m.IsDue(now) {
			return "", nil
		}
		m.finish(ReasonExpired, now)
		return ReasonExpired, nil
	}

	if err := m.authorizeHost(caller.ParticipantID); err != nil {
		return "", err
	}
	if m.State() != StateActive {
		if m.EndReason == ReasonExpired {
			return "", ErrExpired
		}
		return "", ErrNotActive
	}
	m.finish(ReasonHostEnded, now)
	return ReasonHostEnded, nil
}

func (m *Meeting) finish(reason EndReason, now time.Time) {
	ended := now
	m.IsActive = false
	m.EndedAt = &ended
	m.EndReason = reason
}

// Join adds a participant, or refreshes an existing one when participantID
// matches. An empty name on reconnect keeps the current name.
func (m *Meeting) Join(name, participantID string, now time.Time) (*Participant, error) {
	if m.State() == StateEnded {
		if m.EndReason == ReasonExpired {
			return nil, ErrExpired
		}
		return nil, ErrEnded
	}

	if existing := m.Participant(participantID); existing != nil {
		if strings.TrimSpace(name) != "" {
			n, err := NormalizeName(name)
			if err != nil {
				return nil, err
			}
			existing.Name = n
		}
		existing.JoinedAt = now
		return existing, nil
	}

	n, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if !m.Settings.AllowJoin {
		return nil, fmt.Errorf("%w: meeting is not accepting new participants", ErrForbidden)
	}
	if m.Settings.RequireApproval {
		return nil, fmt.Errorf("%w: meeting requires host approval", ErrForbidden)
	}
	if len(m.Participants) >= m.Settings.MaxParticipants {
		return nil, ErrFull
	}

	m.Participants = append(m.Participants, NewParticipant(n, false, now))
	return &m.Participants[len(m.Participants)-1], nil
}

// MeetingSummary is the list view of a meeting.
type MeetingSummary struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	DurationMinutes   int       `json:"duration"`
	CreatedAt         time.Time `json:"createdAt"`
	ParticipantsCount int       `json:"participantsCount"`
	IsActive          bool      `json:"isActive"`
}

type Stats struct {
	TotalMeetings     int `json:"totalMeetings"`
	ActiveMeetings    int `json:"activeMeetings"`
	TotalParticipants int `json:"totalParticipants"`
}
