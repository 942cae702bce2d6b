package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxNameLength = 255

// Participant is a member of a meeting. The record outlives its connection so
// a reconnect with the same id restores it.
type Participant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	IsHost     bool      `json:"isHost"`
	IsMuted    bool      `json:"isMuted"`
	IsCameraOn bool      `json:"isCameraOn"`
	JoinedAt   time.Time `json:"joinedAt"`

	// ConnectionID names the live connection currently representing the
	// participant. Empty when disconnected. Resolved through the session
	// registry, never dereferenced here.
	ConnectionID string `json:"-"`
}

func NewParticipant(name string, isHost bool, now time.Time) Participant {
	return Participant{
		ID:         uuid.NewString(),
		Name:       name,
		IsHost:     isHost,
		IsMuted:    false,
		IsCameraOn: true,
		JoinedAt:   now,
	}
}

// Connected reports whether a live connection is bound to the participant.
func (p Participant) Connected() bool {
	return p.ConnectionID != ""
}

// ParticipantUpdate lists exactly the mutable participant fields. Nil fields
// are left untouched.
type ParticipantUpdate struct {
	IsMuted      *bool   `json:"isMuted,omitempty"`
	IsCameraOn   *bool   `json:"isCameraOn,omitempty"`
	Name         *string `json:"name,omitempty"`
	ConnectionID *string `json:"-"`
}

// Empty reports whether the update changes nothing.
func (u ParticipantUpdate) Empty() bool {
	return u.IsMuted == nil && u.IsCameraOn == nil && u.Name == nil && u.ConnectionID == nil
}

// Toggle selects the boolean flag flipped by a toggle event.
type Toggle int

const (
	ToggleMute Toggle = iota
	ToggleCamera
)

// Apply validates u and writes it onto p. On error p is unchanged.
func (p *Participant) Apply(u ParticipantUpdate) error {
	var name string
	if u.Name != nil {
		n, err := NormalizeName(*u.Name)
		if err != nil {
			return err
		}
		name = n
	}

	if u.Name != nil {
		p.Name = name
	}
	if u.IsMuted != nil {
		p.IsMuted = *u.IsMuted
	}
	if u.IsCameraOn != nil {
		p.IsCameraOn = *u.IsCameraOn
	}
	if u.ConnectionID != nil {
		p.ConnectionID = *u.ConnectionID
	}
	return nil
}

// Flip inverts the selected flag and returns the update that describes the
// new value.
func (p *Participant) Flip(t Toggle) ParticipantUpdate {
	switch t {
	case ToggleCamera:
		p.IsCameraOn = !p.IsCameraOn
		v := p.IsCameraOn
		return ParticipantUpdate{IsCameraOn: &v}
	default:
		p.IsMuted = !p.IsMuted
		v := p.IsMuted
		return ParticipantUpdate{IsMuted: &v}
	}
}

// NormalizeName trims a display name and checks it is usable.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name cannot be empty", ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", fmt.Errorf("%w: name is too long", ErrValidation)
	}
	return name, nil
}
