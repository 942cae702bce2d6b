package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const MaxChatMessageLength = 4000

// ChatMessage is relayed to the room and never stored.
type ChatMessage struct {
	ID              string    `json:"id"`
	ParticipantID   string    `json:"participantId"`
	ParticipantName string    `json:"participantName"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
}

func NewChatMessage(sender Participant, content string, now time.Time) (ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return ChatMessage{}, fmt.Errorf("%w: message cannot be empty", ErrValidation)
	}
	if utf8.RuneCountInString(content) > MaxChatMessageLength {
		return ChatMessage{}, fmt.Errorf("%w: message is too long", ErrValidation)
	}
	return ChatMessage{
		ID:              uuid.NewString(),
		ParticipantID:   sender.ID,
		ParticipantName: sender.Name,
		Message:         content,
		Timestamp:       now,
	}, nil
}
