package domain

import (
	"encoding/json"
	"time"
)

// Inbound channel event types. The long names are accepted for older clients.
const (
	EventJoin         = "join"
	EventStart        = "start"
	EventEnd          = "end"
	EventToggleMute   = "toggleMute"
	EventToggleCamera = "toggleCamera"
	EventUpdateName   = "updateName"
	EventSendMessage  = "sendMessage"
	EventPing         = "ping"
)

var eventAliases = map[string]string{
	"joinMeeting":           EventJoin,
	"startMeeting":          EventStart,
	"endMeeting":            EventEnd,
	"updateParticipantName": EventUpdateName,
}

// Outbound notification types.
const (
	NotifyMeetingJoined      = "meetingJoined"
	NotifyParticipantJoined  = "participantJoined"
	NotifyMeetingStarted     = "meetingStarted"
	NotifyMeetingEnded       = "meetingEnded"
	NotifyParticipantUpdated = "participantUpdated"
	NotifyParticipantLeft    = "participantLeft"
	NotifyNewMessage         = "newMessage"
	NotifyError              = "error"
	NotifyPong               = "pong"
)

// InboundEvent is the envelope a client sends over its connection.
type InboundEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Canonical resolves legacy aliases to the current event name.
func (e InboundEvent) Canonical() string {
	if name, ok := eventAliases[e.Type]; ok {
		return name
	}
	return e.Type
}

// Notification is the envelope the server sends to a connection.
type Notification struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type MeetingJoinedPayload struct {
	Meeting            Meeting     `json:"meeting"`
	TimeRemaining      int64       `json:"timeRemaining"`
	CurrentParticipant Participant `json:"currentParticipant"`
}

type ParticipantJoinedPayload struct {
	Participant Participant `json:"participant"`
}

type MeetingStartedPayload struct {
	MeetingID string    `json:"meetingId"`
	StartedAt time.Time `json:"startedAt"`
	Duration  int       `json:"duration"`
}

type MeetingEndedPayload struct {
	MeetingID string    `json:"meetingId"`
	Reason    EndReason `json:"reason"`
}

type ParticipantUpdatedPayload struct {
	ParticipantID string            `json:"participantId"`
	Updates       ParticipantUpdate `json:"updates"`
}

type ParticipantLeftPayload struct {
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func MeetingEndedNotification(meetingID string, reason EndReason) Notification {
	return Notification{
		Type:    NotifyMeetingEnded,
		Payload: MeetingEndedPayload{MeetingID: meetingID, Reason: reason},
	}
}

func ErrorNotification(message, code string) Notification {
	return Notification{
		Type:    NotifyError,
		Payload: ErrorPayload{Message: message, Code: code},
	}
}
