package converter

import (
	"time"

	"github.com/immxrtalbeast/meetsync/internal/domain"
	"github.com/pion/webrtc/v3"
)

// MeetingResponse is a meeting snapshot with its remaining time in seconds.
type MeetingResponse struct {
	domain.Meeting
	TimeRemaining int64 `json:"timeRemaining"`
}

type MeetingListResponse struct {
	Meetings []domain.MeetingSummary `json:"meetings"`
	Total    int                     `json:"total"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
}

type AuditEntryResponse struct {
	ID      string    `json:"id"`
	Action  string    `json:"action"`
	ActorID string    `json:"actorId"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

type RTCConfigResponse struct {
	ICEServers []webrtc.ICEServer `json:"iceServers"`
}

func MeetingToApi(m domain.Meeting, remaining time.Duration) *MeetingResponse {
	return &MeetingResponse{
		Meeting:       m,
		TimeRemaining: int64(remaining / time.Second),
	}
}

func MeetingListToApi(items []domain.MeetingSummary, total, limit, offset int) *MeetingListResponse {
	if items == nil {
		items = []domain.MeetingSummary{}
	}
	return &MeetingListResponse{
		Meetings: items,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}
}

func AuditToApi(entries []domain.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, AuditEntryResponse{
			ID:      e.ID.String(),
			Action:  string(e.Action),
			ActorID: e.ActorID,
			Reason:  e.Reason,
			At:      e.At,
		})
	}
	return out
}

// RTCConfigToApi groups every STUN url into a single ICE server entry.
func RTCConfigToApi(stunServers []string) *RTCConfigResponse {
	servers := []webrtc.ICEServer{}
	if len(stunServers) > 0 {
		urls := make([]string, len(stunServers))
		copy(urls, stunServers)
		servers = append(servers, webrtc.ICEServer{URLs: urls})
	}
	return &RTCConfigResponse{ICEServers: servers}
}
