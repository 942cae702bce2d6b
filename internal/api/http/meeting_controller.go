package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/meetsync/internal/api/http/converter"
	"github.com/immxrtalbeast/meetsync/internal/domain"
	"github.com/immxrtalbeast/meetsync/internal/service"
	"github.com/immxrtalbeast/meetsync/lib/logger/sl"
)

type MeetingController struct {
	meetings service.MeetingInteractor
	log      *slog.Logger
}

func NewMeetingController(meetings service.MeetingInteractor, log *slog.Logger) *MeetingController {
	if log == nil {
		log = slog.Default()
	}
	return &MeetingController{meetings: meetings, log: log}
}

func (c *MeetingController) CreateMeeting(ctx *gin.Context) {
	type CreateMeetingRequest struct {
		Title    string                   `json:"title" binding:"required"`
		Duration int                      `json:"duration" binding:"required"`
		HostName string                   `json:"hostName" binding:"required"`
		Settings *domain.SettingsOverride `json:"settings"`
	}
	var req CreateMeetingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.badRequest(ctx, err)
		return
	}

	meeting, host, err := c.meetings.CreateMeeting(ctx.Request.Context(), service.CreateMeetingInput{
		Title:           req.Title,
		DurationMinutes: req.Duration,
		HostName:        req.HostName,
		Settings:        req.Settings,
	})
	if err != nil {
		c.fail(ctx, "create", err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"meeting": meeting, "host": host})
}

func (c *MeetingController) GetMeeting(ctx *gin.Context) {
	meeting, remaining, err := c.meetings.GetMeeting(ctx.Request.Context(), ctx.Param("meetingID"))
	if err != nil {
		c.fail(ctx, "get", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"meeting": converter.MeetingToApi(meeting, remaining)})
}

func (c *MeetingController) JoinMeeting(ctx *gin.Context) {
	type JoinMeetingRequest struct {
		Name          string `json:"name"`
		ParticipantID string `json:"participantId"`
	}
	var req JoinMeetingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.badRequest(ctx, err)
		return
	}

	meeting, participant, err := c.meetings.JoinMeeting(ctx.Request.Context(), ctx.Param("meetingID"), req.Name, req.ParticipantID)
	if err != nil {
		c.fail(ctx, "join", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"participant": participant, "meeting": meeting})
}

type hostRequest struct {
	HostID string `json:"hostId" binding:"required"`
}

func (c *MeetingController) StartMeeting(ctx *gin.Context) {
	var req hostRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.badRequest(ctx, err)
		return
	}

	meeting, err := c.meetings.StartMeeting(ctx.Request.Context(), ctx.Param("meetingID"), req.HostID)
	if err != nil {
		c.fail(ctx, "start", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"meeting": meeting})
}

func (c *MeetingController) EndMeeting(ctx *gin.Context) {
	var req hostRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.badRequest(ctx, err)
		return
	}

	if _, err := c.meetings.EndMeeting(ctx.Request.Context(), ctx.Param("meetingID"), req.HostID); err != nil {
		c.fail(ctx, "end", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Meeting ended successfully"})
}

// UpdateParticipant accepts only the mutable participant fields. Anything
// else in the body is ignored.
func (c *MeetingController) UpdateParticipant(ctx *gin.Context) {
	type UpdateParticipantRequest struct {
		IsMuted    *bool   `json:"isMuted"`
		IsCameraOn *bool   `json:"isCameraOn"`
		Name       *string `json:"name"`
	}
	var req UpdateParticipantRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		c.badRequest(ctx, err)
		return
	}

	participant, err := c.meetings.UpdateParticipant(
		ctx.Request.Context(),
		ctx.Param("meetingID"),
		ctx.Param("participantID"),
		domain.ParticipantUpdate{
			IsMuted:    req.IsMuted,
			IsCameraOn: req.IsCameraOn,
			Name:       req.Name,
		},
	)
	if err != nil {
		c.fail(ctx, "update participant", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"participant": participant})
}

func (c *MeetingController) ListMeetings(ctx *gin.Context) {
	type ListQuery struct {
		Limit  int `form:"limit"`
		Offset int `form:"offset"`
	}
	var q ListQuery
	if err := ctx.ShouldBindQuery(&q); err != nil {
		c.badRequest(ctx, err)
		return
	}

	page, err := c.meetings.ListMeetings(ctx.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		c.fail(ctx, "list", err)
		return
	}

	ctx.JSON(http.StatusOK, converter.MeetingListToApi(page.Meetings, page.Total, page.Limit, page.Offset))
}

func (c *MeetingController) Stats(ctx *gin.Context) {
	stats, err := c.meetings.Stats(ctx.Request.Context())
	if err != nil {
		c.fail(ctx, "stats", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (c *MeetingController) Audit(ctx *gin.Context) {
	entries, err := c.meetings.MeetingAudit(ctx.Request.Context(), ctx.Param("meetingID"))
	if err != nil {
		c.fail(ctx, "audit", err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"entries": converter.AuditToApi(entries)})
}

func (c *MeetingController) badRequest(ctx *gin.Context, err error) {
	ctx.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid request body",
		"code":    domain.CodeValidation,
		"details": err.Error(),
	})
}

func (c *MeetingController) fail(ctx *gin.Context, action string, err error) {
	code := domain.Code(err)
	status := statusFor(code)
	if status == http.StatusInternalServerError {
		c.log.Error("request failed",
			slog.String("op", "http.meeting."+action),
			slog.String("path", ctx.FullPath()),
			sl.Err(err),
		)
		ctx.JSON(status, gin.H{"error": "internal server error", "code": code})
		return
	}
	ctx.JSON(status, gin.H{"error": err.Error(), "code": code})
}

func statusFor(code string) int {
	switch code {
	case domain.CodeValidation, domain.CodeExpired, domain.CodeAlreadyActive, domain.CodeNotActive, domain.CodeEnded:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeForbidden, domain.CodeFull:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
