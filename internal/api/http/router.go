package http

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// AllowOrigin reports whether origin is in origins. A "*" entry allows all.
func AllowOrigin(origins []string) func(origin string) bool {
	if slices.Contains(origins, "*") {
		return func(string) bool { return true }
	}
	return func(origin string) bool { return slices.Contains(origins, origin) }
}

func SetupRouter(
	allowOrigins []string,
	meetingController *MeetingController,
	wsController *WSController,
	rtcController *RTCController,
) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	if len(allowOrigins) == 0 || slices.Contains(allowOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowOrigins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "PATCH", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	api := router.Group("/api")

	if meetingController != nil {
		meetings := api.Group("/meetings")
		meetings.POST("", meetingController.CreateMeeting)
		meetings.GET("", meetingController.ListMeetings)
		meetings.GET("/stats", meetingController.Stats)
		meetings.GET("/:meetingID", meetingController.GetMeeting)
		meetings.POST("/:meetingID/join", meetingController.JoinMeeting)
		meetings.POST("/:meetingID/start", meetingController.StartMeeting)
		meetings.POST("/:meetingID/end", meetingController.EndMeeting)
		meetings.PATCH("/:meetingID/participants/:participantID", meetingController.UpdateParticipant)
		meetings.GET("/:meetingID/audit", meetingController.Audit)
	}

	if wsController != nil {
		api.GET("/ws", wsController.Serve)
	}

	if rtcController != nil {
		api.GET("/rtc/config", rtcController.Config)
	}

	return router
}
