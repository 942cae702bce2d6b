package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/meetsync/internal/api/http/converter"
)

// RTCController hands clients the ICE servers to use for their own peer
// connections. Media never passes through this server.
type RTCController struct {
	stunServers []string
}

func NewRTCController(stunServers []string) *RTCController {
	return &RTCController{stunServers: stunServers}
}

func (c *RTCController) Config(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, converter.RTCConfigToApi(c.stunServers))
}
