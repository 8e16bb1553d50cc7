// README: Websocket upgrade for ride channels.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridebook/internal/http/middleware"
	"ridebook/internal/types"
)

type SocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, who types.Identity) error
}

type WSHandler struct {
	hub SocketServer
}

func NewWSHandler(hub SocketServer) *WSHandler {
	return &WSHandler{hub: hub}
}

func (h *WSHandler) Serve(c *gin.Context) {
	who := middleware.Caller(c)
	if who.Role == "" {
		writeError(c, http.StatusForbidden, "role required")
		return
	}
	// On a failed upgrade the upgrader has already answered the request.
	if err := h.hub.ServeWS(c.Writer, c.Request, who); err != nil {
		_ = c.Error(err)
	}
}
