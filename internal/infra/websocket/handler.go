package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/traceprint/api/internal/infra/http/middleware"
	"github.com/traceprint/api/pkg/apierror"
	"github.com/traceprint/api/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Deployments front this with an origin-checking proxy.
		return true
	},
}

// Handler upgrades HTTP requests to websocket connections.
type Handler struct {
	hub    *Hub
	logger *logger.Logger
}

// NewHandler creates a websocket Handler.
func NewHandler(hub *Hub, log *logger.Logger) *Handler {
	return &Handler{hub: hub, logger: log}
}

// ServeWS handles GET /api/v1/ws.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	workspaceID := middleware.GetWorkspaceID(r.Context())
	if workspaceID == "" {
		apierror.Write(w, apierror.BadRequest("workspace id is required"), middleware.GetRequestID(r.Context()))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "workspace_id", workspaceID, "error", err)
		return
	}

	client := NewClient(h.hub, conn, workspaceID, h.logger)
	h.hub.RegisterClient(client)

	h.logger.Info("websocket client connected",
		"client_id", client.ID,
		"workspace_id", workspaceID,
		"remote_addr", r.RemoteAddr,
	)

	go client.WritePump()
	go client.ReadPump()
}
