package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/realtime"
	"github.com/livedesk/backend/internal/services"
)

// SocketHandler is the connection gateway: it upgrades the transport,
// resolves the presented credential exactly once, and pins the resulting
// identity to the connection for its lifetime.
type SocketHandler struct {
	log      *logger.Logger
	identity services.IdentityService
	router   *services.SessionRouter
	upgrader websocket.Upgrader
}

func NewSocketHandler(log *logger.Logger, identity services.IdentityService, router *services.SessionRouter) *SocketHandler {
	return &SocketHandler{
		log:      log.With("handler", "SocketHandler"),
		identity: identity,
		router:   router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser origin policy is enforced by the CORS layer for the
			// REST surface; the socket accepts any origin and relies on the
			// token for authority.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// GET /api/support/ws?token=...
func (h *SocketHandler) Support(c *gin.Context) {
	ident := h.identity.Resolve(socketToken(c))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	client := realtime.NewClient(conn, realtime.ClientIdentity{
		Role:      ident.Role,
		SubjectID: ident.SubjectID,
	}, h.log)
	h.log.Info("New connection", "clientID", client.ID, "role", client.Role)

	go client.WritePump()
	ctx := c.Request.Context()
	client.ReadPump(func(env realtime.Envelope) {
		h.router.HandleEvent(ctx, client, env)
	})

	// ReadPump returned: the transport is gone. Cleanup is unconditional.
	client.Close()
	h.router.Disconnect(client)
	h.log.Info("Connection closed", "clientID", client.ID)
}

func socketToken(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
