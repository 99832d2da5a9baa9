package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/livedesk/backend/internal/http/handlers"
	httpMW "github.com/livedesk/backend/internal/http/middleware"
)

type RouterConfig struct {
	ServiceName string
	FrontendURL string

	HealthHandler  *httpH.HealthHandler
	SocketHandler  *httpH.SocketHandler
	SupportHandler *httpH.SupportHandler
	AuthMiddleware *httpMW.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.Default()
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMW.CORS(cfg.FrontendURL))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		// Chat socket (public: invalid credentials degrade to guest, they
		// never refuse the connection).
		if cfg.SocketHandler != nil {
			api.GET("/support/ws", cfg.SocketHandler.Support)
		}
	}

	staff := api.Group("/support")
	{
		if cfg.AuthMiddleware != nil {
			staff.Use(cfg.AuthMiddleware.RequireStaff())
		}

		if cfg.SupportHandler != nil {
			staff.GET("/chats", cfg.SupportHandler.ListChats)
			staff.GET("/chats/:id", cfg.SupportHandler.GetChat)
			staff.PUT("/chats/:id/end", cfg.SupportHandler.EndChat)
			staff.DELETE("/chats/:id", cfg.SupportHandler.DeleteChat)
			staff.GET("/tickets", cfg.SupportHandler.ListTickets)
			staff.PUT("/tickets/:id/assign", cfg.SupportHandler.AssignTicket)
			staff.GET("/presence", cfg.SupportHandler.Presence)
		}
	}

	return r
}
