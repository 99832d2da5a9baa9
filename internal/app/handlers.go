package app

import (
	"github.com/gin-gonic/gin"

	"github.com/livedesk/backend/internal/http"
	httpH "github.com/livedesk/backend/internal/http/handlers"
	httpMW "github.com/livedesk/backend/internal/http/middleware"
	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/realtime"
)

type Handlers struct {
	Health  *httpH.HealthHandler
	Socket  *httpH.SocketHandler
	Support *httpH.SupportHandler
}

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

func wireHandlers(log *logger.Logger, serviceset Services, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:  httpH.NewHealthHandler(),
		Socket:  httpH.NewSocketHandler(log, serviceset.Identity, serviceset.Session),
		Support: httpH.NewSupportHandler(log, serviceset.Conversations, serviceset.Notifier, hub, serviceset.Session),
	}
}

func wireMiddleware(log *logger.Logger, serviceset Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, serviceset.Identity),
	}
}

func wireRouter(cfg Config, handlerset Handlers, middleware Middleware) *gin.Engine {
	return http.NewRouter(http.RouterConfig{
		ServiceName:    "livedesk",
		FrontendURL:    cfg.FrontendURL,
		HealthHandler:  handlerset.Health,
		SocketHandler:  handlerset.Socket,
		SupportHandler: handlerset.Support,
		AuthMiddleware: middleware.Auth,
	})
}
