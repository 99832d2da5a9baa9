package app

import (
	"gorm.io/gorm"

	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/realtime"
	"github.com/livedesk/backend/internal/services"
)

type Services struct {
	Identity      services.IdentityService
	Conversations services.ConversationService
	Notifier      services.SupportNotifier
	Session       *services.SessionRouter
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, hub *realtime.Hub) Services {
	log.Info("Wiring services...")

	identity := services.NewIdentityService(log, cfg.JWTSecretKey)
	conversations := services.NewConversationService(db, log, reposet.Conversation, cfg.StoreTimeout)
	notifier := services.NewSupportNotifier(hub)
	session := services.NewSessionRouter(log, hub, conversations, notifier, cfg.Greeting)

	return Services{
		Identity:      identity,
		Conversations: conversations,
		Notifier:      notifier,
		Session:       session,
	}
}
