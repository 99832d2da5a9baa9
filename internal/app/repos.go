package app

import (
	"gorm.io/gorm"

	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/repos"
)

type Repos struct {
	Conversation repos.ConversationRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Conversation: repos.NewConversationRepo(db, log),
	}
}
