package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/services"
)

type Services struct {
	Auth     services.AuthService
	Chat     services.ChatService
	Document services.DocumentService
	Tools    *services.ToolService
	Stops    *services.StopRegistry
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients, tools *services.ToolService) Services {
	log.Info("Wiring services...")
	stops := services.NewStopRegistry(log, clients.StopBus)
	return Services{
		Auth:     services.NewAuthService(db, log, cfg.Auth, reposet.User, reposet.UserToken),
		Chat:     services.NewChatService(db, log, reposet.Chat, reposet.Message, reposet.Document, clients.Producer, stops),
		Document: services.NewDocumentService(db, log, reposet.Document),
		Tools:    tools,
		Stops:    stops,
	}
}
