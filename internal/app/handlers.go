package app

import (
	"github.com/yungbote/driftchat-backend/internal/handlers"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
)

type Handlers struct {
	Auth        *handlers.AuthHandler
	Chat        *handlers.ChatHandler
	Document    *handlers.DocumentHandler
	Healthcheck *handlers.HealthcheckHandler
}

func wireHandlers(log *logger.Logger, serviceset Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Auth:        handlers.NewAuthHandler(serviceset.Auth, log),
		Chat:        handlers.NewChatHandler(serviceset.Chat, log),
		Document:    handlers.NewDocumentHandler(serviceset.Document, log),
		Healthcheck: handlers.NewHealthcheckHandler(),
	}
}
