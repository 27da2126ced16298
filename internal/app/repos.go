package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/repos"
)

type Repos struct {
	User      repos.UserRepo
	UserToken repos.UserTokenRepo
	Chat      repos.ChatRepo
	Message   repos.MessageRepo
	Document  repos.DocumentRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:      repos.NewUserRepo(db, log),
		UserToken: repos.NewUserTokenRepo(db, log),
		Chat:      repos.NewChatRepo(db, log),
		Message:   repos.NewMessageRepo(db, log),
		Document:  repos.NewDocumentRepo(db, log),
	}
}
