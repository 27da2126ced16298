package db

import (
	types "github.com/yungbote/driftchat-backend/internal/domain"
)

func (s *Service) AutoMigrateAll() error {
	return s.db.AutoMigrate(

		// =========================
		// Identity + auth
		// =========================
		&types.User{},
		&types.UserToken{},

		// =========================
		// Conversations
		// =========================
		&types.Chat{},
		&types.Message{},

		// =========================
		// Documents (tool-backing uploads)
		// =========================
		&types.Document{},
	)
}
