package app

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/driftchat-backend/internal/server"
)

func wireRouter(cfg Config, handlerset Handlers, mw Middleware) *gin.Engine {
	return server.NewRouter(server.RouterConfig{
		AllowOrigins:       cfg.AllowOrigins,
		AuthHandler:        handlerset.Auth,
		AuthMiddleware:     mw.Auth,
		ChatHandler:        handlerset.Chat,
		DocumentHandler:    handlerset.Document,
		HealthcheckHandler: handlerset.Healthcheck,
	})
}
