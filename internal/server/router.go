package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/yungbote/driftchat-backend/internal/handlers"
	"github.com/yungbote/driftchat-backend/internal/middleware"
)

type RouterConfig struct {
	AllowOrigins       []string
	AuthHandler        *handlers.AuthHandler
	AuthMiddleware     *middleware.AuthMiddleware
	ChatHandler        *handlers.ChatHandler
	DocumentHandler    *handlers.DocumentHandler
	HealthcheckHandler *handlers.HealthcheckHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(otelgin.Middleware("driftchat-backend"))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"X-Chat-Id"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", cfg.HealthcheckHandler.Healthcheck)
	router.POST("/register", cfg.AuthHandler.Register)
	router.POST("/login", cfg.AuthHandler.Login)
	router.POST("/refresh", cfg.AuthHandler.Refresh)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// User
	protected.GET("/user", cfg.AuthHandler.GetMe)
	// Chats
	protected.POST("/chats", cfg.ChatHandler.StartChat)
	protected.GET("/chats", cfg.ChatHandler.ListChats)
	protected.GET("/chats/:chatID", cfg.ChatHandler.GetChat)
	protected.DELETE("/chats/:chatID", cfg.ChatHandler.DeleteChat)
	protected.POST("/chats/:chatID/messages", cfg.ChatHandler.ContinueChat)
	protected.POST("/chats/:chatID/stop", cfg.ChatHandler.StopTurn)
	protected.POST("/chats/:chatID/messages/:messageID/feedback", cfg.ChatHandler.SetFeedback)
	// Documents
	protected.POST("/documents", cfg.DocumentHandler.Upload)
	protected.GET("/documents", cfg.DocumentHandler.List)
	protected.GET("/documents/:documentID", cfg.DocumentHandler.Get)

	return router
}
