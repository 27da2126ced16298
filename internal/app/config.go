package app

import (
	"strings"
	"time"

	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/pkg/utils"
	"github.com/yungbote/driftchat-backend/internal/services"
)

type Config struct {
	Auth         services.AuthConfig
	AllowOrigins []string
	HTTPAddr     string
}

func LoadConfig(log *logger.Logger) Config {
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	accessTokenTTLSeconds := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
	refreshTokenTTLSeconds := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
	origins := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173", log)
	addr := utils.GetEnv("HTTP_ADDR", ":8080", log)
	return Config{
		Auth: services.AuthConfig{
			JWTSecretKey:    jwtSecretKey,
			AccessTokenTTL:  time.Duration(accessTokenTTLSeconds) * time.Second,
			RefreshTokenTTL: time.Duration(refreshTokenTTLSeconds) * time.Second,
		},
		AllowOrigins: strings.Split(origins, ","),
		HTTPAddr:     addr,
	}
}
