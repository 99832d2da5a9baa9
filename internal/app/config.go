package app

import (
	"time"

	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/utils"
)

type Config struct {
	Port         string
	JWTSecretKey string
	FrontendURL  string
	Greeting     string
	StoreTimeout time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	port := utils.GetEnv("PORT", "8080", log)
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
	frontendURL := utils.GetEnv("FRONTEND_URL", "http://localhost:3000", log)
	greeting := utils.GetEnv("SUPPORT_GREETING", "", log)
	storeTimeoutMS := utils.GetEnvAsInt("STORE_TIMEOUT_MS", 5000, log)
	return Config{
		Port:         port,
		JWTSecretKey: jwtSecretKey,
		FrontendURL:  frontendURL,
		Greeting:     greeting,
		StoreTimeout: time.Duration(storeTimeoutMS) * time.Millisecond,
	}
}
