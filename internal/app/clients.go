package app

import (
	"fmt"
	"strings"

	openaiclient "github.com/yungbote/driftchat-backend/internal/clients/openai"
	redisclient "github.com/yungbote/driftchat-backend/internal/clients/redis"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/pkg/utils"
	"github.com/yungbote/driftchat-backend/internal/services"
)

type Clients struct {
	Producer *openaiclient.Producer
	StopBus  redisclient.StopBus
}

func wireClients(log *logger.Logger, tools *services.ToolService) (Clients, error) {
	log.Info("Wiring clients...")
	producer, err := openaiclient.NewProducer(log, tools)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai producer: %w", err)
	}
	// Redis is optional: without it turn stops stay instance-local.
	var bus redisclient.StopBus
	if addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log)); addr != "" {
		bus, err = redisclient.NewStopBus(log)
		if err != nil {
			return Clients{}, fmt.Errorf("init redis stop bus: %w", err)
		}
	} else {
		log.Info("REDIS_ADDR not set; skipping stop bus")
	}
	return Clients{Producer: producer, StopBus: bus}, nil
}
