package app

import (
	"testing"

	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/services"
)

func TestWireClientsWithoutRedis(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("REDIS_ADDR", "")

	clients, err := wireClients(log, services.NewToolService(nil, log))
	if err != nil {
		t.Fatalf("wireClients without redis: err=%v", err)
	}
	if clients.Producer == nil {
		t.Fatalf("producer: want non-nil")
	}
	if clients.StopBus != nil {
		t.Fatalf("stop bus: want=nil got=%T", clients.StopBus)
	}
}
