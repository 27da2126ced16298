package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/driftchat-backend/internal/chat"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
)

func testRegistry(t *testing.T) *StopRegistry {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return NewStopRegistry(log, nil)
}

func TestStopRegistryWorksWithoutBus(t *testing.T) {
	stops := testRegistry(t)
	chatID := uuid.New()
	flag := chat.NewAbortFlag()
	release := stops.Register(chatID, flag)
	defer release()

	if err := stops.StartForwarder(context.Background()); err != nil {
		t.Fatalf("StartForwarder without bus: err=%v", err)
	}
	stops.Stop(context.Background(), chatID)
	if !flag.Aborted() {
		t.Fatalf("flag aborted: want=true got=false")
	}
}

func TestStopRegistryStopUnknownChatIsNoop(t *testing.T) {
	stops := testRegistry(t)
	stops.Stop(context.Background(), uuid.New())

	chatID := uuid.New()
	flag := chat.NewAbortFlag()
	release := stops.Register(chatID, flag)
	defer release()
	if flag.Aborted() {
		t.Fatalf("flag aborted: want=false got=true")
	}
}

func TestStopRegistryReleaseRemovesFlag(t *testing.T) {
	stops := testRegistry(t)
	chatID := uuid.New()
	flag := chat.NewAbortFlag()
	release := stops.Register(chatID, flag)
	release()

	stops.Stop(context.Background(), chatID)
	if flag.Aborted() {
		t.Fatalf("released flag aborted: want=false got=true")
	}
}
