package handlers

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/driftchat-backend/internal/chat"
	"github.com/yungbote/driftchat-backend/internal/domain"
)

func TestChatViewResponseShape(t *testing.T) {
	chatID := uuid.New()
	rootID := uuid.New()
	childID := uuid.New()
	t0 := time.Now().UTC()

	root := &domain.Message{ID: rootID, ChatID: chatID, Role: domain.RoleUser, CreatedAt: t0}
	child := &domain.Message{
		ID:              childID,
		ChatID:          chatID,
		ParentMessageID: &rootID,
		Role:            domain.RoleAssistant,
		CreatedAt:       t0.Add(time.Second),
	}
	view := chat.BuildView([]*domain.Message{root, child})

	payload, err := json.Marshal(chatViewResponse{
		Chat:     &domain.Chat{ID: chatID, Title: "Shapes"},
		TreeView: view,
	})
	if err != nil {
		t.Fatalf("marshal view response: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode view response: %v", err)
	}
	for _, key := range []string{"chat", "root_message_ids", "latest_path", "messages"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("response key %q missing; got=%s", key, payload)
		}
	}
	for _, key := range []string{"rootMessageIds", "latestPath"} {
		if _, ok := decoded[key]; ok {
			t.Fatalf("stale camelCase key %q in response: %s", key, payload)
		}
	}

	var paths struct {
		LatestPath []uuid.UUID `json:"latest_path"`
	}
	if err := json.Unmarshal(payload, &paths); err != nil {
		t.Fatalf("decode latest path: %v", err)
	}
	if len(paths.LatestPath) != 2 || paths.LatestPath[0] != rootID || paths.LatestPath[1] != childID {
		t.Fatalf("latest path: want=[%s %s] got=%v", rootID, childID, paths.LatestPath)
	}
}
