package services

import (
	"context"

	"github.com/yungbote/driftchat-backend/internal/chat"
	openaiclient "github.com/yungbote/driftchat-backend/internal/clients/openai"
)

// Producer is the upstream assistant backend: given prior messages and a
// pre-allocated message id, it yields an ordered-per-id part stream
// terminating in exactly one message-end.
type Producer interface {
	StreamTurn(ctx context.Context, req openaiclient.TurnRequest) (<-chan chat.MessagePart, error)
	GenerateTitle(ctx context.Context, userText, assistantText string) (string, error)
	Moderate(ctx context.Context, text string) (bool, error)
}
