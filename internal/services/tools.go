package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	openaiclient "github.com/yungbote/driftchat-backend/internal/clients/openai"
	"github.com/yungbote/driftchat-backend/internal/domain"
	"github.com/yungbote/driftchat-backend/internal/pkg/dbctx"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/repos"
)

const maxSummaryRunes = 280

// ToolService executes the document tools backend-side during a turn.
// Every failure is a tagged output: a bad document id degrades one tool
// call, never the stream.
type ToolService struct {
	docs repos.DocumentRepo
	log  *logger.Logger
}

var _ openaiclient.ToolExecutor = (*ToolService)(nil)

func NewToolService(docs repos.DocumentRepo, log *logger.Logger) *ToolService {
	return &ToolService{docs: docs, log: log.With("service", "ToolService")}
}

type documentToolInput struct {
	DocumentID string `json:"documentId"`
}

func (s *ToolService) Execute(ctx context.Context, userID uuid.UUID, name domain.ToolName, input json.RawMessage) *domain.ToolOutput {
	doc, fail := s.resolveDocument(ctx, userID, input)
	if fail != nil {
		return fail
	}
	switch name {
	case domain.ToolProcessDocument:
		return domain.ToolSuccess(map[string]any{
			"name":      doc.Name,
			"wordCount": doc.WordCount,
			"summary":   summarize(doc.Content),
		})
	case domain.ToolReadDocument:
		return domain.ToolSuccess(map[string]any{
			"name":    doc.Name,
			"content": doc.Content,
		})
	default:
		return domain.ToolFailure(fmt.Sprintf("unknown tool %q", name))
	}
}

func (s *ToolService) resolveDocument(ctx context.Context, userID uuid.UUID, input json.RawMessage) (*domain.Document, *domain.ToolOutput) {
	var in documentToolInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, domain.ToolFailure(fmt.Sprintf("invalid tool input: %v", err))
	}
	docID, err := uuid.Parse(in.DocumentID)
	if err != nil {
		return nil, domain.ToolFailure(fmt.Sprintf("invalid documentId %q", in.DocumentID))
	}
	doc, err := s.docs.GetByID(dbctx.Context{Ctx: ctx}, docID)
	if err != nil {
		s.log.Error("document lookup failed", "document_id", docID, "error", err)
		return nil, domain.ToolFailure("document lookup failed")
	}
	if doc == nil || doc.UserID != userID {
		return nil, domain.ToolFailure(fmt.Sprintf("document %s not found", docID))
	}
	return doc, nil
}

func summarize(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= maxSummaryRunes {
		return content
	}
	return string(runes[:maxSummaryRunes]) + "…"
}
