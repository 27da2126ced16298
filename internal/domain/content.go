package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Feedback string

const (
	FeedbackLike    Feedback = "like"
	FeedbackDislike Feedback = "dislike"
	FeedbackNeutral Feedback = "neutral"
)

func (f Feedback) Valid() bool {
	switch f {
	case FeedbackLike, FeedbackDislike, FeedbackNeutral:
		return true
	}
	return false
}

// FinishReason is the terminal state of an assistant turn.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content-filter"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishError         FinishReason = "error"
	FinishOther         FinishReason = "other"
	FinishUnknown       FinishReason = "unknown"
	FinishInterrupted   FinishReason = "interrupted"
)

type BlockType string

const (
	BlockText     BlockType = "text"
	BlockDocument BlockType = "document"
	BlockToolCall BlockType = "tool-call"
)

type ToolName string

const (
	ToolProcessDocument ToolName = "processDocument"
	ToolReadDocument    ToolName = "readDocument"
)

func (t ToolName) Valid() bool {
	return t == ToolProcessDocument || t == ToolReadDocument
}

// ToolOutput is the tagged result of one tool call.
type ToolOutput struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func ToolSuccess(data any) *ToolOutput {
	raw, err := json.Marshal(data)
	if err != nil {
		return ToolFailure(fmt.Sprintf("encode tool output: %v", err))
	}
	return &ToolOutput{Success: true, Data: raw}
}

func ToolFailure(msg string) *ToolOutput {
	return &ToolOutput{Success: false, Error: msg}
}

// ContentBlock is one finalized, persisted unit of message content.
// A single struct carries all variants; Type selects which fields are live.
//   - text:      ID, Text
//   - document:  ID, Name, DocumentID (user messages only)
//   - tool-call: ID, Name, Input, Output (assistant messages only)
type ContentBlock struct {
	Type       BlockType       `json:"type"`
	ID         string          `json:"id"`
	Text       string          `json:"text,omitempty"`
	Name       string          `json:"name,omitempty"`
	DocumentID *uuid.UUID      `json:"documentId,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     *ToolOutput     `json:"output,omitempty"`
}

func (b ContentBlock) Validate(role Role) error {
	if b.ID == "" {
		return fmt.Errorf("content block missing id")
	}
	switch b.Type {
	case BlockText:
		if b.Text == "" {
			return fmt.Errorf("text block %q is empty", b.ID)
		}
	case BlockDocument:
		if role != RoleUser {
			return fmt.Errorf("document block %q on non-user message", b.ID)
		}
		if b.DocumentID == nil || *b.DocumentID == uuid.Nil {
			return fmt.Errorf("document block %q missing documentId", b.ID)
		}
	case BlockToolCall:
		if role != RoleAssistant {
			return fmt.Errorf("tool-call block %q on non-assistant message", b.ID)
		}
		if !ToolName(b.Name).Valid() {
			return fmt.Errorf("tool-call block %q has unknown tool %q", b.ID, b.Name)
		}
	default:
		return fmt.Errorf("unknown content block type %q", b.Type)
	}
	return nil
}
