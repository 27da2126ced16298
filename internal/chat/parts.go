package chat

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/yungbote/driftchat-backend/internal/domain"
)

// PartType discriminates the closed set of streaming events describing an
// in-flight assistant turn.
type PartType string

const (
	PartMessageStart   PartType = "message-start"
	PartTextStart      PartType = "text-start"
	PartTextDelta      PartType = "text-delta"
	PartTextEnd        PartType = "text-end"
	PartToolCallStart  PartType = "tool-call-start"
	PartToolCallDelta  PartType = "tool-call-delta"
	PartToolCall       PartType = "tool-call"
	PartToolCallResult PartType = "tool-call-result"
	PartToolCallEnd    PartType = "tool-call-end"
	PartMessageEnd     PartType = "message-end"
)

// MessagePart is one protocol event. ID identifies a sub-part (one text
// span or one tool call) within the message; parts sharing an ID arrive in
// their state-machine order, parts for different IDs interleave freely.
// Never persisted standalone.
type MessagePart struct {
	Type      PartType  `json:"type"`
	MessageID uuid.UUID `json:"messageId"`

	ID    string `json:"id,omitempty"`
	Delta string `json:"delta,omitempty"`

	Name   domain.ToolName    `json:"name,omitempty"`
	Input  json.RawMessage    `json:"input,omitempty"`
	Output *domain.ToolOutput `json:"output,omitempty"`

	FinishReason domain.FinishReason `json:"finishReason,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// StreamEvent is one outbound transport event: a protocol part wrapped
// with its event name, or one of the transport-only markers.
type StreamEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

const (
	EventStart = "start"
	EventEnd   = "end"
	EventError = "error"
)

func PartEvent(p MessagePart) StreamEvent {
	return StreamEvent{Event: string(p.Type), Data: p}
}
