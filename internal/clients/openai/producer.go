package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/driftchat-backend/internal/chat"
	"github.com/yungbote/driftchat-backend/internal/domain"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/pkg/utils"
)

// ToolExecutor runs one backend-side tool call on behalf of the acting
// user. Failures come back as tagged outputs, never as errors: a broken
// tool call must not kill the stream.
type ToolExecutor interface {
	Execute(ctx context.Context, userID uuid.UUID, name domain.ToolName, input json.RawMessage) *domain.ToolOutput
}

// TurnRequest carries everything the producer needs for one assistant
// turn: the pre-allocated assistant message id, the acting user, and the
// root-to-leaf conversation context ending in the new user message.
type TurnRequest struct {
	MessageID uuid.UUID
	UserID    uuid.UUID
	History   []*domain.Message
}

type Producer struct {
	client        *goopenai.Client
	model         string
	titleModel    string
	tools         ToolExecutor
	maxToolRounds int
	log           *logger.Logger
}

func NewProducer(log *logger.Logger, tools ToolExecutor) (*Producer, error) {
	apiKey := utils.GetEnv("OPENAI_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	cfg := goopenai.DefaultConfig(apiKey)
	if base := utils.GetEnv("OPENAI_BASE_URL", "", log); base != "" {
		cfg.BaseURL = base
	}
	return &Producer{
		client:        goopenai.NewClientWithConfig(cfg),
		model:         utils.GetEnv("OPENAI_CHAT_MODEL", goopenai.GPT4oMini, log),
		titleModel:    utils.GetEnv("OPENAI_TITLE_MODEL", goopenai.GPT4oMini, log),
		tools:         tools,
		maxToolRounds: utils.GetEnvAsInt("MAX_TOOL_ROUNDS", 5, log),
		log:           log.With("service", "OpenAIProducer"),
	}, nil
}

var toolDefs = []goopenai.Tool{
	{
		Type: goopenai.ToolTypeFunction,
		Function: &goopenai.FunctionDefinition{
			Name:        string(domain.ToolProcessDocument),
			Description: "Analyze an uploaded document and return its name, word count, and a short extract.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"documentId": {"type": "string", "description": "ID of the uploaded document"}},
				"required": ["documentId"]
			}`),
		},
	},
	{
		Type: goopenai.ToolTypeFunction,
		Function: &goopenai.FunctionDefinition{
			Name:        string(domain.ToolReadDocument),
			Description: "Return the full markdown content of an uploaded document.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {"documentId": {"type": "string", "description": "ID of the uploaded document"}},
				"required": ["documentId"]
			}`),
		},
	},
}

// StreamTurn starts the upstream completion and returns a part channel
// terminating in exactly one message-end (unless ctx is cancelled first,
// in which case the producer just stops yielding).
func (p *Producer) StreamTurn(ctx context.Context, req TurnRequest) (<-chan chat.MessagePart, error) {
	msgs, err := p.historyToPrompt(req.History)
	if err != nil {
		return nil, err
	}
	out := make(chan chat.MessagePart, 32)
	go func() {
		defer close(out)
		p.run(ctx, req, msgs, out)
	}()
	return out, nil
}

func (p *Producer) run(ctx context.Context, req TurnRequest, msgs []goopenai.ChatCompletionMessage, out chan<- chat.MessagePart) {
	emit := func(part chat.MessagePart) bool {
		part.MessageID = req.MessageID
		select {
		case out <- part:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(chat.MessagePart{Type: chat.PartMessageStart}) {
		return
	}

	subPart := 0
	nextID := func() string {
		subPart++
		return fmt.Sprintf("p%d", subPart)
	}

	for round := 0; round <= p.maxToolRounds; round++ {
		calls, finish, err := p.streamRound(ctx, msgs, nextID, emit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			emit(chat.MessagePart{
				Type:         chat.PartMessageEnd,
				FinishReason: domain.FinishError,
				Error:        err.Error(),
			})
			return
		}

		if len(calls) == 0 {
			emit(chat.MessagePart{Type: chat.PartMessageEnd, FinishReason: finish})
			return
		}
		if round == p.maxToolRounds {
			p.log.Warn("max tool rounds reached", "rounds", round, "message_id", req.MessageID)
			emit(chat.MessagePart{Type: chat.PartMessageEnd, FinishReason: domain.FinishToolCalls})
			return
		}

		results := p.executeCalls(ctx, req.UserID, calls)
		if ctx.Err() != nil {
			return
		}
		for i, call := range calls {
			ok := emit(chat.MessagePart{
				Type:   chat.PartToolCallResult,
				ID:     call.subID,
				Name:   call.name,
				Input:  call.input,
				Output: results[i],
			}) && emit(chat.MessagePart{
				Type: chat.PartToolCallEnd,
				ID:   call.subID,
				Name: call.name,
			})
			if !ok {
				return
			}
		}
		msgs = appendToolExchange(msgs, calls, results)
	}
}

// toolCall accumulates one streamed tool invocation.
type toolCall struct {
	subID      string
	providerID string
	name       domain.ToolName
	input      json.RawMessage
	args       strings.Builder
}

// streamRound consumes one upstream completion stream, emitting text and
// tool-call parts. It returns the collected tool calls (empty when the
// model finished without requesting tools) and the mapped finish reason.
func (p *Producer) streamRound(
	ctx context.Context,
	msgs []goopenai.ChatCompletionMessage,
	nextID func() string,
	emit func(chat.MessagePart) bool,
) ([]*toolCall, domain.FinishReason, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, goopenai.ChatCompletionRequest{
		Model:    p.model,
		Messages: msgs,
		Tools:    toolDefs,
		Stream:   true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start completion stream: %w", err)
	}
	defer stream.Close()

	var (
		textID  string
		calls   []*toolCall
		byIndex = map[int]*toolCall{}
		finish  = domain.FinishUnknown
	)

	closeText := func() bool {
		if textID == "" {
			return true
		}
		ok := emit(chat.MessagePart{Type: chat.PartTextEnd, ID: textID})
		textID = ""
		return ok
	}

	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("completion stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		if choice.Delta.Content != "" {
			if textID == "" {
				textID = nextID()
				if !emit(chat.MessagePart{Type: chat.PartTextStart, ID: textID}) {
					return nil, "", ctx.Err()
				}
			}
			if !emit(chat.MessagePart{Type: chat.PartTextDelta, ID: textID, Delta: choice.Delta.Content}) {
				return nil, "", ctx.Err()
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, seen := byIndex[idx]
			if !seen {
				if !closeText() {
					return nil, "", ctx.Err()
				}
				call = &toolCall{
					subID:      nextID(),
					providerID: tc.ID,
					name:       domain.ToolName(tc.Function.Name),
				}
				byIndex[idx] = call
				calls = append(calls, call)
				if !emit(chat.MessagePart{Type: chat.PartToolCallStart, ID: call.subID, Name: call.name}) {
					return nil, "", ctx.Err()
				}
			}
			if tc.Function.Arguments != "" {
				call.args.WriteString(tc.Function.Arguments)
				if !emit(chat.MessagePart{Type: chat.PartToolCallDelta, ID: call.subID, Name: call.name, Delta: tc.Function.Arguments}) {
					return nil, "", ctx.Err()
				}
			}
		}

		if choice.FinishReason != "" {
			finish = mapFinishReason(choice.FinishReason)
		}
	}

	if !closeText() {
		return nil, "", ctx.Err()
	}

	// Arguments are complete once the stream ends; emit the full input
	// for each collected call.
	for _, call := range calls {
		raw := call.args.String()
		if raw == "" {
			raw = "{}"
		}
		call.input = json.RawMessage(raw)
		if !emit(chat.MessagePart{Type: chat.PartToolCall, ID: call.subID, Name: call.name, Input: call.input}) {
			return nil, "", ctx.Err()
		}
	}
	return calls, finish, nil
}

func (p *Producer) executeCalls(ctx context.Context, userID uuid.UUID, calls []*toolCall) []*domain.ToolOutput {
	results := make([]*domain.ToolOutput, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			if p.tools == nil {
				results[i] = domain.ToolFailure("tool execution not configured")
				return nil
			}
			results[i] = p.tools.Execute(gctx, userID, call.name, call.input)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func appendToolExchange(msgs []goopenai.ChatCompletionMessage, calls []*toolCall, results []*domain.ToolOutput) []goopenai.ChatCompletionMessage {
	assistant := goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant}
	for _, call := range calls {
		assistant.ToolCalls = append(assistant.ToolCalls, goopenai.ToolCall{
			ID:   call.providerID,
			Type: goopenai.ToolTypeFunction,
			Function: goopenai.FunctionCall{
				Name:      string(call.name),
				Arguments: string(call.input),
			},
		})
	}
	msgs = append(msgs, assistant)
	for i, call := range calls {
		payload, err := json.Marshal(results[i])
		if err != nil {
			payload = []byte(`{"success":false,"error":"encode tool result"}`)
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{
			Role:       goopenai.ChatMessageRoleTool,
			ToolCallID: call.providerID,
			Content:    string(payload),
		})
	}
	return msgs
}

func (p *Producer) historyToPrompt(history []*domain.Message) ([]goopenai.ChatCompletionMessage, error) {
	msgs := []goopenai.ChatCompletionMessage{{
		Role:    goopenai.ChatMessageRoleSystem,
		Content: "You are a helpful assistant. Use the document tools when the user references an uploaded document.",
	}}
	for _, m := range history {
		blocks, err := m.ContentBlocks()
		if err != nil {
			return nil, err
		}
		var text strings.Builder
		for _, b := range blocks {
			switch b.Type {
			case domain.BlockText:
				if text.Len() > 0 {
					text.WriteString("\n\n")
				}
				text.WriteString(b.Text)
			case domain.BlockDocument:
				if text.Len() > 0 {
					text.WriteString("\n\n")
				}
				fmt.Fprintf(&text, "[attached document %q, id=%s]", b.Name, b.DocumentID)
			case domain.BlockToolCall:
				// Prior tool exchanges collapse into a textual trace; the
				// model only needs the outcome, not a replayable call.
				if text.Len() > 0 {
					text.WriteString("\n\n")
				}
				fmt.Fprintf(&text, "[used tool %s]", b.Name)
				if b.Output != nil && b.Output.Success {
					fmt.Fprintf(&text, " result: %s", string(b.Output.Data))
				}
			}
		}
		role := goopenai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: text.String()})
	}
	return msgs, nil
}

func mapFinishReason(fr goopenai.FinishReason) domain.FinishReason {
	switch fr {
	case goopenai.FinishReasonStop:
		return domain.FinishStop
	case goopenai.FinishReasonLength:
		return domain.FinishLength
	case goopenai.FinishReasonContentFilter:
		return domain.FinishContentFilter
	case goopenai.FinishReasonToolCalls, goopenai.FinishReasonFunctionCall:
		return domain.FinishToolCalls
	case goopenai.FinishReasonNull, "":
		return domain.FinishUnknown
	default:
		return domain.FinishOther
	}
}
