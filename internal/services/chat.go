package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/driftchat-backend/internal/apierr"
	"github.com/yungbote/driftchat-backend/internal/chat"
	openaiclient "github.com/yungbote/driftchat-backend/internal/clients/openai"
	"github.com/yungbote/driftchat-backend/internal/domain"
	"github.com/yungbote/driftchat-backend/internal/pkg/dbctx"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/repos"
	"github.com/yungbote/driftchat-backend/internal/requestdata"
)

const (
	turnEventBuffer = 32
	titleTimeout    = 30 * time.Second
)

// IncomingMessage is the client-supplied user message: the client owns
// the id so optimistic UIs can render before the round trip.
type IncomingMessage struct {
	ID      uuid.UUID             `json:"id"`
	Content []domain.ContentBlock `json:"content"`
}

type StartChatRequest struct {
	ProjectID *uuid.UUID      `json:"project_id,omitempty"`
	Message   IncomingMessage `json:"message"`
}

type ContinueChatRequest struct {
	ParentMessageID uuid.UUID       `json:"parent_message_id"`
	Message         IncomingMessage `json:"message"`
}

// TurnStream is one live assistant turn: transport events in wire order,
// closed after the terminal end/error event.
type TurnStream struct {
	ChatID uuid.UUID
	Events <-chan chat.StreamEvent
}

type ChatService interface {
	// StartChat creates the chat and its first user message in one
	// transaction, then streams the first assistant turn.
	StartChat(ctx context.Context, req StartChatRequest) (*TurnStream, error)
	// ContinueChat appends a user message under parentMessageId (branching
	// when the parent already has children) and streams the reply.
	ContinueChat(ctx context.Context, chatID uuid.UUID, req ContinueChatRequest) (*TurnStream, error)
	// StopTurn aborts the chat's in-flight turn; the partial assistant
	// message is still persisted.
	StopTurn(ctx context.Context, chatID uuid.UUID) error

	ListChats(dbc dbctx.Context, limit int) ([]*domain.Chat, error)
	GetChatView(dbc dbctx.Context, chatID uuid.UUID) (*domain.Chat, *chat.TreeView, error)
	DeleteChat(dbc dbctx.Context, chatID uuid.UUID) error
	SetFeedback(dbc dbctx.Context, chatID, messageID uuid.UUID, feedback domain.Feedback) error
}

type chatService struct {
	db        *gorm.DB
	log       *logger.Logger
	chats     repos.ChatRepo
	messages  repos.MessageRepo
	documents repos.DocumentRepo
	producer  Producer
	assembler *chat.Assembler
	stops     *StopRegistry
}

func NewChatService(
	db *gorm.DB,
	log *logger.Logger,
	chatRepo repos.ChatRepo,
	messageRepo repos.MessageRepo,
	documentRepo repos.DocumentRepo,
	producer Producer,
	stops *StopRegistry,
) ChatService {
	baseLog := log.With("service", "ChatService")
	return &chatService{
		db:        db,
		log:       baseLog,
		chats:     chatRepo,
		messages:  messageRepo,
		documents: documentRepo,
		producer:  producer,
		assembler: chat.NewAssembler(baseLog),
		stops:     stops,
	}
}

func (s *chatService) StartChat(ctx context.Context, req StartChatRequest) (*TurnStream, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Unauthorized("not authenticated")
	}
	if err := s.validateIncoming(ctx, rd.UserID, &req.Message); err != nil {
		return nil, err
	}
	if err := s.moderate(ctx, req.Message); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	chatRow := &domain.Chat{
		ID:        uuid.New(),
		UserID:    rd.UserID,
		ProjectID: req.ProjectID,
		Title:     "",
		CreatedAt: now,
		UpdatedAt: now,
	}
	userMsg := &domain.Message{
		ID:        req.Message.ID,
		ChatID:    chatRow.ID,
		Role:      domain.RoleUser,
		CreatedAt: now,
	}
	if err := userMsg.SetContentBlocks(req.Message.Content); err != nil {
		return nil, apierr.BadRequest("invalid message content: %v", err)
	}

	// Chat and first message land together or not at all: no empty chat
	// rows from a failed first turn.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.chats.Create(dbc, chatRow); err != nil {
			return fmt.Errorf("create chat: %w", err)
		}
		if _, err := s.messages.Create(dbc, userMsg); err != nil {
			return fmt.Errorf("create user message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.streamTurn(ctx, rd.UserID, chatRow, userMsg, []*domain.Message{userMsg}, true), nil
}

func (s *chatService) ContinueChat(ctx context.Context, chatID uuid.UUID, req ContinueChatRequest) (*TurnStream, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Unauthorized("not authenticated")
	}
	if req.ParentMessageID == uuid.Nil {
		return nil, apierr.BadRequest("parent_message_id is required")
	}
	if err := s.validateIncoming(ctx, rd.UserID, &req.Message); err != nil {
		return nil, err
	}

	dbc := dbctx.Context{Ctx: ctx}
	chatRow, err := s.ownedChat(dbc, rd.UserID, chatID)
	if err != nil {
		return nil, err
	}
	existing, err := s.messages.ListByChat(dbc, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat messages: %w", err)
	}
	history := ancestorChain(existing, req.ParentMessageID)
	if history == nil {
		return nil, apierr.NotFound("parent message not found in chat")
	}

	if err := s.moderate(ctx, req.Message); err != nil {
		return nil, err
	}

	parentID := req.ParentMessageID
	userMsg := &domain.Message{
		ID:              req.Message.ID,
		ChatID:          chatID,
		ParentMessageID: &parentID,
		Role:            domain.RoleUser,
		CreatedAt:       time.Now().UTC(),
	}
	if err := userMsg.SetContentBlocks(req.Message.Content); err != nil {
		return nil, apierr.BadRequest("invalid message content: %v", err)
	}
	if _, err := s.messages.Create(dbc, userMsg); err != nil {
		return nil, fmt.Errorf("create user message: %w", err)
	}

	history = append(history, userMsg)
	return s.streamTurn(ctx, rd.UserID, chatRow, userMsg, history, false), nil
}

// streamTurn runs the assistant turn on its own goroutine and hands the
// caller the outbound event channel. The streaming phase holds no
// database transaction; persistence brackets the stream.
func (s *chatService) streamTurn(
	reqCtx context.Context,
	userID uuid.UUID,
	chatRow *domain.Chat,
	userMsg *domain.Message,
	history []*domain.Message,
	firstTurn bool,
) *TurnStream {
	events := make(chan chat.StreamEvent, turnEventBuffer)
	assistantID := uuid.New()

	flag := chat.NewAbortFlag()
	releaseStop := s.stops.Register(chatRow.ID, flag)
	releaseWatch := flag.AbortOnDone(reqCtx)

	// The producer stops on streamCtx; persistence deliberately does not,
	// so an aborted turn still lands its partial message.
	streamCtx, cancelStream := context.WithCancel(context.Background())
	turnDone := make(chan struct{})
	go func() {
		select {
		case <-flag.Done():
			cancelStream()
		case <-turnDone:
		}
	}()

	go func() {
		defer close(events)
		defer close(turnDone)
		defer cancelStream()
		defer releaseWatch()
		defer releaseStop()

		send := func(ev chat.StreamEvent) {
			select {
			case events <- ev:
			case <-flag.Done():
				// Subscriber may be gone; keep the event if the buffer
				// still has room, drop otherwise.
				select {
				case events <- ev:
				default:
				}
			}
		}

		send(chat.StreamEvent{Event: chat.EventStart})

		parts, err := s.producer.StreamTurn(streamCtx, openaiclient.TurnRequest{
			MessageID: assistantID,
			UserID:    userID,
			History:   history,
		})
		if err != nil {
			s.log.Error("producer start failed", "chat_id", chatRow.ID, "error", err)
			send(chat.StreamEvent{Event: chat.EventError, Data: apierr.From(err)})
			return
		}

		assembled := s.assembler.Assemble(flag, parts, func(p chat.MessagePart) {
			send(chat.PartEvent(p))
		})

		assistantMsg := &domain.Message{
			ID:              assistantID,
			ChatID:          chatRow.ID,
			ParentMessageID: &userMsg.ID,
			Role:            domain.RoleAssistant,
			FinishReason:    &assembled.FinishReason,
			CreatedAt:       time.Now().UTC(),
		}
		if err := assistantMsg.SetContentBlocks(assembled.Blocks); err != nil {
			s.log.Error("encode assistant content failed", "chat_id", chatRow.ID, "error", err)
			send(chat.StreamEvent{Event: chat.EventError, Data: apierr.Internal(err)})
			return
		}
		// Background context: client disconnect must not lose the turn.
		if _, err := s.messages.Create(dbctx.Context{Ctx: context.Background()}, assistantMsg); err != nil {
			s.log.Error("persist assistant message failed", "chat_id", chatRow.ID, "error", err)
			send(chat.StreamEvent{Event: chat.EventError, Data: apierr.Internal(err)})
			return
		}

		if firstTurn && turnSucceeded(assembled.FinishReason) {
			go s.generateTitle(chatRow.ID, userMsg, assembled)
		}

		send(chat.StreamEvent{Event: chat.EventEnd})
	}()

	return &TurnStream{ChatID: chatRow.ID, Events: events}
}

func turnSucceeded(fr domain.FinishReason) bool {
	return fr != domain.FinishError
}

// generateTitle is the once-per-chat async title pass. Best-effort all
// the way down: any failure leaves the title empty.
func (s *chatService) generateTitle(chatID uuid.UUID, userMsg *domain.Message, assembled *chat.AssembledMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	userText := firstText(mustBlocks(userMsg))
	assistantText := firstText(assembled.Blocks)
	title, err := s.producer.GenerateTitle(ctx, userText, assistantText)
	if err != nil {
		s.log.Warn("title generation failed", "chat_id", chatID, "error", err)
		return
	}
	if err := s.chats.UpdateFields(dbctx.Context{Ctx: ctx}, chatID, map[string]interface{}{"title": title}); err != nil {
		s.log.Warn("title update failed", "chat_id", chatID, "error", err)
	}
}

func mustBlocks(m *domain.Message) []domain.ContentBlock {
	blocks, err := m.ContentBlocks()
	if err != nil {
		return nil
	}
	return blocks
}

func firstText(blocks []domain.ContentBlock) string {
	for _, b := range blocks {
		if b.Type == domain.BlockText {
			return b.Text
		}
	}
	return ""
}

func (s *chatService) StopTurn(ctx context.Context, chatID uuid.UUID) error {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return apierr.Unauthorized("not authenticated")
	}
	if _, err := s.ownedChat(dbctx.Context{Ctx: ctx}, rd.UserID, chatID); err != nil {
		return err
	}
	s.stops.Stop(ctx, chatID)
	return nil
}

func (s *chatService) ListChats(dbc dbctx.Context, limit int) ([]*domain.Chat, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Unauthorized("not authenticated")
	}
	return s.chats.ListByUser(dbc, rd.UserID, limit)
}

func (s *chatService) GetChatView(dbc dbctx.Context, chatID uuid.UUID) (*domain.Chat, *chat.TreeView, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, nil, apierr.Unauthorized("not authenticated")
	}
	chatRow, err := s.ownedChat(dbc, rd.UserID, chatID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByChat(dbc, chatID)
	if err != nil {
		return nil, nil, fmt.Errorf("load chat messages: %w", err)
	}
	return chatRow, chat.BuildView(msgs), nil
}

func (s *chatService) DeleteChat(dbc dbctx.Context, chatID uuid.UUID) error {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return apierr.Unauthorized("not authenticated")
	}
	if _, err := s.ownedChat(dbc, rd.UserID, chatID); err != nil {
		return err
	}
	return s.chats.Delete(dbc, chatID)
}

func (s *chatService) SetFeedback(dbc dbctx.Context, chatID, messageID uuid.UUID, feedback domain.Feedback) error {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return apierr.Unauthorized("not authenticated")
	}
	if !feedback.Valid() {
		return apierr.BadRequest("invalid feedback %q", feedback)
	}
	if _, err := s.ownedChat(dbc, rd.UserID, chatID); err != nil {
		return err
	}
	msg, err := s.messages.GetByID(dbc, messageID)
	if err != nil {
		return fmt.Errorf("lookup message: %w", err)
	}
	if msg == nil || msg.ChatID != chatID {
		return apierr.NotFound("message not found")
	}
	if msg.Role != domain.RoleAssistant {
		return apierr.BadRequest("feedback applies to assistant messages only")
	}
	return s.messages.UpdateFeedback(dbc, messageID, feedback)
}

func (s *chatService) ownedChat(dbc dbctx.Context, userID, chatID uuid.UUID) (*domain.Chat, error) {
	if chatID == uuid.Nil {
		return nil, apierr.BadRequest("missing chat id")
	}
	chatRow, err := s.chats.GetByID(dbc, chatID)
	if err != nil {
		return nil, fmt.Errorf("lookup chat: %w", err)
	}
	// Not-owned reads as not-found: don't leak other users' chat ids.
	if chatRow == nil || chatRow.UserID != userID {
		return nil, apierr.NotFound("chat not found")
	}
	return chatRow, nil
}

// validateIncoming rejects malformed user messages before anything is
// persisted or any stream opens.
func (s *chatService) validateIncoming(ctx context.Context, userID uuid.UUID, msg *IncomingMessage) error {
	if msg.ID == uuid.Nil {
		return apierr.BadRequest("message id is required")
	}
	if len(msg.Content) == 0 {
		return apierr.BadRequest("message content is required")
	}
	for i := range msg.Content {
		b := &msg.Content[i]
		if err := b.Validate(domain.RoleUser); err != nil {
			return apierr.BadRequest("%v", err)
		}
		if b.Type == domain.BlockDocument {
			doc, err := s.documents.GetByID(dbctx.Context{Ctx: ctx}, *b.DocumentID)
			if err != nil {
				return fmt.Errorf("lookup document: %w", err)
			}
			if doc == nil || doc.UserID != userID {
				return apierr.BadRequest("document %s not found", b.DocumentID)
			}
			b.Name = doc.Name
		}
	}
	return nil
}

func (s *chatService) moderate(ctx context.Context, msg IncomingMessage) error {
	var parts []string
	for _, b := range msg.Content {
		if b.Type == domain.BlockText {
			parts = append(parts, b.Text)
		}
	}
	flagged, err := s.producer.Moderate(ctx, strings.Join(parts, "\n"))
	if err != nil {
		// Moderation outages must not take chat down with them.
		s.log.Warn("moderation unavailable", "error", err)
		return nil
	}
	if flagged {
		return apierr.ContentPolicy("message rejected by content policy")
	}
	return nil
}

// ancestorChain walks parent pointers from target back to its root and
// returns the root-to-target path, or nil when target is absent.
func ancestorChain(msgs []*domain.Message, target uuid.UUID) []*domain.Message {
	byID := make(map[uuid.UUID]*domain.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}
	cur, ok := byID[target]
	if !ok {
		return nil
	}
	var chain []*domain.Message
	for cur != nil && len(chain) <= len(msgs) {
		chain = append(chain, cur)
		if cur.ParentMessageID == nil {
			break
		}
		cur = byID[*cur.ParentMessageID]
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
