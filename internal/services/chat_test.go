package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/driftchat-backend/internal/apierr"
	"github.com/yungbote/driftchat-backend/internal/chat"
	openaiclient "github.com/yungbote/driftchat-backend/internal/clients/openai"
	types "github.com/yungbote/driftchat-backend/internal/domain"
	"github.com/yungbote/driftchat-backend/internal/pkg/dbctx"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/requestdata"
)

// ---- fakes ----

type fakeChatRepo struct {
	mu      sync.Mutex
	chats   map[uuid.UUID]*types.Chat
	updated chan struct{}
}

func newFakeChatRepo() *fakeChatRepo {
	return &fakeChatRepo{chats: map[uuid.UUID]*types.Chat{}, updated: make(chan struct{}, 4)}
}

func (r *fakeChatRepo) Create(dbc dbctx.Context, c *types.Chat) (*types.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.chats[c.ID] = &cp
	return c, nil
}

func (r *fakeChatRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *fakeChatRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Chat
	for _, c := range r.chats {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeChatRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[id]
	if !ok {
		return errors.New("chat not found")
	}
	if title, ok := updates["title"].(string); ok {
		c.Title = title
	}
	select {
	case r.updated <- struct{}{}:
	default:
	}
	return nil
}

func (r *fakeChatRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.chats, id)
	return nil
}

func (r *fakeChatRepo) title(id uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.chats[id]; ok {
		return c.Title
	}
	return ""
}

type fakeMessageRepo struct {
	mu   sync.Mutex
	msgs map[uuid.UUID]*types.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{msgs: map[uuid.UUID]*types.Message{}}
}

func (r *fakeMessageRepo) Create(dbc dbctx.Context, m *types.Message) (*types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ParentMessageID != nil {
		parent, ok := r.msgs[*m.ParentMessageID]
		if !ok || parent.ChatID != m.ChatID {
			return nil, errors.New("parent message not in chat")
		}
	}
	cp := *m
	r.msgs[m.ID] = &cp
	return m, nil
}

func (r *fakeMessageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) ListByChat(dbc dbctx.Context, chatID uuid.UUID) ([]*types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Message
	for _, m := range r.msgs {
		if m.ChatID == chatID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeMessageRepo) ExistsInChat(dbc dbctx.Context, chatID, messageID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[messageID]
	return ok && m.ChatID == chatID, nil
}

func (r *fakeMessageRepo) UpdateFeedback(dbc dbctx.Context, id uuid.UUID, feedback types.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.msgs[id]
	if !ok {
		return errors.New("message not found")
	}
	m.Feedback = &feedback
	return nil
}

type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*types.Document
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: map[uuid.UUID]*types.Document{}}
}

func (r *fakeDocumentRepo) Create(dbc dbctx.Context, d *types.Document) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.docs[d.ID] = &cp
	return d, nil
}

func (r *fakeDocumentRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDocumentRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Document, error) {
	return nil, nil
}

type fakeProducer struct {
	mu         sync.Mutex
	parts      chan chat.MessagePart
	reqs       chan openaiclient.TurnRequest
	title      string
	titleCalls int
	flagged    bool
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{
		parts: make(chan chat.MessagePart, 64),
		reqs:  make(chan openaiclient.TurnRequest, 8),
		title: "Generated Title",
	}
}

func (p *fakeProducer) StreamTurn(ctx context.Context, req openaiclient.TurnRequest) (<-chan chat.MessagePart, error) {
	p.reqs <- req
	return p.parts, nil
}

func (p *fakeProducer) GenerateTitle(ctx context.Context, userText, assistantText string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.titleCalls++
	return p.title, nil
}

func (p *fakeProducer) Moderate(ctx context.Context, text string) (bool, error) {
	return p.flagged, nil
}

func (p *fakeProducer) titleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.titleCalls
}

type fakeStopBus struct{}

func (fakeStopBus) Publish(ctx context.Context, chatID uuid.UUID) error { return nil }
func (fakeStopBus) StartForwarder(ctx context.Context, onStop func(chatID uuid.UUID)) error {
	return nil
}
func (fakeStopBus) Close() error { return nil }

// ---- harness ----

type chatFixture struct {
	svc      ChatService
	chats    *fakeChatRepo
	messages *fakeMessageRepo
	docs     *fakeDocumentRepo
	producer *fakeProducer
	userID   uuid.UUID
	ctx      context.Context
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	chats := newFakeChatRepo()
	messages := newFakeMessageRepo()
	docs := newFakeDocumentRepo()
	producer := newFakeProducer()
	stops := NewStopRegistry(log, fakeStopBus{})
	svc := NewChatService(db, log, chats, messages, docs, producer, stops)

	userID := uuid.New()
	ctx := requestdata.WithRequestData(context.Background(), &requestdata.RequestData{UserID: userID})
	return &chatFixture{
		svc:      svc,
		chats:    chats,
		messages: messages,
		docs:     docs,
		producer: producer,
		userID:   userID,
		ctx:      ctx,
	}
}

func (fx *chatFixture) awaitRequest(t *testing.T) openaiclient.TurnRequest {
	t.Helper()
	select {
	case req := <-fx.producer.reqs:
		return req
	case <-time.After(5 * time.Second):
		t.Fatalf("producer was never called")
		return openaiclient.TurnRequest{}
	}
}

func textBlock(id, text string) types.ContentBlock {
	return types.ContentBlock{Type: types.BlockText, ID: id, Text: text}
}

func drain(t *testing.T, events <-chan chat.StreamEvent) []chat.StreamEvent {
	t.Helper()
	var out []chat.StreamEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("stream did not close; got %d events", len(out))
		}
	}
}

func feedSimpleTurn(p *fakeProducer, msgID uuid.UUID, deltas ...string) {
	p.parts <- chat.MessagePart{Type: chat.PartMessageStart, MessageID: msgID}
	p.parts <- chat.MessagePart{Type: chat.PartTextStart, MessageID: msgID, ID: "t1"}
	for _, d := range deltas {
		p.parts <- chat.MessagePart{Type: chat.PartTextDelta, MessageID: msgID, ID: "t1", Delta: d}
	}
	p.parts <- chat.MessagePart{Type: chat.PartTextEnd, MessageID: msgID, ID: "t1"}
	p.parts <- chat.MessagePart{Type: chat.PartMessageEnd, MessageID: msgID, FinishReason: types.FinishStop}
}

func assistantOf(t *testing.T, fx *chatFixture, chatID uuid.UUID) *types.Message {
	t.Helper()
	msgs, _ := fx.messages.ListByChat(dbctx.Context{Ctx: fx.ctx}, chatID)
	for _, m := range msgs {
		if m.Role == types.RoleAssistant {
			return m
		}
	}
	t.Fatalf("no assistant message persisted in chat %s", chatID)
	return nil
}

// ---- tests ----

func TestStartChatStreamsAndPersists(t *testing.T) {
	fx := newChatFixture(t)

	stream, err := fx.svc.StartChat(fx.ctx, StartChatRequest{
		Message: IncomingMessage{ID: uuid.New(), Content: []types.ContentBlock{textBlock("u1", "hi there")}},
	})
	if err != nil {
		t.Fatalf("StartChat: err=%v", err)
	}

	msgID := fx.awaitRequest(t).MessageID
	feedSimpleTurn(fx.producer, msgID, "Hello", " world")
	events := drain(t, stream.Events)

	if events[0].Event != chat.EventStart {
		t.Fatalf("first event: want=%s got=%s", chat.EventStart, events[0].Event)
	}
	if events[len(events)-1].Event != chat.EventEnd {
		t.Fatalf("last event: want=%s got=%s", chat.EventEnd, events[len(events)-1].Event)
	}
	var kinds []string
	for _, ev := range events[1 : len(events)-1] {
		kinds = append(kinds, ev.Event)
	}
	want := []string{"message-start", "text-start", "text-delta", "text-delta", "text-end", "message-end"}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds: want=%v got=%v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event %d: want=%s got=%s", i, want[i], kinds[i])
		}
	}

	asst := assistantOf(t, fx, stream.ChatID)
	if asst.FinishReason == nil || *asst.FinishReason != types.FinishStop {
		t.Fatalf("finish reason: want=%s got=%v", types.FinishStop, asst.FinishReason)
	}
	blocks, err := asst.ContentBlocks()
	if err != nil {
		t.Fatalf("decode content: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Text != "Hello world" {
		t.Fatalf("content: want one text block %q got %+v", "Hello world", blocks)
	}
}

func TestStartChatGeneratesTitleOnce(t *testing.T) {
	fx := newChatFixture(t)

	stream, err := fx.svc.StartChat(fx.ctx, StartChatRequest{
		Message: IncomingMessage{ID: uuid.New(), Content: []types.ContentBlock{textBlock("u1", "name a planet")}},
	})
	if err != nil {
		t.Fatalf("StartChat: err=%v", err)
	}
	feedSimpleTurn(fx.producer, fx.awaitRequest(t).MessageID, "Mars")
	drain(t, stream.Events)

	select {
	case <-fx.chats.updated:
	case <-time.After(5 * time.Second):
		t.Fatalf("title was never persisted")
	}
	if got := fx.chats.title(stream.ChatID); got != "Generated Title" {
		t.Fatalf("title: want=%q got=%q", "Generated Title", got)
	}

	// A follow-up turn must not regenerate it.
	asst := assistantOf(t, fx, stream.ChatID)
	stream2, err := fx.svc.ContinueChat(fx.ctx, stream.ChatID, ContinueChatRequest{
		ParentMessageID: asst.ID,
		Message:         IncomingMessage{ID: uuid.New(), Content: []types.ContentBlock{textBlock("u2", "another")}},
	})
	if err != nil {
		t.Fatalf("ContinueChat: err=%v", err)
	}
	feedSimpleTurn(fx.producer, fx.awaitRequest(t).MessageID, "Venus")
	drain(t, stream2.Events)

	if got := fx.producer.titleCount(); got != 1 {
		t.Fatalf("title calls: want=1 got=%d", got)
	}
}

func TestContinueChatBuildsAncestorHistory(t *testing.T) {
	fx := newChatFixture(t)

	stream, err := fx.svc.StartChat(fx.ctx, StartChatRequest{
		Message: IncomingMessage{ID: uuid.New(), Content: []types.ContentBlock{textBlock("u1", "first")}},
	})
	if err != nil {
		t.Fatalf("StartChat: err=%v", err)
	}
	feedSimpleTurn(fx.producer, fx.awaitRequest(t).MessageID, "reply one")
	drain(t, stream.Events)
	asst := assistantOf(t, fx, stream.ChatID)

	userMsgID := uuid.New()
	stream2, err := fx.svc.ContinueChat(fx.ctx, stream.ChatID, ContinueChatRequest{
		ParentMessageID: asst.ID,
		Message:         IncomingMessage{ID: userMsgID, Content: []types.ContentBlock{textBlock("u2", "second")}},
	})
	if err != nil {
		t.Fatalf("ContinueChat: err=%v", err)
	}

	req := fx.awaitRequest(t)
	if len(req.History) != 3 {
		t.Fatalf("history length: want=3 got=%d", len(req.History))
	}
	if req.History[1].ID != asst.ID {
		t.Fatalf("history[1]: want=%s got=%s", asst.ID, req.History[1].ID)
	}
	if req.History[2].ID != userMsgID {
		t.Fatalf("history[2]: want=%s got=%s", userMsgID, req.History[2].ID)
	}

	feedSimpleTurn(fx.producer, req.MessageID, "reply two")
	drain(t, stream2.Events)
}

func TestContinueChatUnknownParent(t *testing.T) {
	fx := newChatFixture(t)

	stream, err := fx.svc.StartChat(fx.ctx, StartChatRequest{
		Message: IncomingMessage{ID: uuid.New(), Content: []types.ContentBlock{textBlock("u1", "first")}},
	})
	if err != nil {
		t.Fatalf("StartChat: err=%v", err)
	}
	feedSimpleTurn(fx.producer, fx.awaitRequest(t).MessageID, "ok")
	drain(t, stream.Events)

	_, err = fx.svc.ContinueChat(fx.ctx, stream.ChatID, ContinueChatRequest{
		ParentMessageID: uuid.New(),
		Message:         IncomingMessage{ID: uuid.New(), Content: []types.ContentBlock{textBlock("u2", "x")}},
	})
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Code != apierr.CodeNotFound {
		t.Fatalf("unknown parent: want not_found got %v", err)
	}
}

func TestStartChatModerationRejects(t *testing.T) {
	fx := newChatFixture(t)
	fx.producer.flagged = true

	_, err := fx.svc.StartChat(fx.ctx, StartChatRequest{
		Message: IncomingMessage{ID: uuid.New(), Content: []types.ContentBlock{textBlock("u1", "bad stuff")}},
	})
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Code != apierr.CodeContentPolicy {
		t.Fatalf("flagged message: want content_policy_violation got %v", err)
	}
	if n := len(fx.chats.chats); n != 0 {
		t.Fatalf("chat rows after rejection: want=0 got=%d", n)
	}
}

func TestStopTurnPersistsPartialMessage(t *testing.T) {
	fx := newChatFixture(t)

	stream, err := fx.svc.StartChat(fx.ctx, StartChatRequest{
		Message: IncomingMessage{ID: uuid.New(), Content: []types.ContentBlock{textBlock("u1", "long story please")}},
	})
	if err != nil {
		t.Fatalf("StartChat: err=%v", err)
	}
	msgID := fx.awaitRequest(t).MessageID
	fx.producer.parts <- chat.MessagePart{Type: chat.PartMessageStart, MessageID: msgID}
	fx.producer.parts <- chat.MessagePart{Type: chat.PartTextStart, MessageID: msgID, ID: "t1"}
	fx.producer.parts <- chat.MessagePart{Type: chat.PartTextDelta, MessageID: msgID, ID: "t1", Delta: "Once upon"}

	// Wait until the delta is through the reducer before stopping.
	seen := 0
	var events []chat.StreamEvent
	for seen < 4 {
		ev := <-stream.Events
		events = append(events, ev)
		seen++
	}
	if err := fx.svc.StopTurn(fx.ctx, stream.ChatID); err != nil {
		t.Fatalf("StopTurn: err=%v", err)
	}
	events = append(events, drain(t, stream.Events)...)

	var terminal *chat.MessagePart
	for i := range events {
		if events[i].Event == string(chat.PartMessageEnd) {
			p := events[i].Data.(chat.MessagePart)
			terminal = &p
		}
	}
	if terminal == nil {
		t.Fatalf("no message-end after stop; events=%v", events)
	}
	if terminal.FinishReason != types.FinishInterrupted {
		t.Fatalf("finish reason: want=%s got=%s", types.FinishInterrupted, terminal.FinishReason)
	}

	asst := assistantOf(t, fx, stream.ChatID)
	if asst.FinishReason == nil || *asst.FinishReason != types.FinishInterrupted {
		t.Fatalf("persisted finish: want=%s got=%v", types.FinishInterrupted, asst.FinishReason)
	}
	blocks, err := asst.ContentBlocks()
	if err != nil {
		t.Fatalf("decode content: %v", err)
	}
	if len(blocks) != 1 || blocks[0].Text != "Once upon" {
		t.Fatalf("partial content: want %q got %+v", "Once upon", blocks)
	}
}

func TestGetChatViewHidesOtherUsers(t *testing.T) {
	fx := newChatFixture(t)

	stream, err := fx.svc.StartChat(fx.ctx, StartChatRequest{
		Message: IncomingMessage{ID: uuid.New(), Content: []types.ContentBlock{textBlock("u1", "mine")}},
	})
	if err != nil {
		t.Fatalf("StartChat: err=%v", err)
	}
	feedSimpleTurn(fx.producer, fx.awaitRequest(t).MessageID, "ok")
	drain(t, stream.Events)

	stranger := requestdata.WithRequestData(context.Background(), &requestdata.RequestData{UserID: uuid.New()})
	_, _, err = fx.svc.GetChatView(dbctx.Context{Ctx: stranger}, stream.ChatID)
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Code != apierr.CodeNotFound {
		t.Fatalf("foreign chat: want not_found got %v", err)
	}

	_, view, err := fx.svc.GetChatView(dbctx.Context{Ctx: fx.ctx}, stream.ChatID)
	if err != nil {
		t.Fatalf("GetChatView: err=%v", err)
	}
	if len(view.RootMessageIDs) != 1 {
		t.Fatalf("roots: want=1 got=%d", len(view.RootMessageIDs))
	}
	if len(view.LatestPath) != 2 {
		t.Fatalf("latest path: want=2 got=%d", len(view.LatestPath))
	}
}

func TestSetFeedbackAssistantOnly(t *testing.T) {
	fx := newChatFixture(t)

	userMsgID := uuid.New()
	stream, err := fx.svc.StartChat(fx.ctx, StartChatRequest{
		Message: IncomingMessage{ID: userMsgID, Content: []types.ContentBlock{textBlock("u1", "rate this")}},
	})
	if err != nil {
		t.Fatalf("StartChat: err=%v", err)
	}
	feedSimpleTurn(fx.producer, fx.awaitRequest(t).MessageID, "rated")
	drain(t, stream.Events)
	asst := assistantOf(t, fx, stream.ChatID)

	if err := fx.svc.SetFeedback(dbctx.Context{Ctx: fx.ctx}, stream.ChatID, asst.ID, types.FeedbackLike); err != nil {
		t.Fatalf("SetFeedback: err=%v", err)
	}
	stored, _ := fx.messages.GetByID(dbctx.Context{Ctx: fx.ctx}, asst.ID)
	if stored.Feedback == nil || *stored.Feedback != types.FeedbackLike {
		t.Fatalf("feedback: want=%s got=%v", types.FeedbackLike, stored.Feedback)
	}

	err = fx.svc.SetFeedback(dbctx.Context{Ctx: fx.ctx}, stream.ChatID, userMsgID, types.FeedbackLike)
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Code != apierr.CodeBadRequest {
		t.Fatalf("feedback on user message: want bad_request got %v", err)
	}
}
