package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/driftchat-backend/internal/apierr"
	"github.com/yungbote/driftchat-backend/internal/chat"
	"github.com/yungbote/driftchat-backend/internal/domain"
	"github.com/yungbote/driftchat-backend/internal/pkg/dbctx"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/services"
	"github.com/yungbote/driftchat-backend/internal/sse"
)

type ChatHandler struct {
	chat services.ChatService
	log  *logger.Logger
}

func NewChatHandler(chat services.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, log: log.With("handler", "ChatHandler")}
}

// StartChat opens a new chat and streams the first assistant turn as
// server-sent events. The chat id travels in the start event's headers
// equivalent: the X-Chat-Id response header, set before streaming.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req services.StartChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.BadRequest("invalid request body: %v", err))
		return
	}
	stream, err := h.chat.StartChat(c.Request.Context(), req)
	if err != nil {
		RespondError(c, err)
		return
	}
	c.Writer.Header().Set("X-Chat-Id", stream.ChatID.String())
	h.serve(c, stream)
}

func (h *ChatHandler) ContinueChat(c *gin.Context) {
	chatID, err := pathUUID(c, "chatID")
	if err != nil {
		RespondError(c, err)
		return
	}
	var req services.ContinueChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.BadRequest("invalid request body: %v", err))
		return
	}
	stream, err := h.chat.ContinueChat(c.Request.Context(), chatID, req)
	if err != nil {
		RespondError(c, err)
		return
	}
	h.serve(c, stream)
}

func (h *ChatHandler) serve(c *gin.Context, stream *services.TurnStream) {
	if err := sse.Stream(c, stream.Events); err != nil {
		if errors.Is(err, context.Canceled) {
			h.log.Debug("client disconnected mid-stream", "chat_id", stream.ChatID)
			return
		}
		h.log.Warn("stream write failed", "chat_id", stream.ChatID, "error", err)
	}
}

func (h *ChatHandler) StopTurn(c *gin.Context) {
	chatID, err := pathUUID(c, "chatID")
	if err != nil {
		RespondError(c, err)
		return
	}
	if err := h.chat.StopTurn(c.Request.Context(), chatID); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"stopped": true})
}

func (h *ChatHandler) ListChats(c *gin.Context) {
	chats, err := h.chat.ListChats(dbctx.Context{Ctx: c.Request.Context()}, 100)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"chats": chats})
}

// chatViewResponse flattens the tree view alongside the chat row; the
// view's own tags define the wire shape.
type chatViewResponse struct {
	Chat *domain.Chat `json:"chat"`
	*chat.TreeView
}

func (h *ChatHandler) GetChat(c *gin.Context) {
	chatID, err := pathUUID(c, "chatID")
	if err != nil {
		RespondError(c, err)
		return
	}
	chatRow, view, err := h.chat.GetChatView(dbctx.Context{Ctx: c.Request.Context()}, chatID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, chatViewResponse{Chat: chatRow, TreeView: view})
}

func (h *ChatHandler) DeleteChat(c *gin.Context) {
	chatID, err := pathUUID(c, "chatID")
	if err != nil {
		RespondError(c, err)
		return
	}
	if err := h.chat.DeleteChat(dbctx.Context{Ctx: c.Request.Context()}, chatID); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

type feedbackRequest struct {
	Feedback domain.Feedback `json:"feedback" binding:"required"`
}

func (h *ChatHandler) SetFeedback(c *gin.Context) {
	chatID, err := pathUUID(c, "chatID")
	if err != nil {
		RespondError(c, err)
		return
	}
	messageID, err := pathUUID(c, "messageID")
	if err != nil {
		RespondError(c, err)
		return
	}
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.BadRequest("invalid request body: %v", err))
		return
	}
	if err := h.chat.SetFeedback(dbctx.Context{Ctx: c.Request.Context()}, chatID, messageID, req.Feedback); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"updated": true})
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apierr.BadRequest("invalid %s", name)
	}
	return id, nil
}
