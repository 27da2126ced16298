package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/driftchat-backend/internal/apierr"
	"github.com/yungbote/driftchat-backend/internal/pkg/dbctx"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/services"
)

type DocumentHandler struct {
	documents services.DocumentService
	log       *logger.Logger
}

func NewDocumentHandler(documents services.DocumentService, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{documents: documents, log: log.With("handler", "DocumentHandler")}
}

type uploadDocumentRequest struct {
	Name    string `json:"name" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	var req uploadDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.BadRequest("invalid request body: %v", err))
		return
	}
	doc, err := h.documents.Upload(dbctx.Context{Ctx: c.Request.Context()}, req.Name, req.Content)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, gin.H{"document": doc})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, err := pathUUID(c, "documentID")
	if err != nil {
		RespondError(c, err)
		return
	}
	doc, err := h.documents.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"document": doc})
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.documents.List(dbctx.Context{Ctx: c.Request.Context()}, 100)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"documents": docs})
}
