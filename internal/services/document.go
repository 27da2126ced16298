package services

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/driftchat-backend/internal/apierr"
	types "github.com/yungbote/driftchat-backend/internal/domain"
	"github.com/yungbote/driftchat-backend/internal/pkg/dbctx"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
	"github.com/yungbote/driftchat-backend/internal/repos"
	"github.com/yungbote/driftchat-backend/internal/requestdata"
)

const maxDocumentBytes = 1 << 20 // 1 MiB of markdown is plenty

type DocumentService interface {
	Upload(dbc dbctx.Context, name, content string) (*types.Document, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Document, error)
	List(dbc dbctx.Context, limit int) ([]*types.Document, error)
}

type documentService struct {
	db   *gorm.DB
	log  *logger.Logger
	docs repos.DocumentRepo
}

func NewDocumentService(db *gorm.DB, log *logger.Logger, docs repos.DocumentRepo) DocumentService {
	return &documentService{
		db:   db,
		log:  log.With("service", "DocumentService"),
		docs: docs,
	}
}

func (s *documentService) Upload(dbc dbctx.Context, name, content string) (*types.Document, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Unauthorized("not authenticated")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierr.BadRequest("document name is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, apierr.BadRequest("document content is required")
	}
	if len(content) > maxDocumentBytes {
		return nil, apierr.BadRequest("document exceeds %d bytes", maxDocumentBytes)
	}

	doc, err := s.docs.Create(dbc, &types.Document{
		ID:        uuid.New(),
		UserID:    rd.UserID,
		Name:      name,
		Content:   content,
		WordCount: len(strings.Fields(content)),
	})
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return doc, nil
}

func (s *documentService) Get(dbc dbctx.Context, id uuid.UUID) (*types.Document, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Unauthorized("not authenticated")
	}
	doc, err := s.docs.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("lookup document: %w", err)
	}
	if doc == nil || doc.UserID != rd.UserID {
		return nil, apierr.NotFound("document not found")
	}
	return doc, nil
}

func (s *documentService) List(dbc dbctx.Context, limit int) ([]*types.Document, error) {
	rd := requestdata.GetRequestData(dbc.Ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Unauthorized("not authenticated")
	}
	return s.docs.ListByUser(dbc, rd.UserID, limit)
}
