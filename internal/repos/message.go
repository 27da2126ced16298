package repos

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/driftchat-backend/internal/domain"
	"github.com/yungbote/driftchat-backend/internal/pkg/dbctx"
	"github.com/yungbote/driftchat-backend/internal/pkg/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, msg *types.Message) (*types.Message, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Message, error)
	ListByChat(dbc dbctx.Context, chatID uuid.UUID) ([]*types.Message, error)
	ExistsInChat(dbc dbctx.Context, chatID, messageID uuid.UUID) (bool, error)
	UpdateFeedback(dbc dbctx.Context, id uuid.UUID, feedback types.Feedback) error
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, msg *types.Message) (*types.Message, error) {
	if msg == nil {
		return nil, fmt.Errorf("missing message")
	}
	if msg.ChatID == uuid.Nil {
		return nil, fmt.Errorf("missing chat_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	// Forest invariant: a non-nil parent must already exist in the same
	// chat, so the adjacency map can never contain a cycle.
	if msg.ParentMessageID != nil {
		ok, err := r.ExistsInChat(dbctx.Context{Ctx: dbc.Ctx, Tx: txx}, msg.ChatID, *msg.ParentMessageID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("parent message %s not found in chat %s", msg.ParentMessageID, msg.ChatID)
		}
	}
	if err := txx.WithContext(dbc.Ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *messageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Message, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.Message
	if err := txx.WithContext(dbc.Ctx).Where("id = ?", id).Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (r *messageRepo) ListByChat(dbc dbctx.Context, chatID uuid.UUID) ([]*types.Message, error) {
	if chatID == uuid.Nil {
		return nil, fmt.Errorf("missing chat_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out []*types.Message
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *messageRepo) ExistsInChat(dbc dbctx.Context, chatID, messageID uuid.UUID) (bool, error) {
	if chatID == uuid.Nil || messageID == uuid.Nil {
		return false, fmt.Errorf("missing id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var count int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("id = ? AND chat_id = ?", messageID, chatID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *messageRepo) UpdateFeedback(dbc dbctx.Context, id uuid.UUID, feedback types.Feedback) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing id")
	}
	if !feedback.Valid() {
		return fmt.Errorf("invalid feedback %q", feedback)
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.Message{}).
		Where("id = ?", id).
		Update("feedback", feedback).Error
}
