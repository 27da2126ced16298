package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Message is one node of a chat's conversation forest. ParentMessageID
// nil means conversation root; edits and regenerations append sibling
// subtrees instead of mutating existing rows. Rows are immutable after
// insert except for Feedback.
type Message struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID uuid.UUID `gorm:"type:uuid;not null;index" json:"chat_id"`

	ParentMessageID *uuid.UUID `gorm:"type:uuid;column:parent_message_id;index" json:"parent_message_id,omitempty"`

	Role    Role           `gorm:"column:role;not null;index" json:"role"`
	Content datatypes.JSON `gorm:"type:jsonb;column:content;not null;default:'[]'" json:"content"`

	// Assistant-only.
	FinishReason *FinishReason `gorm:"column:finish_reason" json:"finish_reason,omitempty"`
	Feedback     *Feedback     `gorm:"column:feedback" json:"feedback,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (Message) TableName() string { return "message" }

func (m *Message) ContentBlocks() ([]ContentBlock, error) {
	if len(m.Content) == 0 {
		return []ContentBlock{}, nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return nil, fmt.Errorf("decode message content: %w", err)
	}
	return blocks, nil
}

func (m *Message) SetContentBlocks(blocks []ContentBlock) error {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	raw, err := json.Marshal(blocks)
	if err != nil {
		return fmt.Errorf("encode message content: %w", err)
	}
	m.Content = datatypes.JSON(raw)
	return nil
}
