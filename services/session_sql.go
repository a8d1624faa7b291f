package services

import (
	"context"
	"fmt"

	"github/itish2003/agriqa/models"

	"gorm.io/gorm"
)

// sqlConversationLog keeps messages in the chat_messages table of the
// application database. Autoincrement ids give the order.
type sqlConversationLog struct {
	db *gorm.DB
}

func NewSQLConversationLog(db *gorm.DB) ConversationLog {
	return &sqlConversationLog{db: db}
}

func (s *sqlConversationLog) Append(ctx context.Context, sessionID string, msgs ...models.ChatMessage) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]models.ChatMessage, len(msgs))
	for i, m := range msgs {
		m.ID = 0
		m.SessionID = sessionID
		rows[i] = m
	}
	// A single multi-row insert inside a transaction keeps a pair contiguous.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return fmt.Errorf("%w: append to session %s: %w", ErrStorage, sessionID, err)
	}
	return nil
}

func (s *sqlConversationLog) Read(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	if err := validSessionID(sessionID); err != nil {
		return nil, err
	}
	msgs := make([]models.ChatMessage, 0)
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("%w: read session %s: %w", ErrStorage, sessionID, err)
	}
	return msgs, nil
}

func (s *sqlConversationLog) Clear(ctx context.Context, sessionID string) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&models.ChatMessage{}).Error; err != nil {
		return fmt.Errorf("%w: clear session %s: %w", ErrStorage, sessionID, err)
	}
	return nil
}
