package services

import (
	"context"
	"fmt"
	"strings"

	"github/itish2003/agriqa/models"
)

// ConversationLog is the append-only message store behind chat sessions.
// Read returns messages in append order.
type ConversationLog interface {
	Append(ctx context.Context, sessionID string, msgs ...models.ChatMessage) error
	Read(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	Clear(ctx context.Context, sessionID string) error
}

// SessionManager maps users to conversation sessions.
type SessionManager struct {
	log ConversationLog
}

func NewSessionManager(log ConversationLog) *SessionManager {
	return &SessionManager{log: log}
}

// SessionIDFor derives the session of a user. One session per user.
func SessionIDFor(userID string) string {
	return "user_" + userID
}

func (m *SessionManager) History(ctx context.Context, userID string) ([]models.ChatMessage, error) {
	msgs, err := m.log.Read(ctx, SessionIDFor(userID))
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (m *SessionManager) Append(ctx context.Context, userID, role, content string) error {
	if role != models.RoleUser && role != models.RoleAssistant {
		return fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	sessionID := SessionIDFor(userID)
	return m.log.Append(ctx, sessionID, models.ChatMessage{SessionID: sessionID, Role: role, Content: content})
}

// AppendExchange stores a question and its answer as one atomic write, so
// concurrent exchanges of one user never interleave.
func (m *SessionManager) AppendExchange(ctx context.Context, userID, question, answer string) error {
	sessionID := SessionIDFor(userID)
	return m.log.Append(ctx, sessionID,
		models.ChatMessage{SessionID: sessionID, Role: models.RoleUser, Content: question},
		models.ChatMessage{SessionID: sessionID, Role: models.RoleAssistant, Content: answer},
	)
}

func (m *SessionManager) Clear(ctx context.Context, userID string) error {
	return m.log.Clear(ctx, SessionIDFor(userID))
}

func validSessionID(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session id is required", ErrValidation)
	}
	return nil
}
