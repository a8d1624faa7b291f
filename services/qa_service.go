package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"

	"github/itish2003/agriqa/logger"
	"github/itish2003/agriqa/models"

	"github.com/tmc/langchaingo/llms"
)

// Frame is one server-sent event of an answer stream: a text increment or a
// terminal error.
type Frame struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

func (f Frame) IsError() bool { return f.Error != "" }

// EncodeSSE writes f as a single "data: <json>\n\n" event. Non-ASCII text is
// written as is.
func EncodeSSE(w io.Writer, f Frame) error {
	if _, err := io.WriteString(w, "data: "); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	var payload interface{} = map[string]string{"text": f.Text}
	if f.IsError() {
		payload = map[string]string{"error": f.Error}
	}
	// Encode terminates the JSON with one newline; the second ends the event.
	if err := enc.Encode(payload); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// QAService answers questions in a per-user conversation.
type QAService interface {
	AnswerStream(ctx context.Context, question, userID string) iter.Seq[Frame]
	GetChatHistory(ctx context.Context, userID string) ([]models.HistoryItem, error)
	ClearContext(ctx context.Context, userID string) error
}

type qaServiceImpl struct {
	log       *logger.Logger
	sessions  *SessionManager
	model     ChatModel
	retrieval RetrievalService
	topK      int
	prompt    string
}

// NewQAService builds the chat orchestrator. retrieval may be nil, and
// topK <= 0 disables retrieval.
func NewQAService(log *logger.Logger, sessions *SessionManager, model ChatModel, retrieval RetrievalService, topK int) QAService {
	return &qaServiceImpl{
		log:       log.With("service", "QAService"),
		sessions:  sessions,
		model:     model,
		retrieval: retrieval,
		topK:      topK,
		prompt:    GetSystemPrompt(),
	}
}

// AnswerStream yields the answer as it is generated. History is only written
// after the model finishes; an error yields one error frame and writes
// nothing, and so does a consumer that stops early.
func (q *qaServiceImpl) AnswerStream(ctx context.Context, question, userID string) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		question = strings.TrimSpace(question)
		if question == "" {
			yield(Frame{Error: fmt.Errorf("%w: question is required", ErrValidation).Error()})
			return
		}

		messages, err := q.buildPrompt(ctx, question, userID)
		if err != nil {
			q.log.Error("failed to prepare prompt", "user_id", userID, "error", err)
			yield(Frame{Error: err.Error()})
			return
		}

		var answer strings.Builder
		for chunk, err := range q.model.Stream(ctx, messages) {
			if err != nil {
				q.log.Error("answer stream failed", "user_id", userID, "error", err)
				yield(Frame{Error: err.Error()})
				return
			}
			answer.WriteString(chunk)
			if !yield(Frame{Text: chunk}) {
				q.log.Info("client went away, discarding partial answer", "user_id", userID)
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		if strings.TrimSpace(answer.String()) == "" {
			q.log.Warn("model returned an empty answer", "user_id", userID)
			yield(Frame{Error: fmt.Errorf("%w: empty answer", ErrModelUnavailable).Error()})
			return
		}

		if err := q.sessions.AppendExchange(context.WithoutCancel(ctx), userID, question, answer.String()); err != nil {
			q.log.Error("failed to save exchange", "user_id", userID, "error", err)
			yield(Frame{Error: err.Error()})
			return
		}
		q.log.Debug("exchange saved", "user_id", userID, "answer_len", answer.Len())
	}
}

// buildPrompt is system instruction (plus references), full history, then
// the new question.
func (q *qaServiceImpl) buildPrompt(ctx context.Context, question, userID string) ([]llms.MessageContent, error) {
	history, err := q.sessions.History(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	system := q.prompt
	if q.retrieval != nil && q.topK > 0 {
		refs, err := q.retrieval.Search(ctx, question, q.topK)
		if err != nil {
			return nil, fmt.Errorf("retrieve references: %w", err)
		}
		system = withReferences(system, refs)
	}

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, system))
	for _, m := range history {
		role := llms.ChatMessageTypeHuman
		if m.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, m.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, question))
	return messages, nil
}

func (q *qaServiceImpl) GetChatHistory(ctx context.Context, userID string) ([]models.HistoryItem, error) {
	msgs, err := q.sessions.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]models.HistoryItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, models.HistoryItem{Type: m.Role, Content: m.Content})
	}
	return items, nil
}

func (q *qaServiceImpl) ClearContext(ctx context.Context, userID string) error {
	if err := q.sessions.Clear(ctx, userID); err != nil {
		return err
	}
	q.log.Info("conversation cleared", "user_id", userID)
	return nil
}
