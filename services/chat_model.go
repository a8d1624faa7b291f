package services

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/genai"
)

// ChatModel streams a completion as text increments. The sequence is lazy,
// finite and can be ranged over once. An error is yielded at most once and
// ends the sequence. Breaking out of the loop cancels the request.
type ChatModel interface {
	Stream(ctx context.Context, messages []llms.MessageContent) iter.Seq2[string, error]
}

// langchainChatModel streams from any langchaingo model, bridging its
// callback API through an unbuffered channel.
type langchainChatModel struct {
	llm  llms.Model
	opts []llms.CallOption
}

// NewOpenAIChatModel talks to an OpenAI-compatible chat completions endpoint.
func NewOpenAIChatModel(baseURL, apiKey, model string, temperature float64) (ChatModel, error) {
	llm, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(apiKey),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: create openai chat client: %w", ErrModelUnavailable, err)
	}
	return NewLangchainChatModel(llm, llms.WithTemperature(temperature)), nil
}

func NewLangchainChatModel(llm llms.Model, opts ...llms.CallOption) ChatModel {
	return &langchainChatModel{llm: llm, opts: opts}
}

func (m *langchainChatModel) Stream(ctx context.Context, messages []llms.MessageContent) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		chunks := make(chan string)
		done := make(chan error, 1)
		var resp *llms.ContentResponse
		go func() {
			opts := append([]llms.CallOption{}, m.opts...)
			opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				select {
				case chunks <- string(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}))
			r, err := m.llm.GenerateContent(ctx, messages, opts...)
			resp = r
			close(chunks)
			done <- err
		}()

		streamed := false
		for chunk := range chunks {
			if chunk == "" {
				continue
			}
			streamed = true
			if !yield(chunk, nil) {
				return
			}
		}
		if err := <-done; err != nil {
			yield("", fmt.Errorf("%w: %w", ErrModelUnavailable, err))
			return
		}
		// Some servers ignore stream=true and answer in one piece.
		if !streamed && resp != nil && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
			yield(resp.Choices[0].Content, nil)
		}
	}
}

// geminiChatModel streams from the Gemini API.
type geminiChatModel struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiChatModel(client *genai.Client, model string, temperature float64) ChatModel {
	return &geminiChatModel{client: client, model: model, temperature: float32(temperature)}
}

func (g *geminiChatModel) Stream(ctx context.Context, messages []llms.MessageContent) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		config := &genai.GenerateContentConfig{Temperature: genai.Ptr(g.temperature)}
		var contents []*genai.Content
		for _, msg := range messages {
			text := messageText(msg)
			switch msg.Role {
			case llms.ChatMessageTypeSystem:
				config.SystemInstruction = genai.NewContentFromText(text, genai.RoleUser)
			case llms.ChatMessageTypeAI:
				contents = append(contents, genai.NewContentFromText(text, genai.RoleModel))
			default:
				contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
			}
		}

		for resp, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if err != nil {
				yield("", fmt.Errorf("%w: gemini stream: %w", ErrModelUnavailable, err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if !yield(text, nil) {
				return
			}
		}
	}
}

func messageText(msg llms.MessageContent) string {
	var sb strings.Builder
	for _, part := range msg.Parts {
		if t, ok := part.(llms.TextContent); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}
