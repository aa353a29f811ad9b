package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	ai "github.com/sashabaranov/go-openai"
)

// Chat roles.
const (
	RoleSystem    = ai.ChatMessageRoleSystem
	RoleUser      = ai.ChatMessageRoleUser
	RoleAssistant = ai.ChatMessageRoleAssistant
)

// ChatMessage is one message sent to the chat model.
type ChatMessage struct {
	Role    string
	Content string
}

// Delta is one streamed fragment of the model output.
type Delta struct {
	Content   string
	Reasoning string
}

// ChatModel is a streaming chat completion backend.
type ChatModel interface {
	Name() string
	// Stream yields output fragments until the response ends.
	Stream(ctx context.Context, messages []ChatMessage) iter.Seq2[Delta, error]
	// Complete returns the whole response at once.
	Complete(ctx context.Context, messages []ChatMessage) (string, error)
}

// OpenAIModel talks to any OpenAI-compatible chat completions API.
type OpenAIModel struct {
	client *ai.Client
	model  string
}

var _ ChatModel = (*OpenAIModel)(nil)

// NewOpenAIModel creates a model client. An empty baseURL uses api.openai.com.
func NewOpenAIModel(apiKey, baseURL, model string) *OpenAIModel {
	cfg := ai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIModel{
		client: ai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (m *OpenAIModel) Name() string { return m.model }

func toOpenAI(messages []ChatMessage) []ai.ChatCompletionMessage {
	out := make([]ai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, ai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}

func (m *OpenAIModel) Stream(ctx context.Context, messages []ChatMessage) iter.Seq2[Delta, error] {
	return func(yield func(Delta, error) bool) {
		stream, err := m.client.CreateChatCompletionStream(ctx, ai.ChatCompletionRequest{
			Model:    m.model,
			Messages: toOpenAI(messages),
			Stream:   true,
		})
		if err != nil {
			yield(Delta{}, fmt.Errorf("failed to create chat completion stream: %w", err))
			return
		}
		defer stream.Close() //nolint:errcheck

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Delta{}, fmt.Errorf("error during streaming: %w", err))
				return
			}
			if len(response.Choices) == 0 {
				continue
			}

			delta := response.Choices[0].Delta
			if delta.Content == "" && delta.ReasoningContent == "" {
				continue
			}
			if !yield(Delta{Content: delta.Content, Reasoning: delta.ReasoningContent}, nil) {
				return
			}
		}
	}
}

func (m *OpenAIModel) Complete(ctx context.Context, messages []ChatMessage) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, ai.ChatCompletionRequest{
		Model:    m.model,
		Messages: toOpenAI(messages),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
