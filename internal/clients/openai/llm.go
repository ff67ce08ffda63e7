package openai

import (
	"context"
	"fmt"

	"voice-agent-server/internal/observability"

	"github.com/openai/openai-go"
	openaiOption "github.com/openai/openai-go/option"
)

const defaultModel = openai.ChatModelGPT4o

// Message is one role-tagged turn of a conversation context.
type Message struct {
	Role    string // "system", "user" or "assistant"
	Content string
}

// StreamResponse is one chunk of a streamed completion.
type StreamResponse struct {
	Content   string
	Error     error
	Completed bool
}

// LLMClient streams chat completions for voice agent turns.
type LLMClient struct {
	apiKey string
	model  openai.ChatModel
	logger *observability.Logger
}

func NewLLMClient(apiKey string, logger *observability.Logger) (*LLMClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	return &LLMClient{apiKey: apiKey, model: defaultModel, logger: logger}, nil
}

// StreamChat sends the conversation context and streams the assistant
// reply as incremental content chunks. The channel is closed when the
// reply completes or the context is cancelled.
func (c *LLMClient) StreamChat(ctx context.Context, messages []Message) <-chan StreamResponse {
	responses := make(chan StreamResponse)

	go func() {
		defer close(responses)

		client := openai.NewClient(openaiOption.WithAPIKey(c.apiKey))

		params := openai.ChatCompletionNewParams{
			Model:    c.model,
			Messages: toMessageParams(messages),
		}

		c.logger.Debug(ctx, "Starting LLM completion stream")
		stream := client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case responses <- StreamResponse{Content: delta}:
			case <-ctx.Done():
				return
			}
		}

		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				// Interrupted turn, not an error.
				c.logger.Debug(ctx, "LLM stream cancelled")
				return
			}
			c.logger.Error(ctx, "LLM stream failed", err)
			select {
			case responses <- StreamResponse{Error: fmt.Errorf("llm stream: %w", err)}:
			case <-ctx.Done():
			}
			return
		}

		select {
		case responses <- StreamResponse{Completed: true}:
		case <-ctx.Done():
		}
	}()

	return responses
}

func toMessageParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			params = append(params, openai.SystemMessage(m.Content))
		case "assistant":
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}
	return params
}
