package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

// Message is a minimal chat message used by the responder.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

// Client defines the method the AI responder needs. Chat accepts the full
// message list (system prompt + user message).
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// OpenAIClient calls the OpenAI chat completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient constructs an OpenAI-backed LLM client with the given
// credentials and model, falling back to a small default model.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Chat sends the message list to the OpenAI chat completion API and
// returns the assistant's response.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}

	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			// coerce anything unknown to user
			role = openai.ChatMessageRoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    oaMsgs,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
