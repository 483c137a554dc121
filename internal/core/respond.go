package core

import (
	"context"
	"fmt"
	"log/slog"

	"healthbot/internal/llm"
	"healthbot/pkg"
)

// Responder produces the reply text for a recorded inbound message. An
// empty reply means "no reply"; the pipeline then records nothing
// outbound.
type Responder interface {
	Respond(ctx context.Context, msg *pkg.Message, user *pkg.User) (string, error)
}

// StaticResponder answers with canned text: a greeting when the message
// carries no body, an acknowledgment otherwise. It is the default when no
// LLM is configured.
type StaticResponder struct{}

func (StaticResponder) Respond(_ context.Context, msg *pkg.Message, _ *pkg.User) (string, error) {
	if msg.Body == "" {
		return GreetingMessage, nil
	}
	return fmt.Sprintf(AckTemplate, msg.Body), nil
}

// AIResponder generates replies through the LLM client. If a fallback
// message is configured, LLM failures degrade to it instead of reaching
// the pipeline as responder failures.
type AIResponder struct {
	LLM      llm.Client
	Fallback string
	Logger   *slog.Logger
}

// NewAIResponder constructs an AI-backed responder.
func NewAIResponder(client llm.Client, fallback string, logger *slog.Logger) *AIResponder {
	return &AIResponder{LLM: client, Fallback: fallback, Logger: logger}
}

func (r *AIResponder) Respond(ctx context.Context, msg *pkg.Message, user *pkg.User) (string, error) {
	if msg.Body == "" {
		return GreetingMessage, nil
	}
	messages := []llm.Message{
		{Role: "system", Content: SystemPrompt},
		{Role: "user", Content: msg.Body},
	}
	reply, err := r.LLM.Chat(ctx, messages)
	if err != nil {
		if r.Fallback != "" {
			r.Logger.Warn("llm call failed, using fallback reply", "user_id", user.ID, "error", err)
			return r.Fallback, nil
		}
		return "", err
	}
	return reply, nil
}
