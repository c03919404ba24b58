package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"eduplanner/internal/inference"
)

// listIntent is the phrase that turns a chat message into an event listing.
const listIntent = "get events"

// Lister renders the scheduled events.
type Lister interface {
	List() string
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Router answers chat messages: list requests go to the event store, everything
// else to the text generator. Conversation history is not forwarded.
type Router struct {
	events    Lister
	generator Generator
	logger    *slog.Logger
}

func NewRouter(logger *slog.Logger, events Lister, generator Generator) *Router {
	return &Router{events: events, generator: generator, logger: logger}
}

// Reply returns the text to show for message. Failures are rendered into the reply.
func (r *Router) Reply(ctx context.Context, message string) string {
	input := strings.ToLower(message)

	if strings.Contains(input, listIntent) {
		r.logger.Debug("Routing chat message to event listing")
		return r.events.List()
	}

	text, err := r.generator.Generate(ctx, input)
	if err != nil {
		r.logger.Error("Text generation failed", "error", err)
		var se *inference.StatusError
		if errors.As(err, &se) {
			return "Error: " + se.Body
		}
		return "Connection error: " + err.Error()
	}
	return text
}
