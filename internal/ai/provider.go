package ai

import (
	"context"
	"errors"
	"fmt"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Provider produces one assistant completion for the given context.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// ErrEmptyResponse is returned when the upstream answered 2xx without content.
var ErrEmptyResponse = errors.New("empty completion")

// StatusError carries a non-2xx upstream response.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}
