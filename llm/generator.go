// Package llm is the structured-output generator collaborator. Implementations
// return raw text; parsing and validation belong to the contract package.
package llm

import (
	"context"
	"errors"
	"net"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// PromptSpec describes one generation: the schema it must satisfy and the
// instructions that shape it.
type PromptSpec struct {
	// Schema names the target shape. It labels metrics and logs.
	Schema string
	System string
	// Shape is an example JSON document appended to the system prompt.
	Shape       string
	User        string
	History     []Message
	Temperature float32
	MaxTokens   int
}

// Messages renders the spec into the ordered chat transcript sent to a model.
// Extra messages (repair diagnostics) go after the user turn.
func (p PromptSpec) Messages(extra ...Message) []Message {
	system := p.System
	if p.Shape != "" {
		system = strings.TrimSpace(system) +
			"\n\nRespond with a single JSON object and nothing else. It must match this shape:\n" + p.Shape
	}
	out := make([]Message, 0, len(p.History)+len(extra)+2)
	if system != "" {
		out = append(out, Message{Role: RoleSystem, Content: system})
	}
	out = append(out, p.History...)
	if p.User != "" {
		out = append(out, Message{Role: RoleUser, Content: p.User})
	}
	return append(out, extra...)
}

type Generator interface {
	Invoke(ctx context.Context, spec PromptSpec, extra ...Message) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, spec PromptSpec, extra ...Message) (string, error)

func (f GeneratorFunc) Invoke(ctx context.Context, spec PromptSpec, extra ...Message) (string, error) {
	return f(ctx, spec, extra...)
}

// TransientError marks a failure worth retrying (timeouts, throttling,
// upstream 5xx).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err should be retried. Caller cancellation is
// never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
