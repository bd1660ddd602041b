package ai

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// Provider is a text-completion backend. The system instruction travels in the
// options; messages are the prior turns followed by the new user turn.
type Provider interface {
	Chat(ctx context.Context, messages []Message, opts ...Option) (Completion, error)
}

type Settings struct {
	System      string
	Temperature float64
	MaxTokens   int
}

type Option func(*Settings)

func WithSystem(prompt string) Option {
	return func(s *Settings) { s.System = prompt }
}

func WithTemperature(temp float64) Option {
	return func(s *Settings) { s.Temperature = temp }
}

func WithMaxTokens(tokens int) Option {
	return func(s *Settings) { s.MaxTokens = tokens }
}

func Apply(opts ...Option) Settings {
	s := Settings{Temperature: 0.7, MaxTokens: 1024}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
