package ai

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

type OllamaProvider struct {
	Model  string
	client *api.Client
}

func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &OllamaProvider{
		Model:  model,
		client: api.NewClient(u, &http.Client{Timeout: 90 * time.Second}),
	}, nil
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, opts ...Option) (Completion, error) {
	if p.client == nil {
		return Completion{}, errors.New("ollama: client is nil")
	}
	settings := Apply(opts...)

	msgs := make([]api.Message, 0, len(messages)+1)
	if settings.System != "" {
		msgs = append(msgs, api.Message{Role: "system", Content: settings.System})
	}
	for _, m := range messages {
		msgs = append(msgs, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    p.Model,
		Messages: msgs,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": settings.Temperature,
			"num_predict": settings.MaxTokens,
		},
	}

	var (
		b   strings.Builder
		out Completion
	)
	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		b.WriteString(resp.Message.Content)
		if resp.Done {
			out.Usage = Usage{
				PromptTokens:     resp.PromptEvalCount,
				CompletionTokens: resp.EvalCount,
			}
		}
		return nil
	})
	if err != nil {
		return Completion{}, err
	}
	out.Text = b.String()
	out.Model = p.Model
	return out, nil
}
