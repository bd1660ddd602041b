// Package intent labels a conversation as support, sales or general.
package intent

import (
	"context"
	"strings"

	"github.com/suPer8Hu/ai-concierge/internal/ai"
	"github.com/suPer8Hu/ai-concierge/internal/content"
)

const (
	Support = content.CategorySupport
	Sales   = content.CategorySales
	General = content.CategoryGeneral
)

const instructions = `You are an intent classifier for a business chat assistant.
Read the conversation and the latest visitor message, then answer with exactly one word:

support - the visitor has a problem: troubleshooting, errors, account access, billing issues, how to use something they already have.
sales - the visitor is deciding whether to buy: pricing, plans, quotes, purchasing, demos, comparisons with competitors.
general - greetings, small talk, unclear requests, or anything off-topic.

Answer with support, sales or general. No punctuation, no explanation.`

// CacheValid reports whether a session's cached intent can be reused.
// Only a concrete non-general label is trusted; null and general are always
// recomputed, and a non-general value is never recomputed.
func CacheValid(cached *string) bool {
	return cached != nil && (*cached == Support || *cached == Sales)
}

// Parse accepts only an exact support or sales label after trimming and
// lower-casing; anything else is general.
func Parse(output string) string {
	switch s := strings.ToLower(strings.TrimSpace(output)); s {
	case Support, Sales:
		return s
	default:
		return General
	}
}

type Classifier struct {
	provider    ai.Provider
	maxTokens   int
	temperature float64
}

func NewClassifier(provider ai.Provider, maxTokens int, temperature float64) *Classifier {
	if maxTokens <= 0 {
		maxTokens = 5
	}
	return &Classifier{provider: provider, maxTokens: maxTokens, temperature: temperature}
}

// Classify returns General together with the backend error when the call
// fails; callers treat that as a soft failure and keep going. The completion
// is returned so callers can meter the tokens it used.
func (c *Classifier) Classify(ctx context.Context, history []ai.Message, message string) (string, ai.Completion, error) {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	b.WriteString("user: ")
	b.WriteString(message)

	out, err := c.provider.Chat(ctx,
		[]ai.Message{{Role: ai.RoleUser, Content: b.String()}},
		ai.WithSystem(instructions),
		ai.WithTemperature(c.temperature),
		ai.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return General, ai.Completion{}, err
	}
	return Parse(out.Text), out, nil
}
