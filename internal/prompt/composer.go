package prompt

import (
	"strings"

	"github.com/suPer8Hu/ai-concierge/internal/config"
)

// Input is everything the composer renders. Empty fields are skipped.
type Input struct {
	Persona   string
	Language  string
	Company   string
	Lessons   string
	Rules     string
	FAQ       string
	Knowledge string
	Vault     string
	Intent    string
}

// Composer assembles the system instruction. Output depends only on Input and
// the assistant config, so identical inputs give byte-identical prompts.
type Composer struct {
	defaultPersona string
	languages      map[string]string
	guidelines     string
}

func NewComposer(cfg config.Assistant) *Composer {
	return &Composer{
		defaultPersona: cfg.DefaultPersona,
		languages:      cfg.LanguageDirectives,
		guidelines:     cfg.Guidelines,
	}
}

func (c *Composer) Compose(in Input) string {
	persona := in.Persona
	if strings.TrimSpace(persona) == "" {
		persona = c.defaultPersona
	}

	sections := []string{
		persona,
		c.languages[in.Language],
		section("## About the company", in.Company),
		section("## Lessons from past conversations", in.Lessons),
		section("## Rules (apply strictly)", in.Rules),
		section("## FAQ (when a question matches, use the answer verbatim)", in.FAQ),
		section("## Knowledge base", in.Knowledge),
		section("## Reference documents", in.Vault),
		section("## Context", contextLine(in.Intent)),
		c.guidelines,
	}

	out := make([]string, 0, len(sections))
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n\n")
}

func section(title, body string) string {
	if strings.TrimSpace(body) == "" {
		return ""
	}
	return title + "\n" + body
}

func contextLine(intent string) string {
	if intent == "" {
		return ""
	}
	return "The visitor's current intent is classified as: " + intent + "."
}
