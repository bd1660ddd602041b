package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Assistant holds every tunable the conversation pipeline reads.
// It is passed by value into the orchestrator so tests and deployments can override any field.
type Assistant struct {
	// history
	HistoryLimit int    `yaml:"history_limit"`
	LeadMarker   string `yaml:"lead_marker"`

	// retrieval
	KnowledgeLimit    int `yaml:"knowledge_limit"`
	KnowledgeMaxChars int `yaml:"knowledge_max_chars"`
	FAQLimit          int `yaml:"faq_limit"`
	RuleLimit         int `yaml:"rule_limit"`
	LessonLimit       int `yaml:"lesson_limit"`
	MaxQueryTerms     int `yaml:"max_query_terms"`

	// reference documents
	VaultBudget  int `yaml:"vault_budget"`
	VaultMaxDocs int `yaml:"vault_max_docs"`

	// persistence
	DedupWindow        time.Duration `yaml:"dedup_window"`
	IntentWriteTimeout time.Duration `yaml:"intent_write_timeout"`
	MaxMessageChars    int           `yaml:"max_message_chars"`

	// lead capture
	LeadMinMessages int      `yaml:"lead_min_messages"`
	LeadEveryN      int      `yaml:"lead_every_n"`
	LeadPhrases     []string `yaml:"lead_phrases"`

	// generation
	ClassifierProvider    string  `yaml:"classifier_provider"`
	ClassifierModel       string  `yaml:"classifier_model"`
	ClassifierMaxTokens   int     `yaml:"classifier_max_tokens"`
	ClassifierTemperature float64 `yaml:"classifier_temperature"`
	ReplyProvider         string  `yaml:"reply_provider"`
	ReplyModel            string  `yaml:"reply_model"`
	ReplyMaxTokens        int     `yaml:"reply_max_tokens"`
	ReplyTemperature      float64 `yaml:"reply_temperature"`

	// prompt text
	DefaultPersona     string            `yaml:"default_persona"`
	LanguageDirectives map[string]string `yaml:"language_directives"`
	FallbackReplies    map[string]string `yaml:"fallback_replies"`
	Guidelines         string            `yaml:"guidelines"`
}

const defaultGuidelines = `## Response guidelines
- Be warm, concise and professional. Prefer short paragraphs.
- When a FAQ entry matches the question, use its answer verbatim.
- Only state facts found in the context above. If you do not know, say so and offer what you can.
- Never invent prices, policies, links or contact details.
- Lead capture is handled by the website. Never ask the visitor for their name, email or phone number.`

func DefaultAssistant() Assistant {
	return Assistant{
		HistoryLimit: 20,
		LeadMarker:   "[lead captured]",

		KnowledgeLimit:    3,
		KnowledgeMaxChars: 800,
		FAQLimit:          4,
		RuleLimit:         20,
		LessonLimit:       10,
		MaxQueryTerms:     8,

		VaultBudget:  2400,
		VaultMaxDocs: 4,

		DedupWindow:        10 * time.Second,
		IntentWriteTimeout: 5 * time.Second,
		MaxMessageChars:    4000,

		LeadMinMessages: 3,
		LeadEveryN:      4,
		LeadPhrases: []string{
			"team will",
			"get back to you",
			"contact you",
			"follow up",
			"reach out",
			"someone will",
		},

		ClassifierProvider:    "ollama",
		ClassifierModel:       "llama3:latest",
		ClassifierMaxTokens:   5,
		ClassifierTemperature: 0,
		ReplyProvider:         "ollama",
		ReplyModel:            "llama3:latest",
		ReplyMaxTokens:        500,
		ReplyTemperature:      0.7,

		DefaultPersona: "You are a friendly, knowledgeable assistant answering questions on behalf of the business described below.",
		LanguageDirectives: map[string]string{
			"en": "Always respond in English.",
			"es": "Responde siempre en español.",
		},
		FallbackReplies: map[string]string{
			"en": "Sorry, I couldn't come up with an answer just now. Could you try again?",
			"es": "Lo siento, no pude generar una respuesta en este momento. ¿Puedes intentarlo de nuevo?",
		},
		Guidelines: defaultGuidelines,
	}
}

// Overlay reads a YAML file and replaces every field it sets.
func (a *Assistant) Overlay(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("assistant config: %w", err)
	}
	if err := yaml.Unmarshal(b, a); err != nil {
		return fmt.Errorf("assistant config %s: %w", path, err)
	}
	return nil
}

func (a Assistant) Validate() error {
	switch {
	case a.HistoryLimit <= 0:
		return errors.New("assistant config: history_limit must be positive")
	case a.VaultMaxDocs <= 0:
		return errors.New("assistant config: vault_max_docs must be positive")
	case a.VaultBudget < 0:
		return errors.New("assistant config: vault_budget must not be negative")
	case a.LeadEveryN <= 0:
		return errors.New("assistant config: lead_every_n must be positive")
	case a.MaxQueryTerms <= 0:
		return errors.New("assistant config: max_query_terms must be positive")
	}
	return nil
}

// FallbackReply returns the apology used when the backend produced no text.
func (a Assistant) FallbackReply(lang string) string {
	if s, ok := a.FallbackReplies[lang]; ok && s != "" {
		return s
	}
	return a.FallbackReplies["en"]
}
