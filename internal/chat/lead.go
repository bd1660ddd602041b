package chat

import (
	"strings"

	"github.com/suPer8Hu/ai-concierge/internal/config"
)

// ShouldAskForLead decides whether the widget should show the contact form.
// count is the message count after this turn was persisted.
func ShouldAskForLead(cfg config.Assistant, count int, hasLead bool, reply string) bool {
	if hasLead || count < cfg.LeadMinMessages {
		return false
	}
	if cfg.LeadEveryN > 0 && count%cfg.LeadEveryN == 0 {
		return true
	}
	lower := strings.ToLower(reply)
	for _, p := range cfg.LeadPhrases {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
