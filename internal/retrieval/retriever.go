package retrieval

import (
	"context"
	"strings"

	"github.com/suPer8Hu/ai-concierge/internal/config"
	"github.com/suPer8Hu/ai-concierge/internal/content"
)

// Store is the read side of content.Repo the retriever needs.
type Store interface {
	MatchArticles(ctx context.Context, botID string, m content.Matcher, categories []string, limit int) ([]content.KnowledgeArticle, error)
	FirstArticles(ctx context.Context, botID string, limit int) ([]content.KnowledgeArticle, error)
	MatchFAQs(ctx context.Context, botID string, m content.Matcher, categories []string, limit int) ([]content.FAQEntry, error)
	ActiveRules(ctx context.Context, botID string, limit int) ([]content.Rule, error)
	Documents(ctx context.Context, companyID string) ([]content.ReferenceDocument, error)
	ActiveLessons(ctx context.Context, botID string, limit int) ([]content.Lesson, error)
}

// Retriever renders each content source into a prompt block. Every method
// returns "" when there is nothing to inject.
type Retriever struct {
	store Store
	cfg   config.Assistant
}

func NewRetriever(store Store, cfg config.Assistant) *Retriever {
	return &Retriever{store: store, cfg: cfg}
}

// categoriesFor scopes a search to the intent plus the shared general pool.
func categoriesFor(intent string) []string {
	if intent == "" || intent == content.CategoryGeneral {
		return []string{content.CategoryGeneral}
	}
	return []string{intent, content.CategoryGeneral}
}

// Knowledge falls back to the bot's first articles when the message yields no
// usable query or nothing matches; a sparse knowledge base still injects something.
func (r *Retriever) Knowledge(ctx context.Context, botID, intent, message string) (string, error) {
	var articles []content.KnowledgeArticle
	if q, ok := Sanitize(message, r.cfg.MaxQueryTerms); ok {
		hits, err := r.store.MatchArticles(ctx, botID, q, categoriesFor(intent), r.cfg.KnowledgeLimit)
		if err != nil {
			return "", err
		}
		articles = hits
	}
	if len(articles) == 0 {
		first, err := r.store.FirstArticles(ctx, botID, r.cfg.KnowledgeLimit)
		if err != nil {
			return "", err
		}
		articles = first
	}

	blocks := make([]string, 0, len(articles))
	for _, a := range articles {
		blocks = append(blocks, "### "+a.Title+"\n"+Truncate(a.Content, r.cfg.KnowledgeMaxChars))
	}
	return strings.Join(blocks, "\n\n"), nil
}

// FAQ only injects real matches; there is no fallback.
func (r *Retriever) FAQ(ctx context.Context, botID, intent, message string) (string, error) {
	q, ok := Sanitize(message, r.cfg.MaxQueryTerms)
	if !ok {
		return "", nil
	}
	entries, err := r.store.MatchFAQs(ctx, botID, q, categoriesFor(intent), r.cfg.FAQLimit)
	if err != nil {
		return "", err
	}

	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		blocks = append(blocks, "Q: "+e.Question+"\nA: "+e.Answer)
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (r *Retriever) Rules(ctx context.Context, botID string) (string, error) {
	rules, err := r.store.ActiveRules(ctx, botID, r.cfg.RuleLimit)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(rules))
	for _, rule := range rules {
		lines = append(lines, "["+rule.Category+"] "+rule.Text)
	}
	return strings.Join(lines, "\n"), nil
}

// Vault renders the company's reference documents under the character budget.
func (r *Retriever) Vault(ctx context.Context, companyID, fallback string) (string, error) {
	if companyID == "" {
		return BudgetDocuments(nil, fallback, r.cfg.VaultBudget, r.cfg.VaultMaxDocs), nil
	}
	docs, err := r.store.Documents(ctx, companyID)
	if err != nil {
		return "", err
	}
	return BudgetDocuments(docs, fallback, r.cfg.VaultBudget, r.cfg.VaultMaxDocs), nil
}

func (r *Retriever) Lessons(ctx context.Context, botID string) (string, error) {
	lessons, err := r.store.ActiveLessons(ctx, botID, r.cfg.LessonLimit)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(lessons))
	for _, l := range lessons {
		if t := strings.TrimSpace(l.Text); t != "" {
			lines = append(lines, "- "+t)
		}
	}
	return strings.Join(lines, "\n"), nil
}
