package retrieval

import (
	"strings"

	"github.com/suPer8Hu/ai-concierge/internal/content"
)

// BudgetDocuments renders at most maxDocs documents, giving each an equal
// floor(budget/n) share of characters. With no documents the pre-rendered
// fallback block is truncated to the whole budget instead.
func BudgetDocuments(docs []content.ReferenceDocument, fallback string, budget, maxDocs int) string {
	if len(docs) == 0 {
		return Truncate(strings.TrimSpace(fallback), budget)
	}
	if len(docs) > maxDocs {
		docs = docs[:maxDocs]
	}
	per := budget / len(docs)

	blocks := make([]string, 0, len(docs))
	for _, d := range docs {
		blocks = append(blocks, "### "+d.Filename+"\n"+Truncate(d.Content, per))
	}
	return strings.Join(blocks, "\n\n")
}
