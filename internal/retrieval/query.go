package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Query is a sanitized full-text search expression. The zero value is never
// returned by Sanitize; callers get ok=false instead.
type Query struct {
	terms []string
}

// Sanitize keeps letters, digits and whitespace, drops tokens of two
// characters or fewer and caps the result at maxTerms tokens. ok is false when
// nothing usable survives, which callers treat as "skip full-text search".
func Sanitize(text string, maxTerms int) (q Query, ok bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		// any Unicode letter counts, so accented and ñ terms survive
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, text)

	for _, tok := range strings.Fields(cleaned) {
		if utf8.RuneCountInString(tok) <= 2 {
			continue
		}
		q.terms = append(q.terms, tok)
		if len(q.terms) == maxTerms {
			break
		}
	}
	if len(q.terms) == 0 {
		return Query{}, false
	}
	return q, true
}

func (q Query) Terms() []string { return q.terms }

// TSQuery joins the terms with the postgres AND operator.
func (q Query) TSQuery() string { return strings.Join(q.terms, " & ") }

// BooleanMode marks every term as required for mysql boolean full-text mode.
func (q Query) BooleanMode() string {
	parts := make([]string, len(q.terms))
	for i, t := range q.terms {
		parts[i] = "+" + t
	}
	return strings.Join(parts, " ")
}

func (q Query) String() string { return q.TSQuery() }
