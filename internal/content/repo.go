package content

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Matcher is a sanitized full-text query rendered for each SQL dialect.
type Matcher interface {
	Terms() []string
	TSQuery() string     // postgres to_tsquery syntax
	BooleanMode() string // mysql MATCH ... AGAINST boolean syntax
}

// Repo is read-only: the conversation pipeline never writes content.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetBot(ctx context.Context, id string) (*Bot, error) {
	var b Bot
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) GetCompany(ctx context.Context, id string) (*CompanyProfile, error) {
	var c CompanyProfile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CompanyForBot resolves the profile that owns the bot without loading the bot first.
func (r *Repo) CompanyForBot(ctx context.Context, botID string) (*CompanyProfile, error) {
	var c CompanyProfile
	if err := r.db.WithContext(ctx).
		Joins("JOIN bots ON bots.company_id = company_profiles.id").
		Where("bots.id = ?", botID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// MatchArticles runs a full-text match over title+content scoped to the given categories.
func (r *Repo) MatchArticles(ctx context.Context, botID string, m Matcher, categories []string, limit int) ([]KnowledgeArticle, error) {
	q := r.db.WithContext(ctx).
		Where("bot_id = ? AND category IN ?", botID, categories)
	q = r.fullText(q, "title", "content", m)

	var out []KnowledgeArticle
	if err := q.Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// FirstArticles returns the bot's oldest articles regardless of category.
func (r *Repo) FirstArticles(ctx context.Context, botID string, limit int) ([]KnowledgeArticle, error) {
	var out []KnowledgeArticle
	if err := r.db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) MatchFAQs(ctx context.Context, botID string, m Matcher, categories []string, limit int) ([]FAQEntry, error) {
	q := r.db.WithContext(ctx).
		Where("bot_id = ? AND active = ? AND category IN ?", botID, true, categories)
	q = r.fullText(q, "question", "answer", m)

	var out []FAQEntry
	if err := q.Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveRules returns active rules, highest priority first.
func (r *Repo) ActiveRules(ctx context.Context, botID string, limit int) ([]Rule, error) {
	var out []Rule
	if err := r.db.WithContext(ctx).
		Where("bot_id = ? AND active = ?", botID, true).
		Order("priority DESC").
		Order("id ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) Documents(ctx context.Context, companyID string) ([]ReferenceDocument, error) {
	var out []ReferenceDocument
	if err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ActiveLessons returns the newest active lessons in DESC id order.
func (r *Repo) ActiveLessons(ctx context.Context, botID string, limit int) ([]Lesson, error) {
	var out []Lesson
	if err := r.db.WithContext(ctx).
		Where("bot_id = ? AND active = ?", botID, true).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) fullText(q *gorm.DB, a, b string, m Matcher) *gorm.DB {
	switch r.db.Dialector.Name() {
	case "postgres":
		expr := fmt.Sprintf("to_tsvector('simple', %s || ' ' || %s)", a, b)
		return q.Where(expr+" @@ to_tsquery('simple', ?)", m.TSQuery()).
			Order(gorm.Expr("ts_rank("+expr+", to_tsquery('simple', ?)) DESC", m.TSQuery()))
	case "mysql":
		expr := fmt.Sprintf("MATCH(%s, %s) AGAINST (? IN BOOLEAN MODE)", a, b)
		return q.Where(expr, m.BooleanMode()).
			Order(gorm.Expr(expr+" DESC", m.BooleanMode()))
	default:
		// sqlite has no tsvector; every term must appear somewhere in the two columns.
		for _, t := range m.Terms() {
			q = q.Where(fmt.Sprintf("LOWER(%s || ' ' || %s) LIKE ?", a, b), "%"+strings.ToLower(t)+"%")
		}
		return q.Order("id ASC")
	}
}
