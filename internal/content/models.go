package content

import (
	"strings"
	"time"
)

const (
	CategorySupport = "support"
	CategorySales   = "sales"
	CategoryGeneral = "general"
)

type Bot struct {
	ID        string    `gorm:"type:varchar(26);primaryKey" json:"id"`
	CompanyID string    `gorm:"type:varchar(26);index;not null" json:"company_id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	Persona   string    `gorm:"type:text" json:"persona"`
	Model     string    `gorm:"type:varchar(64)" json:"model"` // optional reply model override
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Bot) TableName() string { return "bots" }

type CompanyProfile struct {
	ID          string    `gorm:"type:varchar(26);primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Industry    string    `gorm:"type:varchar(128)" json:"industry"`
	Website     string    `gorm:"type:varchar(255)" json:"website"`
	Description string    `gorm:"type:text" json:"description"`
	// VaultSummary is a pre-rendered reference block used when no documents are uploaded.
	VaultSummary string    `gorm:"type:text" json:"vault_summary"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (CompanyProfile) TableName() string { return "company_profiles" }

// Identity renders the company summary injected into every prompt.
func (c *CompanyProfile) Identity() string {
	if c == nil {
		return ""
	}
	var lines []string
	add := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			lines = append(lines, label+": "+v)
		}
	}
	add("Company", c.Name)
	add("Industry", c.Industry)
	add("Website", c.Website)
	add("About", c.Description)
	return strings.Join(lines, "\n")
}

type KnowledgeArticle struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	BotID     string    `gorm:"type:varchar(26);index:idx_kb_bot_category,priority:1;not null" json:"bot_id"`
	Category  string    `gorm:"type:varchar(16);index:idx_kb_bot_category,priority:2;not null" json:"category"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (KnowledgeArticle) TableName() string { return "knowledge_articles" }

type FAQEntry struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	BotID     string    `gorm:"type:varchar(26);index:idx_faq_bot_active,priority:1;not null" json:"bot_id"`
	Active    bool      `gorm:"index:idx_faq_bot_active,priority:2;not null" json:"active"`
	Category  string    `gorm:"type:varchar(16);not null" json:"category"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text;not null" json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

func (FAQEntry) TableName() string { return "faq_entries" }

type Rule struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	BotID     string    `gorm:"type:varchar(26);index;not null" json:"bot_id"`
	Category  string    `gorm:"type:varchar(32);not null" json:"category"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Priority  int       `gorm:"not null" json:"priority"` // higher applies first
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (Rule) TableName() string { return "bot_rules" }

type ReferenceDocument struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CompanyID string    `gorm:"type:varchar(26);index;not null" json:"company_id"`
	Filename  string    `gorm:"type:varchar(255);not null" json:"filename"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (ReferenceDocument) TableName() string { return "reference_documents" }

// Lesson is a style correction accumulated from reviewed conversations.
type Lesson struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	BotID     string    `gorm:"type:varchar(26);index;not null" json:"bot_id"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (Lesson) TableName() string { return "bot_lessons" }

// Tables lists every model owned by this package, in migration order.
func Tables() []any {
	return []any{
		&Bot{}, &CompanyProfile{}, &KnowledgeArticle{}, &FAQEntry{},
		&Rule{}, &ReferenceDocument{}, &Lesson{},
	}
}
