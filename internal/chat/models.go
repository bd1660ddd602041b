package chat

import (
	"time"

	"github.com/suPer8Hu/ai-concierge/internal/common"
)

const (
	StatusActive    = "active"
	StatusClosed    = "closed"
	StatusEscalated = "escalated"
)

type Session struct {
	ID             string    `gorm:"type:varchar(26);primaryKey" json:"session_id"`
	BotID          string    `gorm:"type:varchar(26);index;not null" json:"bot_id"`
	VisitorID      string    `gorm:"type:varchar(64);index;not null" json:"-"`
	Status         string    `gorm:"type:varchar(16);not null" json:"status"`
	DetectedIntent *string   `gorm:"type:varchar(16)" json:"detected_intent"`
	MessageCount   int       `gorm:"not null" json:"message_count"`
	Language       string    `gorm:"type:varchar(8);not null" json:"language"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message rows are append-only. A visitor turn writes a user row and an
// assistant row together.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"type:varchar(26);not null;index:idx_chat_msg_session_created,priority:1" json:"session_id"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_chat_msg_session_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// Lead is unique per session by convention only: callers check before insert.
type Lead struct {
	ID        string    `gorm:"type:varchar(26);primaryKey" json:"id"`
	SessionID string    `gorm:"type:varchar(26);index;not null" json:"session_id"`
	BotID     string    `gorm:"type:varchar(26);index;not null" json:"bot_id"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Email     string    `gorm:"type:varchar(255)" json:"email"`
	Phone     string    `gorm:"type:varchar(64)" json:"phone"`
	Company   string    `gorm:"type:varchar(255)" json:"company"`
	Intent    string    `gorm:"type:varchar(16)" json:"intent"`
	Notes     string    `gorm:"type:text" json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

func (Lead) TableName() string { return "leads" }

func Tables() []any {
	return []any{&Session{}, &Message{}, &Lead{}}
}

func NewSessionID() (string, error) {
	return common.NewULID()
}
