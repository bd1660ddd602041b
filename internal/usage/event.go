package usage

import (
	"context"
	"time"
)

const (
	KindClassify = "classify"
	KindReply    = "reply"
)

// Event meters one generative call.
type Event struct {
	Kind             string    `json:"kind"`
	BotID            string    `json:"bot_id"`
	SessionID        string    `json:"session_id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	At               time.Time `json:"at"`
}

// Recorder is a fire-and-forget metering sink. Record must not block the caller
// on slow I/O; errors are the sink's own concern.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// Record is the persisted form of an Event.
type Record struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind             string    `gorm:"type:varchar(16);index;not null" json:"kind"`
	BotID            string    `gorm:"type:varchar(26);index:idx_usage_bot_at,priority:1;not null" json:"bot_id"`
	SessionID        string    `gorm:"type:varchar(26);index" json:"session_id"`
	Provider         string    `gorm:"type:varchar(32)" json:"provider"`
	Model            string    `gorm:"type:varchar(64)" json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	At               time.Time `gorm:"index:idx_usage_bot_at,priority:2;not null" json:"at"`
	CreatedAt        time.Time `json:"created_at"`
}

func (Record) TableName() string { return "usage_logs" }

func (e Event) toRecord() *Record {
	return &Record{
		Kind:             e.Kind,
		BotID:            e.BotID,
		SessionID:        e.SessionID,
		Provider:         e.Provider,
		Model:            e.Model,
		PromptTokens:     e.PromptTokens,
		CompletionTokens: e.CompletionTokens,
		At:               e.At,
	}
}

// Nop drops every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
