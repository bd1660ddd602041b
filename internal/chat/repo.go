package chat

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/suPer8Hu/ai-concierge/internal/intent"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSession(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// RecentHistory returns up to limit messages in DESC id order (newest -> oldest),
// skipping rows whose content is exactly marker.
func (r *Repo) RecentHistory(ctx context.Context, sessionID string, limit int, marker string) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if marker != "" {
		q = q.Where("content <> ?", marker)
	}
	var msgs []Message
	if err := q.Order("id DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// HasRecentUserMessage reports whether the same user content was stored for
// the session at or after since.
func (r *Repo) HasRecentUserMessage(ctx context.Context, sessionID, content string, since time.Time) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Message{}).
		Where("session_id = ? AND role = ? AND content = ? AND created_at >= ?", sessionID, "user", content, since).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// InsertTurn stores the user and assistant rows in one statement, user first.
func (r *Repo) InsertTurn(ctx context.Context, user, assistant *Message) error {
	msgs := []*Message{user, assistant}
	return r.db.WithContext(ctx).Create(&msgs).Error
}

func (r *Repo) UpdateSessionAfterTurn(ctx context.Context, id string, count int, lang string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"message_count": count,
			"language":      lang,
			"updated_at":    at,
		}).Error
}

// UpdateSessionIntent only replaces a missing or general label, so a late
// write-back never overwrites a specific intent stored by another turn.
func (r *Repo) UpdateSessionIntent(ctx context.Context, id, label string) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Where("detected_intent IS NULL OR detected_intent = ?", intent.General).
		Update("detected_intent", label).Error
}

// GetLeadBySession returns nil, nil when the session has no lead.
func (r *Repo) GetLeadBySession(ctx context.Context, sessionID string) (*Lead, error) {
	var leads []Lead
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Limit(1).
		Find(&leads).Error; err != nil {
		return nil, err
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

func (r *Repo) InsertLead(ctx context.Context, l *Lead) error {
	return r.db.WithContext(ctx).Create(l).Error
}

// ListMessages returns messages in ASC id order for the widget transcript.
func (r *Repo) ListMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}
