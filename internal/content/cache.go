package content

import (
	"context"
	"time"

	"github.com/suPer8Hu/ai-concierge/internal/logger"
)

// JSONCache is the subset of redisstore.Store the read-through cache needs.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
}

// Cached serves bot configs and company profiles from a JSON cache, falling
// back to the repo on a miss or any cache error.
type Cached struct {
	*Repo
	cache JSONCache
	ttl   time.Duration
	log   *logger.Logger
}

func NewCached(repo *Repo, cache JSONCache, ttl time.Duration, log *logger.Logger) *Cached {
	if log == nil {
		log = logger.Nop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{Repo: repo, cache: cache, ttl: ttl, log: log}
}

func (c *Cached) GetBot(ctx context.Context, id string) (*Bot, error) {
	key := "content:bot:" + id
	var b Bot
	if c.read(ctx, key, &b) {
		return &b, nil
	}
	got, err := c.Repo.GetBot(ctx, id)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, got)
	return got, nil
}

func (c *Cached) GetCompany(ctx context.Context, id string) (*CompanyProfile, error) {
	key := "content:company:" + id
	var p CompanyProfile
	if c.read(ctx, key, &p) {
		return &p, nil
	}
	got, err := c.Repo.GetCompany(ctx, id)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, got)
	return got, nil
}

func (c *Cached) CompanyForBot(ctx context.Context, botID string) (*CompanyProfile, error) {
	key := "content:company:bot:" + botID
	var p CompanyProfile
	if c.read(ctx, key, &p) {
		return &p, nil
	}
	got, err := c.Repo.CompanyForBot(ctx, botID)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, got)
	return got, nil
}

func (c *Cached) read(ctx context.Context, key string, dst any) bool {
	if c.cache == nil {
		return false
	}
	found, err := c.cache.GetJSON(ctx, key, dst)
	if err != nil {
		c.log.Warn("content cache read failed", "key", key, "err", err)
		return false
	}
	return found
}

func (c *Cached) write(ctx context.Context, key string, v any) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetJSON(ctx, key, v, c.ttl); err != nil {
		c.log.Warn("content cache write failed", "key", key, "err", err)
	}
}
