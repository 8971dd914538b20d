package repository

import (
	"context"
	"encoding/json"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/pkg/apperr"

	"github.com/go-redis/redis/v8"
)

const (
	summaryKeyPrefix = "chat:summaries:"
	warmField        = "_warm"
)

// CachedSummary is the incrementally maintained slice of a conversation
// summary. Counterpart identity and online state are resolved fresh on read.
type CachedSummary struct {
	CounterpartID string              `json:"counterpart_id"`
	LastMessage   *domain.LastMessage `json:"last_message"`
	UnreadCount   int64               `json:"unread_count"`
}

// SummaryCache definition per-user conversation summary projection.
// A missing hash means cold cache; callers rebuild from the store.
type SummaryCache interface {
	// GetAll returns every cached summary for viewerID; ok is false on a cold cache.
	GetAll(ctx context.Context, viewerID string) (map[string]CachedSummary, bool, error)
	// Warm reports whether the viewer's projection has been built. Incremental
	// updates against a cold cache are skipped; the next read rebuilds.
	Warm(ctx context.Context, viewerID string) (bool, error)
	Get(ctx context.Context, viewerID, counterpartID string) (*CachedSummary, error)
	Put(ctx context.Context, viewerID string, summary CachedSummary) error
	// PutAll replaces the whole projection, warming the cache.
	PutAll(ctx context.Context, viewerID string, summaries []CachedSummary) error
	Remove(ctx context.Context, viewerID, counterpartID string) error
	Invalidate(ctx context.Context, viewerID string) error
}

type redisSummaryCache struct {
	client *redis.Client
}

// NewSummaryCache create a SummaryCache backed by redis hashes
func NewSummaryCache(client *redis.Client) SummaryCache {
	return &redisSummaryCache{client: client}
}

func (c *redisSummaryCache) key(viewerID string) string {
	return summaryKeyPrefix + viewerID
}

func (c *redisSummaryCache) GetAll(ctx context.Context, viewerID string) (map[string]CachedSummary, bool, error) {
	exists, err := c.client.Exists(ctx, c.key(viewerID)).Result()
	if err != nil {
		return nil, false, apperr.StoreUnavailable(err)
	}
	if exists == 0 {
		return nil, false, nil
	}

	fields, err := c.client.HGetAll(ctx, c.key(viewerID)).Result()
	if err != nil {
		return nil, false, apperr.StoreUnavailable(err)
	}

	summaries := make(map[string]CachedSummary, len(fields))
	for counterpartID, raw := range fields {
		if counterpartID == warmField {
			continue
		}
		var s CachedSummary
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			// corrupt entry, force a rebuild
			return nil, false, nil
		}
		summaries[counterpartID] = s
	}
	return summaries, true, nil
}

func (c *redisSummaryCache) Warm(ctx context.Context, viewerID string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.key(viewerID)).Result()
	if err != nil {
		return false, apperr.StoreUnavailable(err)
	}
	return exists > 0, nil
}

func (c *redisSummaryCache) Get(ctx context.Context, viewerID, counterpartID string) (*CachedSummary, error) {
	raw, err := c.client.HGet(ctx, c.key(viewerID), counterpartID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}

	var s CachedSummary
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, nil
	}
	return &s, nil
}

func (c *redisSummaryCache) Put(ctx context.Context, viewerID string, summary CachedSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return apperr.StoreUnavailable(err)
	}
	if err := c.client.HSet(ctx, c.key(viewerID), summary.CounterpartID, raw).Err(); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

func (c *redisSummaryCache) PutAll(ctx context.Context, viewerID string, summaries []CachedSummary) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, c.key(viewerID))
	for _, s := range summaries {
		raw, err := json.Marshal(s)
		if err != nil {
			return apperr.StoreUnavailable(err)
		}
		pipe.HSet(ctx, c.key(viewerID), s.CounterpartID, raw)
	}
	// warm marker so a user with zero conversations still hits the cache
	pipe.HSetNX(ctx, c.key(viewerID), warmField, "1")
	if _, err := pipe.Exec(ctx); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

func (c *redisSummaryCache) Remove(ctx context.Context, viewerID, counterpartID string) error {
	if err := c.client.HDel(ctx, c.key(viewerID), counterpartID).Err(); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

func (c *redisSummaryCache) Invalidate(ctx context.Context, viewerID string) error {
	if err := c.client.Del(ctx, c.key(viewerID)).Err(); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}
