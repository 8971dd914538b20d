package repository

import (
	"context"
	"time"

	"marketplace_chat_service/pkg/apperr"
	"marketplace_chat_service/pkg/database"

	"github.com/go-redis/redis/v8"
)

const (
	lastSeenKeyPrefix = "chat:lastseen:"
	lastSeenTTL       = 30 * 24 * time.Hour
)

// PresenceRepository definition last-seen timestamps. The live online flag
// comes from the connection registry; this only answers "when was the user
// last connected".
type PresenceRepository interface {
	Touch(ctx context.Context, userID string, at time.Time) error
	// LastSeen returns nil when the user has never connected.
	LastSeen(ctx context.Context, userID string) (*time.Time, error)
}

type presenceRepository struct {
	store database.RedisRepository[time.Time]
}

// NewPresenceRepository create a PresenceRepository backed by redis
func NewPresenceRepository(client *redis.Client) PresenceRepository {
	return &presenceRepository{store: database.NewRedisRepository[time.Time](client)}
}

func (r *presenceRepository) Touch(ctx context.Context, userID string, at time.Time) error {
	if err := r.store.Set(ctx, lastSeenKeyPrefix+userID, at.UTC(), lastSeenTTL); err != nil {
		return apperr.StoreUnavailable(err)
	}
	return nil
}

func (r *presenceRepository) LastSeen(ctx context.Context, userID string) (*time.Time, error) {
	at, err := r.store.Get(ctx, lastSeenKeyPrefix+userID)
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.StoreUnavailable(err)
	}
	return &at, nil
}
