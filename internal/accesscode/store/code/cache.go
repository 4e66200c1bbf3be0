package code

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"ronflow/internal/accesscode/models"
	id "ronflow/pkg/domain"
)

const cacheKeyPrefix = "accesscode:"

// CachedStore fronts a primary store with Redis. Redemption is the hot path
// during a session (the client re-enters the room on every reconnect), so
// lookups by value are served from cache when possible. The cache entry's
// TTL matches the code's remaining lifetime, making Redis self-cleaning.
//
// Redis failures degrade to the primary store; they are logged, never
// surfaced.
type CachedStore struct {
	primary Store
	redis   *redis.Client
	logger  *slog.Logger
}

// Store is the full access code persistence contract.
type Store interface {
	Save(ctx context.Context, c *models.ClientAccessCode) error
	FindByValue(ctx context.Context, value string) (*models.ClientAccessCode, error)
	FindActiveBySession(ctx context.Context, sessionID id.SessionID) (*models.ClientAccessCode, error)
	Execute(ctx context.Context, value string, validate func(*models.ClientAccessCode) error, mutate func(*models.ClientAccessCode)) (*models.ClientAccessCode, error)
	ListByCertifier(ctx context.Context, certifierID id.UserID, status models.CodeStatus) ([]*models.ClientAccessCode, error)
	MarkExpired(ctx context.Context, now time.Time) (int, error)
}

func NewCachedStore(primary Store, client *redis.Client, logger *slog.Logger) *CachedStore {
	return &CachedStore{primary: primary, redis: client, logger: logger}
}

func (s *CachedStore) Save(ctx context.Context, c *models.ClientAccessCode) error {
	if err := s.primary.Save(ctx, c); err != nil {
		return err
	}
	s.cachePut(ctx, c)
	return nil
}

func (s *CachedStore) FindByValue(ctx context.Context, value string) (*models.ClientAccessCode, error) {
	if c := s.cacheGet(ctx, value); c != nil {
		return c, nil
	}
	c, err := s.primary.FindByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, c)
	return c, nil
}

func (s *CachedStore) FindActiveBySession(ctx context.Context, sessionID id.SessionID) (*models.ClientAccessCode, error) {
	return s.primary.FindActiveBySession(ctx, sessionID)
}

// Execute runs against the primary store for its locking, then refreshes the
// cache with the mutated code.
func (s *CachedStore) Execute(ctx context.Context, value string, validate func(*models.ClientAccessCode) error, mutate func(*models.ClientAccessCode)) (*models.ClientAccessCode, error) {
	c, err := s.primary.Execute(ctx, value, validate, mutate)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, c)
	return c, nil
}

func (s *CachedStore) ListByCertifier(ctx context.Context, certifierID id.UserID, status models.CodeStatus) ([]*models.ClientAccessCode, error) {
	return s.primary.ListByCertifier(ctx, certifierID, status)
}

// MarkExpired bypasses the cache for the bulk demotion; stale cached entries
// expire on their own TTL shortly after.
func (s *CachedStore) MarkExpired(ctx context.Context, now time.Time) (int, error) {
	return s.primary.MarkExpired(ctx, now)
}

func (s *CachedStore) cacheGet(ctx context.Context, value string) *models.ClientAccessCode {
	raw, err := s.redis.Get(ctx, cacheKeyPrefix+value).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WarnContext(ctx, "access code cache read failed", "error", err)
		}
		return nil
	}
	var c models.ClientAccessCode
	if err := json.Unmarshal(raw, &c); err != nil {
		s.logger.WarnContext(ctx, "access code cache entry corrupt", "error", err)
		return nil
	}
	return &c
}

func (s *CachedStore) cachePut(ctx context.Context, c *models.ClientAccessCode) {
	ttl := time.Until(c.ExpiresAt)
	if ttl <= 0 {
		s.cacheDelete(ctx, c.Value)
		return
	}
	raw, err := json.Marshal(c)
	if err != nil {
		s.logger.WarnContext(ctx, "access code cache encode failed", "error", err)
		return
	}
	if err := s.redis.Set(ctx, cacheKeyPrefix+c.Value, raw, ttl).Err(); err != nil {
		s.logger.WarnContext(ctx, "access code cache write failed", "error", err)
	}
}

func (s *CachedStore) cacheDelete(ctx context.Context, value string) {
	if err := s.redis.Del(ctx, cacheKeyPrefix+value).Err(); err != nil {
		s.logger.WarnContext(ctx, "access code cache delete failed", "error", err)
	}
}
