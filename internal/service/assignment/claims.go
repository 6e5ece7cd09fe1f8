package assignment

import (
	"context"
	"sync"
	"time"

	xerrors "frontdesk-service/internal/pkg/errors"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Claims hands out per-visit assignment claims. A held claim makes every other
// Acquire for the same visit fail with ErrAssignmentInProgress.
type Claims interface {
	Acquire(ctx context.Context, visitID string) (release func(), err error)
}

type LocalClaims struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalClaims() *LocalClaims {
	return &LocalClaims{held: make(map[string]struct{})}
}

func (c *LocalClaims) Acquire(ctx context.Context, visitID string) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.held[visitID]; busy {
		return nil, xerrors.ErrAssignmentInProgress
	}
	c.held[visitID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.held, visitID)
			c.mu.Unlock()
		})
	}, nil
}

// Held reports whether a claim on visitID is live.
func (c *LocalClaims) Held(visitID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.held[visitID]
	return ok
}

const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`

// RedisClaims layers a Redis lock over the local table so service instances
// sharing a Redis also exclude each other. The TTL bounds a claim whose holder
// died. If Redis cannot be reached the local claim alone is used; the store's
// conditional assignment still prevents a double write.
type RedisClaims struct {
	local  *LocalClaims
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

func NewRedisClaims(local *LocalClaims, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisClaims {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisClaims{
		local:  local,
		rdb:    rdb,
		ttl:    ttl,
		prefix: "frontdesk:claim:visit:",
		logger: logger,
	}
}

func (c *RedisClaims) Acquire(ctx context.Context, visitID string) (func(), error) {
	releaseLocal, err := c.local.Acquire(ctx, visitID)
	if err != nil {
		return nil, err
	}

	key := c.prefix + visitID
	token := ulid.Make().String()

	ok, err := c.rdb.SetNX(ctx, key, token, c.ttl).Result()
	if err != nil {
		c.logger.Warn("redis claim unavailable, using local claim only",
			zap.String("visit_id", visitID),
			zap.Error(err),
		)
		return releaseLocal, nil
	}
	if !ok {
		releaseLocal()
		return nil, xerrors.ErrAssignmentInProgress
	}

	return func() {
		// release must not depend on the caller's possibly cancelled context
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := c.rdb.Eval(rctx, releaseScript, []string{key}, token).Err(); err != nil && err != redis.Nil {
			c.logger.Warn("failed to release redis claim", zap.String("visit_id", visitID), zap.Error(err))
		}
		releaseLocal()
	}, nil
}
