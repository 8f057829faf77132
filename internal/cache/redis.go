package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	maxJitter        = 5 * time.Minute
	minGenerationTTL = 24 * time.Hour
)

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	// The generation must outlive every entry written under it, or a reset
	// counter would make an old entry current again.
	return &RedisCache{
		client:        client,
		baseTTL:       baseTTL,
		generationTTL: max(minGenerationTTL, 2*(baseTTL+maxJitter)),
	}
}

type RedisCache struct {
	client        *redis.Client
	baseTTL       time.Duration
	generationTTL time.Duration
}

type cachedCart struct {
	Generation int64             `json:"generation"`
	Lines      []domain.CartLine `json:"lines"`
}

func (r RedisCache) Generation(ctx context.Context, userID int64) (int64, error) {
	gen, err := r.client.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

func (r RedisCache) Get(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	vals, err := r.client.MGet(ctx, cacheKey(userID), generationKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, ErrCacheMiss
	}

	var current int64
	if s, ok := vals[1].(string); ok {
		if current, err = strconv.ParseInt(s, 10, 64); err != nil {
			return nil, fmt.Errorf("parse cart generation failed: %w", err)
		}
	}

	var cart cachedCart
	if err2 := json.Unmarshal([]byte(raw), &cart); err2 != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err2)
	}
	if cart.Generation != current {
		return nil, ErrCacheMiss
	}
	if cart.Lines == nil {
		cart.Lines = []domain.CartLine{}
	}
	return cart.Lines, nil
}

func (r RedisCache) Set(ctx context.Context, userID int64, generation int64, lines []domain.CartLine) error {
	data, err := json.Marshal(cachedCart{Generation: generation, Lines: lines})
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	jitter := time.Duration(rand.Int63n(int64(maxJitter)))
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, cacheKey(userID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete bumps the generation before dropping the entry, so a reader that
// loaded the cart before this call cannot store its stale copy afterwards.
func (r RedisCache) Delete(ctx context.Context, userID int64) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID))
		pipe.Expire(ctx, generationKey(userID), r.generationTTL)
		pipe.Del(ctx, cacheKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}

func generationKey(userID int64) string {
	return fmt.Sprintf("cart:%d:gen", userID)
}
