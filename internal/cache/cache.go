package cache

import (
	"context"
	"errors"

	"github.com/Vishal8376/Farm2Consumer/internal/domain"
)

// CartCache stores a buyer's cart lines tagged with the invalidation
// generation they were read under. An entry written under an older
// generation is treated as a miss.
type CartCache interface {
	Generation(ctx context.Context, userID int64) (int64, error)
	Get(ctx context.Context, userID int64) ([]domain.CartLine, error)
	Set(ctx context.Context, userID int64, generation int64, lines []domain.CartLine) error
	Delete(ctx context.Context, userID int64) error
}

var ErrCacheMiss = errors.New("cache miss")

// Noop is used when no cache is configured.
type Noop struct{}

func (Noop) Generation(context.Context, int64) (int64, error) { return 0, nil }

func (Noop) Get(context.Context, int64) ([]domain.CartLine, error) { return nil, ErrCacheMiss }

func (Noop) Set(context.Context, int64, int64, []domain.CartLine) error { return nil }

func (Noop) Delete(context.Context, int64) error { return nil }
