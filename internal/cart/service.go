package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/cache"
	"github.com/Vishal8376/Farm2Consumer/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Repository interface {
	AddOrIncrement(ctx context.Context, userID, productID int64, delta, limit int) (*domain.CartLine, bool, error)
	GetLine(ctx context.Context, lineID string) (*domain.CartLine, error)
	DeleteLine(ctx context.Context, userID int64, lineID string) error
	ListLines(ctx context.Context, userID int64) ([]domain.CartLine, error)
}

type Catalog interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

type AddResult struct {
	Line    *domain.CartLine
	Clamped bool
}

type Service struct {
	repo    Repository
	catalog Catalog
	cache   cache.CartCache
	logger  *zap.Logger
	sfg     singleflight.Group // Prevents cache stampede
}

func NewService(repo Repository, catalog Catalog, c cache.CartCache, logger *zap.Logger) *Service {
	if c == nil {
		c = cache.Noop{}
	}
	return &Service{
		repo:    repo,
		catalog: catalog,
		cache:   c,
		logger:  logger,
	}
}

// AddOrIncrement adds delta units of a product, clamping the line to the
// product's available quantity. Clamped reports that fewer units than
// requested were added.
func (s *Service) AddOrIncrement(ctx context.Context, userID, productID int64, delta int) (*AddResult, error) {
	if delta <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.InStock() {
		return nil, fmt.Errorf("product %d: %w", productID, domain.ErrStockExhausted)
	}

	line, clamped, err := s.repo.AddOrIncrement(ctx, userID, productID, delta, product.AvailableQuantity)
	if err != nil {
		s.logger.Warn("repo add item error", zap.Int64("user_id", userID), zap.Int64("product_id", productID), zap.Error(err))
		return nil, err
	}
	s.Invalidate(userID)

	if clamped {
		s.logger.Info("cart line clamped to available quantity",
			zap.Int64("user_id", userID),
			zap.Int64("product_id", productID),
			zap.Int("available", product.AvailableQuantity))
	}
	return &AddResult{Line: line, Clamped: clamped}, nil
}

// Remove deletes one of the buyer's lines. A line owned by someone else is
// reported as ErrForbidden, a missing one as ErrNotFound.
func (s *Service) Remove(ctx context.Context, userID int64, lineID string) error {
	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return err
	}
	if line.UserID != userID {
		return fmt.Errorf("cart line %s: %w", lineID, domain.ErrForbidden)
	}

	if err := s.repo.DeleteLine(ctx, userID, lineID); err != nil {
		s.logger.Warn("repo remove item error", zap.Int64("user_id", userID), zap.String("line_id", lineID), zap.Error(err))
		return err
	}
	s.Invalidate(userID)
	return nil
}

// List returns the buyer's lines ordered by added_at, id.
func (s *Service) List(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	v, err, _ := s.sfg.Do(strconv.FormatInt(userID, 10), func() (interface{}, error) {
		lines, err := s.cache.Get(ctx, userID)
		if err == nil {
			return lines, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache get error", zap.Int64("user_id", userID), zap.Error(err))
		}

		// read the generation before the repository so that a concurrent
		// invalidation makes this copy unservable
		gen, genErr := s.cache.Generation(ctx, userID)

		lines, err = s.repo.ListLines(ctx, userID)
		if err != nil {
			return nil, err
		}

		if genErr != nil {
			s.logger.Warn("cache generation error", zap.Int64("user_id", userID), zap.Error(genErr))
			return lines, nil
		}
		if errSet := s.cache.Set(ctx, userID, gen, lines); errSet != nil {
			s.logger.Warn("cache set error", zap.Int64("user_id", userID), zap.Error(errSet))
		}
		return lines, nil
	})
	if err != nil {
		return nil, err
	}

	// callers may reorder; never hand out the shared slice
	shared := v.([]domain.CartLine)
	out := make([]domain.CartLine, len(shared))
	copy(out, shared)
	return out, nil
}

// Invalidate drops the cached copy of the buyer's cart.
func (s *Service) Invalidate(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("cache invalidate error", zap.Int64("user_id", userID), zap.Error(err))
	}
}
