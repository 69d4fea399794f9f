package catalog

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kedaipet/storefront/internal/common"
	"github.com/kedaipet/storefront/internal/upstream"
)

// Service serves the product browsing surface, reading through the cache to
// the commerce API.
type Service struct {
	API    *upstream.Client
	Cache  *Cache
	Logger zerolog.Logger
}

// List returns a filtered, paginated product listing.
func (s *Service) List(ctx context.Context, q upstream.ProductQuery) (upstream.ProductList, error) {
	if s == nil || s.API == nil {
		return upstream.ProductList{}, errors.New("catalog service not configured")
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}

	key := listKey(q)
	var cached upstream.ProductList
	if hit, err := s.Cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	list, err := s.API.Products(ctx, q)
	if err != nil {
		return upstream.ProductList{}, err
	}
	if err := s.Cache.Set(ctx, key, list); err != nil {
		s.Logger.Warn().Err(err).Msg("cache product listing")
	}
	return list, nil
}

// Detail returns a single product.
func (s *Service) Detail(ctx context.Context, id string) (upstream.Product, error) {
	if s == nil || s.API == nil {
		return upstream.Product{}, errors.New("catalog service not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return upstream.Product{}, common.NewAppError(common.CodeValidation, "product id is required", http.StatusBadRequest, nil)
	}

	key := productKey(id)
	var cached upstream.Product
	if hit, err := s.Cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	product, err := s.API.Product(ctx, id)
	if err != nil {
		return upstream.Product{}, err
	}
	if err := s.Cache.Set(ctx, key, product); err != nil {
		s.Logger.Warn().Err(err).Str("productId", id).Msg("cache product")
	}
	return product, nil
}

// Categories returns the category list.
func (s *Service) Categories(ctx context.Context) ([]upstream.Category, error) {
	if s == nil || s.API == nil {
		return nil, errors.New("catalog service not configured")
	}
	var cached []upstream.Category
	if hit, err := s.Cache.Get(ctx, categoriesKey, &cached); err == nil && hit {
		return cached, nil
	}

	categories, err := s.API.Categories(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.Cache.Set(ctx, categoriesKey, categories); err != nil {
		s.Logger.Warn().Err(err).Msg("cache categories")
	}
	return categories, nil
}
