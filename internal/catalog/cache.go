package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kedaipet/storefront/internal/upstream"
)

// Cache memoises catalog reads in Redis. Product browsing is by far the
// hottest path, and a short TTL keeps the storefront responsive through brief
// commerce API hiccups without serving stale prices for long.
type Cache struct {
	R   *redis.Client
	TTL time.Duration
}

func (c *Cache) ttl() time.Duration {
	if c == nil || c.TTL <= 0 {
		return 60 * time.Second
	}
	return c.TTL
}

func listKey(q upstream.ProductQuery) string {
	return fmt.Sprintf("catalog:list:%s:%s:%s:%d:%d", q.Category, q.PetType, q.Search, q.Page, q.Limit)
}

func productKey(id string) string { return "catalog:product:" + id }

const categoriesKey = "catalog:categories"

// Get unmarshals a cached payload into dst, reporting whether the key existed.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.R == nil || key == "" {
		return false, nil
	}
	data, err := c.R.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores v as JSON with the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, v any) error {
	if c == nil || c.R == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, key, data, c.ttl()).Err()
}
