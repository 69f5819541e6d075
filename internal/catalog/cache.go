package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisclient "github.com/almarky/almarky-backend/pkg/redis"
)

type snapshotStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

type snapshotKeyer interface {
	CatalogSnapshotKey() string
}

// SnapshotCache keeps the last-known product list in Redis so reads survive
// GitHub outages.
type SnapshotCache struct {
	store snapshotStore
	keyer snapshotKeyer
	ttl   time.Duration
}

// NewSnapshotCache builds the cache on top of the shared Redis client. A zero
// ttl keeps snapshots until the next write.
func NewSnapshotCache(client *redisclient.Client, ttl time.Duration) (*SnapshotCache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &SnapshotCache{store: client, keyer: client, ttl: ttl}, nil
}

// Save overwrites the snapshot with the provided product list.
func (c *SnapshotCache) Save(ctx context.Context, products []Product) error {
	raw, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("marshal catalog snapshot: %w", err)
	}
	return c.store.Set(ctx, c.keyer.CatalogSnapshotKey(), string(raw), c.ttl)
}

// Load returns the cached product list; ok is false when no snapshot exists.
func (c *SnapshotCache) Load(ctx context.Context) ([]Product, bool, error) {
	raw, err := c.store.Get(ctx, c.keyer.CatalogSnapshotKey())
	if err != nil {
		if redisclient.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var products []Product
	if err := json.Unmarshal([]byte(raw), &products); err != nil {
		return nil, false, fmt.Errorf("unmarshal catalog snapshot: %w", err)
	}
	return products, true, nil
}
