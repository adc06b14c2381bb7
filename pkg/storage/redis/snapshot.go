package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/time7/tagsync/pkg/storage"
)

const defaultKey = "tagsync:registered-ids"

// NewClient builds a go-redis client.
func NewClient(addr, password string, db int) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// SnapshotCache keeps the last registered-identifier snapshot in a Redis set
// so a client can start with a usable set while the registry is unreachable.
type SnapshotCache struct {
	client *goredis.Client
	key    string
}

// NewSnapshotCache stores the snapshot under key, or a default key when empty.
func NewSnapshotCache(client *goredis.Client, key string) *SnapshotCache {
	if key == "" {
		key = defaultKey
	}
	return &SnapshotCache{client: client, key: key}
}

func (c *SnapshotCache) savedAtKey() string {
	return c.key + ":saved_at"
}

// Save replaces the stored snapshot wholesale in one transaction.
func (c *SnapshotCache) Save(ctx context.Context, ids []string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, c.key)
		if len(ids) > 0 {
			members := make([]interface{}, len(ids))
			for i, id := range ids {
				members[i] = id
			}
			pipe.SAdd(ctx, c.key, members...)
		}
		pipe.Set(ctx, c.savedAtKey(), time.Now().UTC().Format(time.RFC3339Nano), 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or storage.ErrNotFound if none was ever saved.
func (c *SnapshotCache) Load(ctx context.Context) ([]string, error) {
	err := c.client.Get(ctx, c.savedAtKey()).Err()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	ids, err := c.client.SMembers(ctx, c.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return ids, nil
}

// Ping checks connectivity.
func (c *SnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
