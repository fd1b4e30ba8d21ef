// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// tree.go provides a Valkey-backed cache of the rendered category tree.
// Building the nested tree loads every live category, so the serialized
// result is kept warm between mutations and dropped on every write. Paths
// go stale during the reparent-to-rebuild window anyway, so the TTL only
// bounds how long a missed invalidation can linger.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// treeKey is the Valkey key holding the serialized category tree.
	treeKey = "categories:tree"

	// DefaultTreeTTL is how long the rendered tree stays cached.
	DefaultTreeTTL = 5 * time.Minute
)

// TreeCache manages the serialized category tree in Valkey.
type TreeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTreeCache creates a tree cache backed by the given Valkey client.
func NewTreeCache(client *redis.Client, ttl time.Duration) *TreeCache {
	if ttl == 0 {
		ttl = DefaultTreeTTL
	}
	return &TreeCache{client: client, ttl: ttl}
}

// Get retrieves the cached serialized tree. Returns false on miss.
func (tc *TreeCache) Get(ctx context.Context) ([]byte, bool) {
	val, err := tc.client.Get(ctx, treeKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("tree cache get error", "error", err)
		return nil, false
	}
	slog.Debug("tree cache hit")
	return val, true
}

// Set stores the serialized tree with the configured TTL.
func (tc *TreeCache) Set(ctx context.Context, data []byte) {
	if err := tc.client.Set(ctx, treeKey, data, tc.ttl).Err(); err != nil {
		slog.Warn("tree cache set error", "error", err)
	}
}

// Invalidate drops the cached tree. Called after every category mutation
// and after every path rebuild.
func (tc *TreeCache) Invalidate(ctx context.Context) {
	if err := tc.client.Del(ctx, treeKey).Err(); err != nil {
		slog.Warn("tree cache invalidate error", "error", err)
	}
	slog.Debug("tree cache invalidated")
}
