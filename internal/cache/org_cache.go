package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"decision-service/internal/models"
)

// orgSnapshotPayload is the wire form of a cached snapshot; indexes are
// rebuilt on read.
type orgSnapshotPayload struct {
	Users       []models.OrgUser    `json:"users"`
	Roles       []models.OrgRole    `json:"roles"`
	Departments []models.Department `json:"departments"`
	Positions   []models.Position   `json:"positions"`
}

// OrgCache handles caching of per-tenant org snapshots in Redis
type OrgCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOrgCache creates a new org snapshot cache instance
func NewOrgCache(host string, port int, password string, db int, ttlSeconds int) (*OrgCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		// Return cache with nil client - will gracefully degrade to no caching
		return &OrgCache{
			client: nil,
			ttl:    time.Duration(ttlSeconds) * time.Second,
		}, nil
	}

	return &OrgCache{
		client: client,
		ttl:    time.Duration(ttlSeconds) * time.Second,
	}, nil
}

func (c *OrgCache) cacheKey(tenantID string) string {
	return fmt.Sprintf("orgsnap:%s", tenantID)
}

// Get retrieves the cached org snapshot for a tenant
func (c *OrgCache) Get(ctx context.Context, tenantID string) (*models.OrgSnapshot, error) {
	if c.client == nil {
		return nil, nil // Cache unavailable, return nil
	}

	data, err := c.client.Get(ctx, c.cacheKey(tenantID)).Bytes()
	if err == redis.Nil {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}

	var payload orgSnapshotPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	return models.NewOrgSnapshot(payload.Users, payload.Roles, payload.Departments, payload.Positions), nil
}

// Set caches the org snapshot for a tenant
func (c *OrgCache) Set(ctx context.Context, tenantID string, snapshot *models.OrgSnapshot) error {
	if c.client == nil {
		return nil // Cache unavailable, silently skip
	}

	data, err := json.Marshal(orgSnapshotPayload{
		Users:       snapshot.Users,
		Roles:       snapshot.Roles,
		Departments: snapshot.Departments,
		Positions:   snapshot.Positions,
	})
	if err != nil {
		return err
	}

	return c.client.Set(ctx, c.cacheKey(tenantID), data, c.ttl).Err()
}

// Invalidate removes the cached snapshot for a tenant. Call this whenever
// the directory changes so decisions never resolve against stale approvers
// past the TTL window.
func (c *OrgCache) Invalidate(ctx context.Context, tenantID string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.cacheKey(tenantID)).Err()
}

// Close closes the Redis connection
func (c *OrgCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsAvailable returns true if the cache is available
func (c *OrgCache) IsAvailable() bool {
	return c.client != nil
}
