// Package memo provides a Redis-backed memoization cache for candidate
// discovery. Discovery is the most expensive stage of a run, so repeated
// runs over the same universe on the same calendar day reuse the earlier
// result instead of invoking the capability model again.
//
// The cache degrades gracefully: any Redis failure is treated as a miss on
// read and ignored on write, so a run never fails because the cache is
// unavailable.
package memo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/porta/pkg/blackboard"
)

// DefaultTTL is how long a memoized discovery result survives. One day is
// enough: the key already changes at every UTC day boundary.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "porta:discovery:"

// Cache memoizes discovery results in Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a cache over an existing Redis client. A zero ttl means
// DefaultTTL.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// keyInput is the canonical form hashed into the cache key. Universe order
// must not matter, and neither must the time-of-day component of asOf.
type keyInput struct {
	Day      string   `json:"day"`
	Universe []string `json:"universe"`
}

// KeyFor derives the cache key for a discovery request. Two requests map to
// the same key iff they share a UTC calendar day and the same universe set,
// regardless of ordering.
func KeyFor(asOf time.Time, universe []string) string {
	sorted := append([]string(nil), universe...)
	sort.Strings(sorted)

	input := keyInput{
		Day:      asOf.UTC().Format("2006-01-02"),
		Universe: sorted,
	}
	raw, _ := json.Marshal(input)
	sum := sha256.Sum256(raw)
	return keyPrefix + hex.EncodeToString(sum[:])
}

// entry is the stored payload.
type entry struct {
	SnapshotID string                 `json:"snapshot_id"`
	Candidates []blackboard.Candidate `json:"candidates"`
	StoredAt   time.Time              `json:"stored_at"`
}

// Get looks up a memoized result. The boolean reports a hit; every failure
// path (connection error, missing key, corrupt payload) reports a miss so
// the caller simply recomputes.
func (c *Cache) Get(ctx context.Context, key string) (string, []blackboard.Candidate, bool) {
	if c == nil || c.client == nil {
		return "", nil, false
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return "", nil, false
	}
	if err != nil {
		log.Printf("[Memo] cache read failed, treating as miss: %v", err)
		return "", nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		log.Printf("[Memo] corrupt cache entry at %s, treating as miss: %v", key, err)
		return "", nil, false
	}
	return e.SnapshotID, e.Candidates, true
}

// Put stores a discovery result best-effort. Write failures are logged and
// swallowed.
func (c *Cache) Put(ctx context.Context, key, snapshotID string, candidates []blackboard.Candidate) {
	if c == nil || c.client == nil {
		return
	}

	raw, err := json.Marshal(entry{
		SnapshotID: snapshotID,
		Candidates: candidates,
		StoredAt:   time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[Memo] failed to encode cache entry: %v", err)
		return
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		log.Printf("[Memo] cache write failed: %v", err)
	}
}

// Ping verifies connectivity. Callers that want to surface cache health at
// startup use this; stages never do.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("memo cache not configured")
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("memo cache unreachable: %w", err)
	}
	return nil
}
