// internal/storage/redis.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"mcp-glucose-insights/internal/models"
)

// RedisInsightCache stores insights as single keys, so a SET is the atomic upsert.
type RedisInsightCache struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

var _ InsightCache = (*RedisInsightCache)(nil)

type redisRecord struct {
	ID        string          `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// NewRedisInsightCache connects and pings addr. A zero ttl keeps keys forever.
func NewRedisInsightCache(ctx context.Context, addr, prefix string, ttl time.Duration) (*RedisInsightCache, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	if prefix == "" {
		prefix = "insights"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisInsightCache{rdb: rdb, prefix: prefix, ttl: ttl}, nil
}

func (c *RedisInsightCache) Close() error {
	return c.rdb.Close()
}

func (c *RedisInsightCache) key(subjectID, date string, kind models.InsightKind) string {
	return fmt.Sprintf("%s:%s:%s:%s", c.prefix, subjectID, kind, date)
}

func (c *RedisInsightCache) PutInsight(ctx context.Context, subjectID, date string, kind models.InsightKind, payload Payload) error {
	raw, err := EncodePayload(kind, payload)
	if err != nil {
		return err
	}
	rec, err := json.Marshal(redisRecord{ID: uuid.NewString(), Payload: raw, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal cache record: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(subjectID, date, kind), rec, c.ttl).Err(); err != nil {
		return storageErr("failed to set insight", err)
	}
	return nil
}

func (c *RedisInsightCache) GetInsight(ctx context.Context, subjectID, date string, kind models.InsightKind) (*CachedInsight, error) {
	raw, err := c.rdb.Get(ctx, c.key(subjectID, date, kind)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("failed to get insight", err)
	}
	return decodeRedisRecord(raw, subjectID, date, kind)
}

// ListInsights walks the calendar days of [from, to] and fetches them with one MGET.
func (c *RedisInsightCache) ListInsights(ctx context.Context, subjectID, from, to string, kind models.InsightKind) ([]CachedInsight, error) {
	start, err := time.Parse(models.DateLayout, from)
	if err != nil {
		return nil, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	end, err := time.Parse(models.DateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("invalid to date %q: %w", to, err)
	}

	var dates, keys []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(models.DateLayout)
		dates = append(dates, date)
		keys = append(keys, c.key(subjectID, date, kind))
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storageErr("failed to mget insights", err)
	}

	var out []CachedInsight
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		insight, err := decodeRedisRecord([]byte(s), subjectID, dates[i], kind)
		if err != nil {
			return nil, err
		}
		out = append(out, *insight)
	}
	return out, nil
}

func decodeRedisRecord(raw []byte, subjectID, date string, kind models.InsightKind) (*CachedInsight, error) {
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse cache record: %w", err)
	}
	version, data, err := DecodePayload(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("insight %s/%s/%s: %w", subjectID, date, kind, err)
	}
	return &CachedInsight{
		ID:        rec.ID,
		SubjectID: subjectID,
		Date:      date,
		Kind:      kind,
		Version:   version,
		Data:      data,
		CreatedAt: rec.UpdatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
