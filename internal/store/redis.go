package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flemzord/memerelay/internal/config"
)

// Compile-time interface guard.
var _ Store = (*redisStore)(nil)

// redisStore implements Store backed by Redis. Post records and allowlist
// grants expire natively via key TTLs; minute buckets live in a per-user
// hash whose stale fields are trimmed by PurgeExpired.
type redisStore struct {
	client *redis.Client
	opts   Options
	logger *slog.Logger
}

func openRedis(cfg config.RedisConfig, opts Options, logger *slog.Logger) (*redisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	logger.Info("redis quota store connected", "addr", cfg.Addr, "db", cfg.DB)

	return &redisStore{client: client, opts: opts, logger: logger}, nil
}

func bucketsKey(userID int64) string {
	return "quota:buckets:" + strconv.FormatInt(userID, 10)
}

func allowKey(userID int64) string {
	return "quota:allow:" + strconv.FormatInt(userID, 10)
}

// redisPostRecord is the JSON body stored per accepted post.
type redisPostRecord struct {
	UserID    int64     `json:"user_id"`
	MessageID int       `json:"message_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterPost implements Store.
func (s *redisStore) RegisterPost(ctx context.Context, userID int64, messageID int, ts time.Time) error {
	minute := truncateMinute(ts)
	field := strconv.FormatInt(minute.Unix(), 10)
	key := bucketsKey(userID)

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	// Key TTL restarts on every post; individual fields are aged out by
	// the window filter in BucketsSince and by PurgeExpired.
	pipe.Expire(ctx, key, s.opts.RetentionTTL)

	record, err := json.Marshal(redisPostRecord{
		UserID:    userID,
		MessageID: messageID,
		CreatedAt: ts.UTC(),
	})
	if err != nil {
		return fmt.Errorf("redis: marshal post record: %w", err)
	}
	pipe.Set(ctx, "quota:post:"+uuid.NewString(), record, s.opts.RetentionTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: register post: %w", err)
	}
	return nil
}

// BucketsSince implements Store.
func (s *redisStore) BucketsSince(ctx context.Context, userID int64, since time.Time) ([]MinuteBucket, error) {
	fields, err := s.client.HGetAll(ctx, bucketsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read buckets: %w", err)
	}

	cutoff := time.Now().UTC().Add(-s.opts.RetentionTTL)

	var buckets []MinuteBucket
	for field, raw := range fields {
		unix, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis: parse bucket field %q: %w", field, err)
		}
		count, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("redis: parse bucket count %q: %w", raw, err)
		}
		start := time.Unix(unix, 0).UTC()
		if start.Before(since.UTC()) || start.Before(cutoff) {
			continue
		}
		buckets = append(buckets, MinuteBucket{
			UserID:      userID,
			WindowStart: start,
			Count:       count,
		})
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].WindowStart.After(buckets[j].WindowStart)
	})
	return buckets, nil
}

// Allowlisted implements Store. Key expiry is native, so existence is the check.
func (s *redisStore) Allowlisted(ctx context.Context, userID int64) (bool, error) {
	n, err := s.client.Exists(ctx, allowKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: check allowlist: %w", err)
	}
	return n > 0, nil
}

// Allowlist implements Store.
func (s *redisStore) Allowlist(ctx context.Context, userID int64, ts time.Time) error {
	err := s.client.Set(ctx, allowKey(userID), ts.UTC().Format(time.RFC3339Nano), s.opts.AllowlistTTL).Err()
	if err != nil {
		return fmt.Errorf("redis: write allowlist entry: %w", err)
	}
	return nil
}

// PurgeExpired implements Store. Keys expire natively; this trims stale
// minute fields from bucket hashes that stayed alive through recent posts.
func (s *redisStore) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.opts.RetentionTTL).Unix()

	var (
		total  int64
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "quota:buckets:*", 100).Result()
		if err != nil {
			return total, fmt.Errorf("redis: scan buckets: %w", err)
		}

		for _, key := range keys {
			fields, err := s.client.HKeys(ctx, key).Result()
			if err != nil {
				return total, fmt.Errorf("redis: list bucket fields: %w", err)
			}
			var stale []string
			for _, field := range fields {
				unix, err := strconv.ParseInt(field, 10, 64)
				if err != nil {
					continue
				}
				if unix < cutoff {
					stale = append(stale, field)
				}
			}
			if len(stale) > 0 {
				n, err := s.client.HDel(ctx, key, stale...).Result()
				if err != nil {
					return total, fmt.Errorf("redis: trim bucket fields: %w", err)
				}
				total += n
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return total, nil
}

// Close implements Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}
