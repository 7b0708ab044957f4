// Package store persists the quota bookkeeping behind the censor policies:
// per-user minute buckets, append-only post records, and the new-user
// allowlist. Two drivers exist: sqlite (default) and redis.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/memerelay/internal/config"
)

// MinuteBucket aggregates the posts of one user within one minute.
// Buckets are only created or incremented, never decremented.
type MinuteBucket struct {
	UserID      int64
	WindowStart time.Time
	Count       int
}

// PostRecord is one accepted post. It references the forwarded copy's
// message ID for later moderation and audit.
type PostRecord struct {
	ID        string
	UserID    int64
	MessageID int
	CreatedAt time.Time
}

// AllowlistEntry is a time-bounded new-user trust grant.
type AllowlistEntry struct {
	UserID    int64
	GrantedAt time.Time
	ExpiresAt time.Time
}

// Store is the persistence interface consumed by the censor policies.
// All methods tolerate concurrent callers.
type Store interface {
	// RegisterPost upserts the minute bucket for (userID, ts truncated to
	// the minute) and appends a post record. Both rows carry the retention TTL.
	RegisterPost(ctx context.Context, userID int64, messageID int, ts time.Time) error

	// BucketsSince returns the user's non-expired minute buckets with
	// WindowStart >= since, newest first.
	BucketsSince(ctx context.Context, userID int64, since time.Time) ([]MinuteBucket, error)

	// Allowlisted reports whether a non-expired allowlist entry exists.
	Allowlisted(ctx context.Context, userID int64) (bool, error)

	// Allowlist inserts a trust grant starting at ts with the allowlist TTL.
	Allowlist(ctx context.Context, userID int64, ts time.Time) error

	// PurgeExpired removes rows past their expiry and returns how many.
	PurgeExpired(ctx context.Context) (int64, error)

	Close() error
}

// Options carries the TTLs shared by both drivers.
type Options struct {
	RetentionTTL time.Duration
	AllowlistTTL time.Duration
}

// Open constructs the store selected by the storage config.
func Open(cfg config.StorageConfig, opts Options, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return openSQLite(cfg.SQLite, opts, logger)
	case "redis":
		return openRedis(cfg.Redis, opts, logger)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// truncateMinute drops seconds and below, in UTC.
func truncateMinute(ts time.Time) time.Time {
	return ts.UTC().Truncate(time.Minute)
}
