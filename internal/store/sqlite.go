package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/memerelay/internal/config"

	_ "modernc.org/sqlite" // SQLite driver registration
)

// Compile-time interface guard.
var _ Store = (*sqliteStore)(nil)

const schemaVersion = 1

// sqliteTimeFormat is fixed width so lexicographic comparison of the TEXT
// columns matches chronological order. All stored times are UTC.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z"

// schemaStatements are executed in order to create the database schema.
// All use IF NOT EXISTS for idempotent re-application.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS buckets (
		user_id      INTEGER NOT NULL,
		window_start TEXT    NOT NULL,
		count        INTEGER NOT NULL DEFAULT 1,
		expires_at   TEXT    NOT NULL,
		PRIMARY KEY (user_id, window_start)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_buckets_expiry ON buckets(expires_at)`,

	`CREATE TABLE IF NOT EXISTS posts (
		id         TEXT PRIMARY KEY,
		user_id    INTEGER NOT NULL,
		message_id INTEGER NOT NULL,
		created_at TEXT    NOT NULL,
		expires_at TEXT    NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_posts_expiry ON posts(expires_at)`,

	`CREATE TABLE IF NOT EXISTS allowlist (
		user_id    INTEGER PRIMARY KEY,
		granted_at TEXT NOT NULL,
		expires_at TEXT NOT NULL
	)`,
}

// sqliteStore implements Store backed by modernc.org/sqlite. SQLite has no
// native TTL, so expiry is enforced twice: queries filter on expires_at and
// a cron job calls PurgeExpired.
type sqliteStore struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger
}

func openSQLite(cfg config.SQLiteConfig, opts Options, logger *slog.Logger) (*sqliteStore, error) {
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", cfg.Path, err)
	}

	// SQLite handles one writer at a time; limit pool to 1 connection
	// so PRAGMAs apply consistently.
	db.SetMaxOpenConns(1)

	if cfg.WALEnabled() {
		if _, err := db.ExecContext(context.TODO(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(context.TODO(), fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("sqlite quota store opened", "path", cfg.Path, "wal", cfg.WALEnabled())

	return &sqliteStore{db: db, opts: opts, logger: logger}, nil
}

// migrate creates or updates the database schema to the latest version.
// All DDL uses IF NOT EXISTS, making migration idempotent.
func migrate(db *sql.DB) error {
	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("sqlite: create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("sqlite: read schema version: %w", err)
	}

	if current >= schemaVersion {
		return nil
	}

	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: apply schema: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, "INSERT OR REPLACE INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("sqlite: record schema version: %w", err)
	}

	return nil
}

// RegisterPost implements Store. Bucket upsert and post append run in one
// transaction so a crash cannot count a post without its audit record.
func (s *sqliteStore) RegisterPost(ctx context.Context, userID int64, messageID int, ts time.Time) error {
	minute := truncateMinute(ts)
	expires := ts.UTC().Add(s.opts.RetentionTTL)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin register: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO buckets (user_id, window_start, count, expires_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(user_id, window_start)
		DO UPDATE SET count = count + 1, expires_at = excluded.expires_at`,
		userID, minute.Format(sqliteTimeFormat), expires.Format(sqliteTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("sqlite: upsert bucket: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (id, user_id, message_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), userID, messageID,
		ts.UTC().Format(sqliteTimeFormat), expires.Format(sqliteTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert post record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit register: %w", err)
	}
	return nil
}

// BucketsSince implements Store.
func (s *sqliteStore) BucketsSince(ctx context.Context, userID int64, since time.Time) ([]MinuteBucket, error) {
	now := time.Now().UTC()
	rows, err := s.db.QueryContext(ctx, `
		SELECT window_start, count
		FROM buckets
		WHERE user_id = ? AND window_start >= ? AND expires_at > ?
		ORDER BY window_start DESC`,
		userID, since.UTC().Format(sqliteTimeFormat), now.Format(sqliteTimeFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query buckets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var buckets []MinuteBucket
	for rows.Next() {
		var (
			startStr string
			count    int
		)
		if err := rows.Scan(&startStr, &count); err != nil {
			return nil, fmt.Errorf("sqlite: scan bucket: %w", err)
		}
		start, err := time.Parse(sqliteTimeFormat, startStr)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse window_start %q: %w", startStr, err)
		}
		buckets = append(buckets, MinuteBucket{
			UserID:      userID,
			WindowStart: start,
			Count:       count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan buckets rows: %w", err)
	}
	return buckets, nil
}

// Allowlisted implements Store.
func (s *sqliteStore) Allowlisted(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM allowlist
		WHERE user_id = ? AND expires_at > ?`,
		userID, time.Now().UTC().Format(sqliteTimeFormat),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: query allowlist: %w", err)
	}
	return n > 0, nil
}

// Allowlist implements Store. A grant is written once; re-granting replaces
// the row, which can only happen after the previous grant expired.
func (s *sqliteStore) Allowlist(ctx context.Context, userID int64, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO allowlist (user_id, granted_at, expires_at)
		VALUES (?, ?, ?)`,
		userID,
		ts.UTC().Format(sqliteTimeFormat),
		ts.UTC().Add(s.opts.AllowlistTTL).Format(sqliteTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert allowlist entry: %w", err)
	}
	return nil
}

// PurgeExpired implements Store.
func (s *sqliteStore) PurgeExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(sqliteTimeFormat)
	var total int64
	for _, table := range []string{"buckets", "posts", "allowlist"} {
		res, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE expires_at <= ?", now)
		if err != nil {
			return total, fmt.Errorf("sqlite: purge %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("sqlite: purge %s rows affected: %w", table, err)
		}
		total += n
	}
	return total, nil
}

// Close implements Store.
func (s *sqliteStore) Close() error {
	return s.db.Close()
}
