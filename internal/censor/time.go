package censor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/memerelay/internal/store"
	"github.com/flemzord/memerelay/internal/telegram"
)

// Compile-time interface guard.
var _ Censor = (*TimeCensor)(nil)

// errNoSender is returned when a message has no From field; such updates
// should never reach a censor.
var errNoSender = errors.New("censor: message has no sender")

// TimeCensor enforces "at most limit posts per rolling horizon" per user,
// reading minute buckets from the quota store.
type TimeCensor struct {
	store   store.Store
	limit   int
	horizon time.Duration
	loc     *time.Location
	logger  *slog.Logger
}

// NewTimeCensor creates a time-window rate limiter. Times in user-facing
// text are rendered in loc.
func NewTimeCensor(st store.Store, limit int, horizon time.Duration, loc *time.Location, logger *slog.Logger) *TimeCensor {
	return &TimeCensor{
		store:   st,
		limit:   limit,
		horizon: horizon,
		loc:     loc,
		logger:  logger,
	}
}

// Check implements Censor. It never mutates state; call Register after the
// post has actually been forwarded.
func (c *TimeCensor) Check(ctx context.Context, msg *telegram.Message) (Result, error) {
	if msg.From == nil {
		return Result{}, errNoSender
	}
	userID := msg.From.ID
	since := time.Now().UTC().Add(-c.horizon)

	buckets, err := c.store.BucketsSince(ctx, userID, since)
	if err != nil {
		return Result{}, fmt.Errorf("censor: read quota history for user %d: %w", userID, err)
	}

	var (
		total       int
		canPostFrom time.Time
	)
	for _, bucket := range buckets {
		total += bucket.Count
		// Newest first: the bucket under the cursor is the oldest counted
		// so far, and the window reopens when it ages out.
		canPostFrom = bucket.WindowStart.Add(c.horizon)
		if total >= c.limit {
			c.logger.Info("time censor rejected post",
				"user_id", userID,
				"posts_in_window", total,
				"retry_at", canPostFrom,
			)
			return Result{
				Allowed: false,
				RetryAt: canPostFrom,
				Reason: fmt.Sprintf(
					"You have %d+ posts in the last %s\nYou can post from %s",
					c.limit, c.horizon, c.formatTime(canPostFrom),
				),
			}, nil
		}
	}

	// The post being admitted is not registered yet, hence the -1.
	remaining := c.limit - total - 1
	if remaining < 0 {
		remaining = 0
	}

	result := Result{
		Allowed:   true,
		Remaining: remaining,
		Reason:    fmt.Sprintf("Message sent, %d left for today", remaining),
	}
	if total > 0 && remaining == 0 {
		result.RetryAt = canPostFrom
		result.Reason += "\nYou can create next post from " + c.formatTime(canPostFrom)
	}

	c.logger.Info("time censor passed post",
		"user_id", userID,
		"posts_in_window", total,
		"remaining", remaining,
	)
	return result, nil
}

// Register records an accepted post. Callers must invoke it exactly once
// per post, after Check allowed it and the forward succeeded, passing the
// forwarded copy's message ID.
func (c *TimeCensor) Register(ctx context.Context, userID int64, messageID int, ts time.Time) error {
	if err := c.store.RegisterPost(ctx, userID, messageID, ts); err != nil {
		return fmt.Errorf("censor: register post for user %d: %w", userID, err)
	}
	return nil
}

func (c *TimeCensor) formatTime(t time.Time) string {
	return t.In(c.loc).Format("2006-01-02 15:04 MST")
}
