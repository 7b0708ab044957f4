package censor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/memerelay/internal/store"
	"github.com/flemzord/memerelay/internal/telegram"
)

// Compile-time interface guard.
var _ Censor = (*NewUserCensor)(nil)

// Scorer judges the image of a message together with its caption and
// returns a score on a 1-10 scale.
type Scorer interface {
	ScoreMessage(ctx context.Context, msg *telegram.Message) (int, error)
}

// NewUserCensor requires first-time posters to clear a quality bar before
// unrestricted posting. A passing first post earns a time-bounded
// allowlist grant; after that the gate approves without scoring.
type NewUserCensor struct {
	store     store.Store
	scorer    Scorer
	threshold int
	logger    *slog.Logger
}

// NewNewUserCensor creates the first-post quality gate.
func NewNewUserCensor(st store.Store, scorer Scorer, threshold int, logger *slog.Logger) *NewUserCensor {
	return &NewUserCensor{
		store:     st,
		scorer:    scorer,
		threshold: threshold,
		logger:    logger,
	}
}

// Check implements Censor. The gate fails closed: if the allowlist lookup
// or the scorer errors, the post is rejected rather than silently admitted.
func (c *NewUserCensor) Check(ctx context.Context, msg *telegram.Message) (Result, error) {
	if msg.From == nil {
		return Result{}, errNoSender
	}
	userID := msg.From.ID

	allowed, err := c.store.Allowlisted(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("censor: allowlist lookup for user %d: %w", userID, err)
	}
	if allowed {
		c.logger.Info("new user censor passed allowlisted user", "user_id", userID)
		return Result{Allowed: true}, nil
	}

	if !msg.HasPhoto() {
		c.logger.Info("new user censor rejected post", "user_id", userID, "cause", "no image")
		return Result{
			Allowed: false,
			Reason:  "No image in a message",
		}, nil
	}

	c.logger.Info("new user censor scoring first post", "user_id", userID, "message_id", msg.MessageID)
	score, err := c.scorer.ScoreMessage(ctx, msg)
	if err != nil {
		// Fail closed on scorer trouble; the reason stays neutral so the
		// outage is not advertised to submitters.
		c.logger.Error("new user censor scoring failed",
			"user_id", userID,
			"message_id", msg.MessageID,
			"error", err,
		)
		return Result{
			Allowed: false,
			Reason:  "Could not review your post right now, please try again later",
		}, nil
	}

	if score >= c.threshold {
		if err := c.store.Allowlist(ctx, userID, time.Now().UTC()); err != nil {
			return Result{}, fmt.Errorf("censor: grant allowlist for user %d: %w", userID, err)
		}
		c.logger.Info("new user censor passed post", "user_id", userID, "score", score)
		return Result{Allowed: true}, nil
	}

	c.logger.Info("new user censor rejected post", "user_id", userID, "score", score)
	return Result{
		Allowed: false,
		Reason: fmt.Sprintf(
			"Sorry - to help prevent automated spam, your first meme must receive "+
				"a score of at least %d out of 10 before it can be published. "+
				"After that, you'll be added to the allowlist (for 6 months) and "+
				"can post memes normally.",
			c.threshold,
		),
	}, nil
}
