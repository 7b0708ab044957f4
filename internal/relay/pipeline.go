// Package relay orchestrates the moderation pipeline: admission check,
// conditional forward into the destination channel, quota registration of
// the forwarded copy, and the outcome notification to the submitter.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flemzord/memerelay/internal/censor"
	"github.com/flemzord/memerelay/internal/telegram"
)

// Messenger is the subset of the Bot API client the pipeline needs.
type Messenger interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	ForwardMessage(ctx context.Context, req telegram.ForwardMessageRequest) (*telegram.Message, error)
}

// Registrar records an accepted post against the quota.
type Registrar interface {
	Register(ctx context.Context, userID int64, messageID int, ts time.Time) error
}

// Pipeline runs the check → forward → register → notify sequence.
type Pipeline struct {
	censor    censor.Censor
	registrar Registrar
	locks     *censor.UserLocks
	messenger Messenger
	channelID int64
	logger    *slog.Logger
}

// NewPipeline wires the moderation pipeline. channelID is the destination
// channel posts are forwarded into.
func NewPipeline(c censor.Censor, r Registrar, locks *censor.UserLocks, m Messenger, channelID int64, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		censor:    c,
		registrar: r,
		locks:     locks,
		messenger: m,
		channelID: channelID,
		logger:    logger,
	}
}

// Post moderates one submission. The per-user lock spans check and register
// so concurrent submissions from one user cannot both pass the quota check.
// A forward failure aborts before registration: the user is not charged
// quota for a post that never reached the channel.
func (p *Pipeline) Post(ctx context.Context, msg *telegram.Message) error {
	if msg.From == nil {
		return fmt.Errorf("relay: message %d has no sender", msg.MessageID)
	}
	userID := msg.From.ID

	unlock := p.locks.Lock(userID)
	defer unlock()

	result, err := p.censor.Check(ctx, msg)
	if err != nil {
		checksFailed.Inc()
		// Fail closed, but tell the submitter something actionable. The
		// cause stays in the logs.
		p.notify(ctx, msg, "Could not process your post right now, please try again later")
		return fmt.Errorf("relay: admission check for message %d: %w", msg.MessageID, err)
	}

	if result.Allowed {
		forwarded, err := p.messenger.ForwardMessage(ctx, telegram.ForwardMessageRequest{
			ChatID:     p.channelID,
			FromChatID: msg.Chat.ID,
			MessageID:  msg.MessageID,
		})
		if err != nil {
			forwardsFailed.Inc()
			return fmt.Errorf("relay: could not forward message %d for user %d: %w", msg.MessageID, userID, err)
		}

		p.logger.Info("post forwarded to channel",
			"user_id", userID,
			"message_id", msg.MessageID,
			"forwarded_id", forwarded.MessageID,
		)

		// Register the forwarded copy's ID, not the original's; audit and
		// removal workflows act on the channel copy.
		if err := p.registrar.Register(ctx, userID, forwarded.MessageID, time.Now().UTC()); err != nil {
			return fmt.Errorf("relay: register forwarded message %d: %w", forwarded.MessageID, err)
		}
		postsAllowed.Inc()
	} else {
		postsDenied.Inc()
		p.logger.Info("post rejected",
			"user_id", userID,
			"message_id", msg.MessageID,
			"retry_at", result.RetryAt,
		)
	}

	if result.Reason != "" {
		p.notify(ctx, msg, result.Reason)
	}

	return nil
}

// notify sends text back to the submitter's chat. The decision already took
// effect by the time this runs, so a lost notification is logged, not fatal.
func (p *Pipeline) notify(ctx context.Context, msg *telegram.Message, text string) {
	_, err := p.messenger.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID: msg.Chat.ID,
		Text:   text,
	})
	if err != nil {
		p.logger.Warn("could not notify submitter",
			"user_id", msg.From.ID,
			"message_id", msg.MessageID,
			"error", err,
		)
	}
}
