// Package command classifies incoming messages into bot commands and runs
// the matching handler. Classification is pure; handlers carry the side
// effects.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flemzord/memerelay/internal/telegram"
)

const helpText = "Just send a picture to the bot, it will forward it to the channel."

// Command is one runnable handler bound to a message.
type Command interface {
	Run(ctx context.Context) error
}

// UnknownCommandError reports a slash command with no registered handler.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Name)
}

// Poster submits a message to the moderation pipeline.
type Poster interface {
	Post(ctx context.Context, msg *telegram.Message) error
}

// Explainer runs the explain flow detached from the caller.
type Explainer interface {
	ExplainAsync(msg *telegram.Message)
}

// Messenger sends chat messages.
type Messenger interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
}

// Dispatcher builds and runs commands for incoming messages.
type Dispatcher struct {
	messenger Messenger
	poster    Poster
	explainer Explainer
	channelID int64
	logger    *slog.Logger
}

// NewDispatcher wires a dispatcher. channelID identifies the channel whose
// posts the explain command accepts.
func NewDispatcher(m Messenger, p Poster, e Explainer, channelID int64, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		messenger: m,
		poster:    p,
		explainer: e,
		channelID: channelID,
		logger:    logger,
	}
}

// Build classifies a message. Slash commands resolve through the registry;
// anything else in a private chat is treated as a submission, and group
// chatter is ignored.
func (d *Dispatcher) Build(msg *telegram.Message) (Command, error) {
	if strings.HasPrefix(msg.Text, "/") {
		name, _, _ := strings.Cut(msg.Text[1:], " ")
		// Commands in groups arrive as /explain@botname.
		name, _, _ = strings.Cut(name, "@")

		switch name {
		case "help", "start":
			return &helpCommand{d: d, msg: msg}, nil
		case "forward":
			return &forwardCommand{d: d, msg: msg}, nil
		case "explain":
			return &explainCommand{d: d, msg: msg}, nil
		default:
			return nil, &UnknownCommandError{Name: name}
		}
	}

	if msg.Chat.Type == "private" {
		return &forwardCommand{d: d, msg: msg}, nil
	}
	return ignoreCommand{}, nil
}

// Dispatch builds and runs the command for a message.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *telegram.Message) error {
	cmd, err := d.Build(msg)
	if err != nil {
		return err
	}
	return cmd.Run(ctx)
}

// ignoreCommand is the no-op handler for group chatter.
type ignoreCommand struct{}

func (ignoreCommand) Run(context.Context) error { return nil }

type helpCommand struct {
	d   *Dispatcher
	msg *telegram.Message
}

func (c *helpCommand) Run(ctx context.Context) error {
	_, err := c.d.messenger.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID: c.msg.Chat.ID,
		Text:   helpText,
	})
	return err
}

type forwardCommand struct {
	d   *Dispatcher
	msg *telegram.Message
}

func (c *forwardCommand) Run(ctx context.Context) error {
	if err := c.d.poster.Post(ctx, c.msg); err != nil {
		return fmt.Errorf("could not forward message: %w", err)
	}
	return nil
}

type explainCommand struct {
	d   *Dispatcher
	msg *telegram.Message
}

func (c *explainCommand) Run(ctx context.Context) error {
	if !c.validate(ctx) {
		return nil
	}
	c.d.explainer.ExplainAsync(c.msg)
	return nil
}

// validate checks the command points at an explainable channel post. Each
// failure gets a diagnostic reply so the user can correct the invocation.
func (c *explainCommand) validate(ctx context.Context) bool {
	msg := c.msg
	if msg.Chat.Type != "supergroup" {
		return c.reject(ctx, "The explain command only works in the channel's discussion group.")
	}
	target := msg.ReplyToMessage
	if target == nil {
		return c.reject(ctx, "Reply to the channel post you want explained.")
	}
	if target.SenderChat == nil || target.SenderChat.ID != c.d.channelID {
		return c.reject(ctx, "I can only explain posts from the channel.")
	}
	if !target.HasPhoto() {
		return c.reject(ctx, "I can only explain photos for now, none found in that post.")
	}
	return true
}

func (c *explainCommand) reject(ctx context.Context, text string) bool {
	_, err := c.d.messenger.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:           c.msg.Chat.ID,
		Text:             text,
		ReplyToMessageID: c.msg.MessageID,
	})
	if err != nil {
		c.d.logger.Warn("could not send explain diagnostic",
			"chat_id", c.msg.Chat.ID,
			"error", err,
		)
	}
	return false
}
