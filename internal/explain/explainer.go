// Package explain turns a meme photo into a scored explanation. It backs
// both the /explain command and the new-user quality gate.
package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flemzord/memerelay/internal/censor"
	"github.com/flemzord/memerelay/internal/scoring"
	"github.com/flemzord/memerelay/internal/search"
	"github.com/flemzord/memerelay/internal/telegram"
)

// maxPhotoBytes is the largest photo size sent to the model. Telegram
// provides several downscaled sizes per photo; the largest one under this
// cap is used.
const maxPhotoBytes = 100_000

// ErrNoSuitablePhoto indicates the message has no photo size under the cap.
var ErrNoSuitablePhoto = errors.New("explain: no suitable photo size")

// FileFetcher resolves and downloads Telegram files.
type FileFetcher interface {
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	DownloadFile(ctx context.Context, filePath string) ([]byte, error)
}

// Replier sends reply messages.
type Replier interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
}

// Judge rates a meme image.
type Judge interface {
	Judge(ctx context.Context, image []byte, mimeType, caption string) (*scoring.Judgment, error)
}

// NewsSource provides background search results for a query.
type NewsSource interface {
	Search(ctx context.Context, query string) ([]search.Result, error)
}

// Explainer downloads a meme photo, judges it, and replies with the verdict.
type Explainer struct {
	files   FileFetcher
	replier Replier
	judge   Judge
	news    NewsSource // nil when search is disabled
	timeout time.Duration
	logger  *slog.Logger
}

var _ censor.Scorer = (*Explainer)(nil)

// NewExplainer wires an explainer. news may be nil.
func NewExplainer(files FileFetcher, replier Replier, judge Judge, news NewsSource, timeout time.Duration, logger *slog.Logger) *Explainer {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Explainer{
		files:   files,
		replier: replier,
		judge:   judge,
		news:    news,
		timeout: timeout,
		logger:  logger,
	}
}

// fetchImage downloads the largest photo size of msg under the cap.
func (e *Explainer) fetchImage(ctx context.Context, msg *telegram.Message) ([]byte, error) {
	var best *telegram.PhotoSize
	for i := range msg.Photo {
		p := &msg.Photo[i]
		if p.FileSize >= maxPhotoBytes {
			continue
		}
		if best == nil || p.FileSize > best.FileSize {
			best = p
		}
	}
	if best == nil {
		return nil, ErrNoSuitablePhoto
	}

	file, err := e.files.GetFile(ctx, best.FileID)
	if err != nil {
		return nil, fmt.Errorf("explain: resolve file %s: %w", best.FileID, err)
	}
	data, err := e.files.DownloadFile(ctx, file.FilePath)
	if err != nil {
		return nil, fmt.Errorf("explain: download file %s: %w", best.FileID, err)
	}
	return data, nil
}

// judgeMessage downloads the message's photo and asks the model for a
// verdict, optionally enriched with news context around the caption.
func (e *Explainer) judgeMessage(ctx context.Context, msg *telegram.Message) (*scoring.Judgment, error) {
	image, err := e.fetchImage(ctx, msg)
	if err != nil {
		return nil, err
	}

	caption := msg.Caption
	if e.news != nil && caption != "" {
		results, err := e.news.Search(ctx, caption)
		if err != nil {
			// Context is optional; judge without it.
			e.logger.Warn("news lookup failed", "error", err)
		} else if len(results) > 0 {
			var b strings.Builder
			b.WriteString(caption)
			b.WriteString("\n\nRecent news that may be relevant:\n")
			for _, r := range results {
				fmt.Fprintf(&b, "- %s: %s\n", r.Title, r.Snippet)
			}
			caption = b.String()
		}
	}

	return e.judge.Judge(ctx, image, "image/jpeg", caption)
}

// ScoreMessage rates the message's photo on a 1-10 scale. It implements
// the quality gate's scorer contract.
func (e *Explainer) ScoreMessage(ctx context.Context, msg *telegram.Message) (int, error) {
	judgment, err := e.judgeMessage(ctx, msg)
	if err != nil {
		return 0, err
	}
	return judgment.Score, nil
}

// Explain judges the photo in the message cmd replies to and posts the
// verdict as a threaded reply to cmd.
func (e *Explainer) Explain(ctx context.Context, cmd *telegram.Message) error {
	target := cmd.ReplyToMessage
	if target == nil {
		return errors.New("explain: command has no reply target")
	}

	judgment, err := e.judgeMessage(ctx, target)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("%s\n\nScore: %d/10", judgment.Commentary, judgment.Score)
	_, err = e.replier.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:           cmd.Chat.ID,
		Text:             text,
		ReplyToMessageID: cmd.MessageID,
	})
	if err != nil {
		return fmt.Errorf("explain: reply in chat %d: %w", cmd.Chat.ID, err)
	}
	return nil
}

// ExplainAsync runs Explain in a goroutine detached from the caller's
// request. Failures are logged; the webhook response never waits on the
// model.
func (e *Explainer) ExplainAsync(cmd *telegram.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		if err := e.Explain(ctx, cmd); err != nil {
			e.logger.Error("explain failed",
				"chat_id", cmd.Chat.ID,
				"message_id", cmd.MessageID,
				"error", err,
			)
		}
	}()
}
