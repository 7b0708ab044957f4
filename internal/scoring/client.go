// Package scoring rates meme images through an OpenAI-compatible
// chat completions endpoint with vision support.
package scoring

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/flemzord/memerelay/internal/config"
)

const systemPrompt = "You are a meme critic for a public meme channel. " +
	"Translate the meme's text if it is not in English and explain the joke. " +
	"If the meme relies on grammar or wordplay a language learner at level B1 " +
	"would miss, explain that too. Then rate how funny the meme is on a scale " +
	"from 1 to 10. Respond with a JSON object of the form " +
	`{"score": <1-10>, "commentary": "<your explanation>"} and nothing else.`

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

// maxResponseBytes caps the completion response size.
const maxResponseBytes = 1 << 20

// Judgment is the model's verdict on a meme.
type Judgment struct {
	Score      int    `json:"score"`
	Commentary string `json:"commentary"`
}

// Client calls an OpenAI-compatible /chat/completions endpoint.
type Client struct {
	cfg    config.ScoringConfig
	http   *http.Client
	logger *slog.Logger
}

// NewClient creates a scoring client from config.
func NewClient(cfg config.ScoringConfig, logger *slog.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Wire types for the chat completions endpoint. Message content is a list
// of parts so the image rides along as a data URL.

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Judge scores one meme image. caption is the submitter's caption and may
// be empty; mimeType describes the image bytes (image/jpeg for Telegram
// photos).
func (c *Client) Judge(ctx context.Context, image []byte, mimeType, caption string) (*Judgment, error) {
	if caption == "" {
		caption = "Meme:"
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	body := chatRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: []contentPart{{Type: "text", Text: systemPrompt}}},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: caption},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			}},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in reply", ErrUnparsable)
	}

	judgment, err := parseJudgment(cr.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("meme judged",
		"score", judgment.Score,
		"finish_reason", cr.Choices[0].FinishReason,
	)
	return judgment, nil
}

// handleErrorResponse maps HTTP error status codes to sentinel errors.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimit, body)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", ErrUnavailable, resp.StatusCode, body)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", ErrAuthentication, resp.StatusCode, body)
	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
}

// scorePattern extracts a trailing "N/10" or "N out of 10" mention when the
// model ignores the JSON instruction.
var scorePattern = regexp.MustCompile(`\b(10|[1-9])\s*(?:/|out of)\s*10\b`)

// parseJudgment decodes the model reply. Strict JSON is tried first,
// including replies wrapped in a markdown code fence. If that fails the
// score is extracted by pattern and the full reply becomes the commentary.
func parseJudgment(content string) (*Judgment, error) {
	trimmed := strings.TrimSpace(content)
	candidate := trimmed
	if strings.HasPrefix(candidate, "```") {
		candidate = strings.TrimPrefix(candidate, "```json")
		candidate = strings.TrimPrefix(candidate, "```")
		candidate = strings.TrimSuffix(strings.TrimSpace(candidate), "```")
		candidate = strings.TrimSpace(candidate)
	}

	var j Judgment
	if err := json.Unmarshal([]byte(candidate), &j); err == nil && j.Score >= 1 && j.Score <= 10 {
		return &j, nil
	}

	if m := scorePattern.FindStringSubmatch(trimmed); m != nil {
		score, _ := strconv.Atoi(m[1])
		return &Judgment{Score: score, Commentary: trimmed}, nil
	}

	return nil, fmt.Errorf("%w: %.80q", ErrUnparsable, trimmed)
}
