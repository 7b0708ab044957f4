package censor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/memerelay/internal/telegram"
)

// fakeScorer records calls and returns a fixed score or error.
type fakeScorer struct {
	score int
	err   error
	calls int
}

func (s *fakeScorer) ScoreMessage(_ context.Context, _ *telegram.Message) (int, error) {
	s.calls++
	return s.score, s.err
}

func photoMessage(userID int64, messageID int) *telegram.Message {
	msg := userMessage(userID, messageID)
	msg.Photo = []telegram.PhotoSize{
		{FileID: "small", FileSize: 20_000, Width: 90, Height: 90},
		{FileID: "big", FileSize: 80_000, Width: 800, Height: 800},
	}
	msg.Caption = "meme"
	return msg
}

func TestNewUserCensorAllowlistBypass(t *testing.T) {
	st := newQuotaStore(t)
	scorer := &fakeScorer{score: 10}
	c := NewNewUserCensor(st, scorer, 7, discardLogger())
	ctx := context.Background()

	if err := st.Allowlist(ctx, 1, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	result, err := c.Check(ctx, userMessage(1, 1))
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !result.Allowed {
		t.Fatal("Allowed = false for allowlisted user")
	}
	if result.Reason != "" {
		t.Errorf("Reason = %q, want empty pass-through", result.Reason)
	}
	if scorer.calls != 0 {
		t.Errorf("scorer calls = %d, want 0 (allowlist bypass)", scorer.calls)
	}
}

func TestNewUserCensorRequiresImage(t *testing.T) {
	st := newQuotaStore(t)
	scorer := &fakeScorer{score: 10}
	c := NewNewUserCensor(st, scorer, 7, discardLogger())

	result, err := c.Check(context.Background(), userMessage(1, 1))
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if result.Allowed {
		t.Fatal("Allowed = true for first post without image")
	}
	if !strings.Contains(result.Reason, "No image") {
		t.Errorf("Reason = %q, want image requirement", result.Reason)
	}
	if scorer.calls != 0 {
		t.Errorf("scorer calls = %d, want 0", scorer.calls)
	}
}

func TestNewUserCensorPassingScoreGrantsAllowlist(t *testing.T) {
	st := newQuotaStore(t)
	scorer := &fakeScorer{score: 8}
	c := NewNewUserCensor(st, scorer, 7, discardLogger())
	ctx := context.Background()

	result, err := c.Check(ctx, photoMessage(1, 1))
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !result.Allowed {
		t.Fatal("Allowed = false for passing score")
	}
	if scorer.calls != 1 {
		t.Errorf("scorer calls = %d, want 1", scorer.calls)
	}

	// Second post must bypass the scorer.
	result, err = c.Check(ctx, photoMessage(1, 2))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Allowed {
		t.Fatal("Allowed = false for allowlisted user on second post")
	}
	if scorer.calls != 1 {
		t.Errorf("scorer calls = %d, want still 1", scorer.calls)
	}
}

func TestNewUserCensorFailingScore(t *testing.T) {
	st := newQuotaStore(t)
	scorer := &fakeScorer{score: 4}
	c := NewNewUserCensor(st, scorer, 7, discardLogger())
	ctx := context.Background()

	result, err := c.Check(ctx, photoMessage(1, 1))
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if result.Allowed {
		t.Fatal("Allowed = true for failing score")
	}
	if !strings.Contains(result.Reason, "7 out of 10") {
		t.Errorf("Reason = %q, want threshold explanation", result.Reason)
	}

	// No grant was written.
	ok, err := st.Allowlisted(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("Allowlisted() = true after failing score")
	}
}

func TestNewUserCensorScorerErrorFailsClosed(t *testing.T) {
	st := newQuotaStore(t)
	scorer := &fakeScorer{err: errors.New("model unavailable")}
	c := NewNewUserCensor(st, scorer, 7, discardLogger())

	result, err := c.Check(context.Background(), photoMessage(1, 1))
	if err != nil {
		t.Fatalf("Check() error: %v (scorer failure should deny, not error)", err)
	}
	if result.Allowed {
		t.Fatal("Allowed = true on scorer failure, want fail closed")
	}
	if result.Reason == "" {
		t.Error("Reason is empty on scorer failure")
	}
}
