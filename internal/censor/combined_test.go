package censor

import (
	"context"
	"errors"
	"testing"

	"github.com/flemzord/memerelay/internal/telegram"
)

// stubCensor returns a canned result and counts invocations.
type stubCensor struct {
	result Result
	err    error
	calls  int
}

func (s *stubCensor) Check(_ context.Context, _ *telegram.Message) (Result, error) {
	s.calls++
	return s.result, s.err
}

func TestCombinedShortCircuit(t *testing.T) {
	first := &stubCensor{result: Result{Allowed: false, Reason: "limit reached"}}
	second := &stubCensor{result: Result{Allowed: true}}
	c := NewCombinedCensor(first, second)

	result, err := c.Check(context.Background(), userMessage(1, 1))
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if result.Allowed {
		t.Fatal("Allowed = true, want rejection returned verbatim")
	}
	if result.Reason != "limit reached" {
		t.Errorf("Reason = %q, want %q", result.Reason, "limit reached")
	}
	if second.calls != 0 {
		t.Errorf("second censor calls = %d, want 0 (short-circuit)", second.calls)
	}
}

func TestCombinedLastNonEmptyReasonWins(t *testing.T) {
	first := &stubCensor{result: Result{Allowed: true, Reason: "1 left for today", Remaining: 1}}
	second := &stubCensor{result: Result{Allowed: true}}
	c := NewCombinedCensor(first, second)

	result, err := c.Check(context.Background(), userMessage(1, 1))
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if !result.Allowed {
		t.Fatal("Allowed = false, want approval")
	}
	if result.Reason != "1 left for today" {
		t.Errorf("Reason = %q, want the informative approval text", result.Reason)
	}
	if result.Remaining != 1 {
		t.Errorf("Remaining = %d, want 1 (carried from the reasoned result)", result.Remaining)
	}
}

func TestCombinedAllSilentApprovals(t *testing.T) {
	c := NewCombinedCensor(&stubCensor{result: Result{Allowed: true}}, &stubCensor{result: Result{Allowed: true}})

	result, err := c.Check(context.Background(), userMessage(1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !result.Allowed {
		t.Fatal("Allowed = false")
	}
	if result.Reason != "" {
		t.Errorf("Reason = %q, want empty", result.Reason)
	}
}

func TestCombinedPropagatesErrors(t *testing.T) {
	boom := &stubCensor{err: errors.New("store down")}
	second := &stubCensor{result: Result{Allowed: true}}
	c := NewCombinedCensor(boom, second)

	if _, err := c.Check(context.Background(), userMessage(1, 1)); err == nil {
		t.Fatal("Check() should propagate censor errors")
	}
	if second.calls != 0 {
		t.Errorf("second censor calls = %d, want 0", second.calls)
	}
}
