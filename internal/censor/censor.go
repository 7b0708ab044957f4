// Package censor implements the admission policies that decide whether a
// user's submission may be relayed to the channel: a rolling time-window
// rate limit, a first-post quality gate, and their ordered composition.
package censor

import (
	"context"
	"time"

	"github.com/flemzord/memerelay/internal/telegram"
)

// Result is the outcome of a policy evaluation. Allowed, Remaining and
// RetryAt are the machine-checkable decision; Reason is the user-facing
// text rendered from them. Results are produced fresh on every check and
// never cached.
type Result struct {
	Allowed bool
	Reason  string

	// Remaining is how many posts are left after the one being admitted.
	// Only meaningful when Allowed is true.
	Remaining int

	// RetryAt is when the next slot reopens. Zero when the window is not
	// exhausted.
	RetryAt time.Time
}

// Censor decides whether a message may be posted. Check must be free of
// side effects so callers can invoke it speculatively; registration of an
// accepted post is a separate, explicit step.
type Censor interface {
	Check(ctx context.Context, msg *telegram.Message) (Result, error)
}
