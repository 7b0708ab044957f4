package censor

import (
	"context"

	"github.com/flemzord/memerelay/internal/telegram"
)

// Compile-time interface guard.
var _ Censor = (*CombinedCensor)(nil)

// CombinedCensor chains censors in registration order and short-circuits on
// the first rejection. Cheap checks should be registered before ones that
// call out to external services.
type CombinedCensor struct {
	censors []Censor
}

// NewCombinedCensor composes the given censors. Order matters.
func NewCombinedCensor(censors ...Censor) *CombinedCensor {
	return &CombinedCensor{censors: censors}
}

// Check implements Censor. A rejection is returned verbatim and later
// censors are not evaluated. When all approve, the result carries the last
// non-empty reason so the most informative approval text surfaces.
func (c *CombinedCensor) Check(ctx context.Context, msg *telegram.Message) (Result, error) {
	var approved Result
	approved.Allowed = true

	for _, censor := range c.censors {
		result, err := censor.Check(ctx, msg)
		if err != nil {
			return Result{}, err
		}
		if !result.Allowed {
			return result, nil
		}
		if result.Reason != "" {
			approved = result
		}
	}
	return approved, nil
}
