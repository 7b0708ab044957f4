package scoring

import "errors"

// Sentinel errors for scoring endpoint failures.
var (
	// ErrRateLimit indicates the endpoint returned a rate limit response.
	ErrRateLimit = errors.New("scoring rate limited")

	// ErrUnavailable indicates the endpoint is temporarily unavailable.
	ErrUnavailable = errors.New("scoring unavailable")

	// ErrAuthentication indicates the API key was rejected.
	ErrAuthentication = errors.New("scoring authentication failed")

	// ErrUnparsable indicates the model reply carried no recognizable score.
	ErrUnparsable = errors.New("scoring reply unparsable")
)

// IsRetryable reports whether the error is transient and the request can be
// retried after a delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrUnavailable)
}
