package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	postsAllowed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memerelay_posts_allowed_total",
		Help: "Submissions admitted and forwarded to the channel.",
	})

	postsDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memerelay_posts_denied_total",
		Help: "Submissions rejected by an admission policy.",
	})

	checksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memerelay_checks_failed_total",
		Help: "Admission checks that errored (store or scorer unavailable).",
	})

	forwardsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memerelay_forwards_failed_total",
		Help: "Forward attempts that failed after an allowed decision.",
	})
)
