// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PollsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curation",
		Name:      "polls_started_total",
		Help:      "Polls opened per vote ledger.",
	}, []string{"ledger"})

	VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curation",
		Name:      "votes_cast_total",
		Help:      "Votes recorded per vote ledger.",
	}, []string{"ledger"})

	VoterSettlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curation",
		Name:      "voter_settlements_total",
		Help:      "Voter fund returns that moved value.",
	}, []string{"ledger", "rewarded"})

	EntrySettlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curation",
		Name:      "entry_settlements_total",
		Help:      "Debate, opinion and implementation settlements by outcome.",
	}, []string{"kind", "outcome"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curation",
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "curation",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "curation",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "curation",
		Name:      "events_published_total",
		Help:      "Ledger events handed to the message queue.",
	}, []string{"driver", "result"})
)

// Outcome label for settlements.
func Outcome(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "rejected"
}
