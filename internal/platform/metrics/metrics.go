package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	CardsMinted             prometheus.Counter
	CardsSent               prometheus.Counter
	RentalsStarted          prometheus.Counter
	RentalsEnded            prometheus.Counter
	RecommendationsCreated  prometheus.Counter
	RecommendationsAccepted prometheus.Counter
	RewardCreditsIssued     prometheus.Counter
	RequestDuration         *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		CardsMinted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_cards_minted_total",
			Help: "Total number of business cards minted",
		}),
		CardsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_cards_sent_total",
			Help: "Total number of card ownership transfers",
		}),
		RentalsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_rentals_started_total",
			Help: "Total number of card rentals granted",
		}),
		RentalsEnded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_rentals_ended_total",
			Help: "Total number of card rentals ended early by the owner",
		}),
		RecommendationsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_recommendations_created_total",
			Help: "Total number of card recommendations created",
		}),
		RecommendationsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_recommendations_accepted_total",
			Help: "Total number of card recommendations accepted",
		}),
		RewardCreditsIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cardledger_reward_credits_issued_total",
			Help: "Total number of reward credit issuances",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
	}
}
