package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	revisionsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dossier_revisions_appended_total",
		Help: "Revisions appended by chaining mode",
	}, []string{"mode"})

	headConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dossier_revision_head_conflicts_total",
		Help: "Head compare-and-swap attempts lost to a concurrent writer",
	})

	degradedAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dossier_revision_degraded_total",
		Help: "Revisions inserted after head compare-and-swap retries were exhausted",
	})

	appendAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dossier_revision_append_attempts",
		Help:    "Compare-and-swap attempts per chained append",
		Buckets: []float64{1, 2, 3, 4, 5},
	})

	chainVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dossier_chain_verifications_total",
		Help: "Chain verifications by result",
	}, []string{"result"})
)
