// Package metrics exposes Prometheus collectors for the dispatch engine:
// provider attempts, credential pool churn and quota usage.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chatrelay"

// LatencyBuckets are histogram buckets for upstream call latency, in seconds.
var LatencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 20, 30, 60, 120}

// Pool reset reasons.
const (
	ResetHeal  = "self_heal"
	ResetAdmin = "admin"
)

var (
	// DispatchTotal counts finished dispatches by outcome (success or the
	// final error class).
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Dispatches by provider and final outcome",
		},
		[]string{"provider", "outcome"},
	)

	// AttemptsTotal counts individual provider calls.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider calls by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// AttemptLatency observes the duration of provider calls.
	AttemptLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_attempt_latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   LatencyBuckets,
		},
		[]string{"provider"},
	)

	// TokensTotal counts tokens reported by providers.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by providers",
		},
		[]string{"provider"},
	)

	// CredentialQuarantines counts credentials moved into quarantine.
	CredentialQuarantines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_quarantines_total",
			Help:      "Credentials quarantined after key-related failures",
		},
		[]string{"provider"},
	)

	// CredentialPoolResets counts pool resets by reason.
	CredentialPoolResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_pool_resets_total",
			Help:      "Credential pool resets (self heal or admin)",
		},
		[]string{"provider", "reason"},
	)

	// QuotaUsed mirrors today's used counter per provider.
	QuotaUsed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_used",
			Help:      "Successful calls counted against today's quota",
		},
		[]string{"provider"},
	)

	// QuotaStoreErrors counts failed quota store operations.
	QuotaStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_store_errors_total",
			Help:      "Quota store read/write failures",
		},
		[]string{"operation"},
	)
)

// RecordAttempt records one provider call.
func RecordAttempt(provider, outcome string, latency time.Duration) {
	AttemptsTotal.WithLabelValues(provider, outcome).Inc()
	AttemptLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordDispatch records the final outcome of a dispatch.
func RecordDispatch(provider, outcome string, tokens int) {
	DispatchTotal.WithLabelValues(provider, outcome).Inc()
	if tokens > 0 {
		TokensTotal.WithLabelValues(provider).Add(float64(tokens))
	}
}

// RecordQuarantine counts a quarantined credential.
func RecordQuarantine(provider string) {
	CredentialQuarantines.WithLabelValues(provider).Inc()
}

// RecordPoolReset counts a pool reset.
func RecordPoolReset(provider, reason string) {
	CredentialPoolResets.WithLabelValues(provider, reason).Inc()
}

// SetQuotaUsed updates the quota gauge.
func SetQuotaUsed(provider string, used int) {
	QuotaUsed.WithLabelValues(provider).Set(float64(used))
}

// RecordStoreError counts a quota store failure.
func RecordStoreError(operation string) {
	QuotaStoreErrors.WithLabelValues(operation).Inc()
}
