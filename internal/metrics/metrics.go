package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeNoToken = "no_token"
)

// Session manager metrics
var (
	// RefreshExchanges counts refresh network exchanges (one per flight), by outcome
	RefreshExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_refresh_exchanges_total",
			Help: "Token refresh exchanges performed, by outcome",
		},
		[]string{"outcome"},
	)

	// RefreshSharedWaiters counts callers that received the result of another caller's exchange
	RefreshSharedWaiters = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_refresh_shared_waiters_total",
			Help: "Refresh callers served by an exchange already in flight",
		},
	)

	// DispatchRetries counts requests resent after an authorization failure
	DispatchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_retries_total",
			Help: "Requests resent once after a 401, by reason (refreshed/stale_token)",
		},
		[]string{"reason"},
	)

	// ForcedLogouts counts sessions torn down because refresh failed
	ForcedLogouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_forced_logouts_total",
			Help: "Sessions cleared because the refresh exchange failed",
		},
	)

	// SessionPersistErrors counts failed writes of the durable session record
	SessionPersistErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_persist_errors_total",
			Help: "Failed session persistence writes, by operation",
		},
		[]string{"operation"},
	)

	// TransportRetries counts transport level re-attempts of idempotent requests
	TransportRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transport_retries_total",
			Help: "Transport re-attempts after network errors or 5xx responses",
		},
	)
)

// Local identity service metrics
var (
	// IdentityRequests counts identity endpoint calls by endpoint and status code
	IdentityRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_requests_total",
			Help: "Identity service requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)
)
