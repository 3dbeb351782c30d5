package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		RefreshExchanges,
		RefreshSharedWaiters,
		DispatchRetries,
		ForcedLogouts,
		SessionPersistErrors,
		TransportRetries,
		IdentityRequests,
	}

	for _, c := range collectors {
		desc := make(chan *prometheus.Desc, 1)
		c.Describe(desc)
		close(desc)

		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestRefreshExchangesByOutcome(t *testing.T) {
	before := testutil.ToFloat64(RefreshExchanges.WithLabelValues(OutcomeFailure))
	RefreshExchanges.WithLabelValues(OutcomeFailure).Inc()

	require.Equal(t, before+1, testutil.ToFloat64(RefreshExchanges.WithLabelValues(OutcomeFailure)))
}
