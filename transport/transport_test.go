package transport_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/rhr-session/internal/metrics"
	"github.com/jrsteele09/rhr-session/transport"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func flakyServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= failures {
			w.WriteHeader(status)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestIdempotentRequestIsRetried(t *testing.T) {
	srv, calls := flakyServer(t, 2, http.StatusServiceUnavailable)
	client := transport.New(transport.WithRetry(3, time.Millisecond))
	before := testutil.ToFloat64(metrics.TransportRetries)

	req, err := http.NewRequest(http.MethodPut, srv.URL, strings.NewReader(`{"name":"x"}`))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int32(3), calls.Load())
	body, _ := io.ReadAll(resp.Body)
	require.Equal(t, `{"name":"x"}`, string(body), "body is replayed on every attempt")
	require.Equal(t, before+2, testutil.ToFloat64(metrics.TransportRetries))
}

func TestFinalFailureIsReturnedUnchanged(t *testing.T) {
	srv, calls := flakyServer(t, 10, http.StatusBadGateway)
	client := transport.New(transport.WithRetry(2, time.Millisecond))

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, int32(2), calls.Load())
}

func TestNonIdempotentRequestIsSentOnce(t *testing.T) {
	srv, calls := flakyServer(t, 1, http.StatusServiceUnavailable)
	client := transport.New(transport.WithRetry(3, time.Millisecond))

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader("{}"))
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestUnauthorizedIsNotRetried(t *testing.T) {
	srv, calls := flakyServer(t, 1, http.StatusUnauthorized)
	client := transport.New(transport.WithRetry(3, time.Millisecond))

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(1), calls.Load())
}

func TestNetworkErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := transport.New(transport.WithRetry(2, time.Millisecond))
	before := testutil.ToFloat64(metrics.TransportRetries)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	_, err = client.Do(req)
	require.Error(t, err)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.TransportRetries))
}
