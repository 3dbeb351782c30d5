package config

import (
	"strings"
	"time"
)

// ClientConfig covers the outbound side: the identity service and the API
// the dispatcher talks to.
type ClientConfig interface {
	GetAPIBaseURL() string
	GetRequestTimeout() time.Duration
	GetRefreshTimeout() time.Duration
	GetTransportMaxAttempts() int
	GetTransportBackoff() time.Duration
	GetRevokeOnLogout() bool
}

type Client struct{}

var _ ClientConfig = Client{}

// GetAPIBaseURL returns the API root, e.g. "https://rhr.example.com/api/v1".
func (Client) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv("API_BASE_URL", "http://localhost:8080/api/v1"), "/")
}

func (Client) GetRequestTimeout() time.Duration {
	return GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second)
}

// GetRefreshTimeout bounds the shared refresh exchange, which runs detached
// from the cancellation of any single caller.
func (Client) GetRefreshTimeout() time.Duration {
	return GetEnvDuration("REFRESH_TIMEOUT", 15*time.Second)
}

func (Client) GetTransportMaxAttempts() int {
	n := GetEnvInt("TRANSPORT_MAX_ATTEMPTS", 3)
	if n < 1 {
		return 1
	}
	return n
}

func (Client) GetTransportBackoff() time.Duration {
	return GetEnvDuration("TRANSPORT_BACKOFF", 200*time.Millisecond)
}

func (Client) GetRevokeOnLogout() bool {
	return GetEnvBool("REVOKE_ON_LOGOUT", true)
}
