package config

import (
	"fmt"
	"time"
)

// ServerConfig configures the local identity service started by `rhr serve`.
type ServerConfig interface {
	GetPort() string
	GetSigningSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRefreshTokenLength() int
	GetSeedEmail() string
	GetSeedPassword() string
	GetSeedTenant() string
}

type Server struct{}

var _ ServerConfig = Server{}

func (Server) GetPort() string {
	port := GetEnv("PORT", "8080")
	if port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (Server) GetSigningSecret() string {
	return GetEnv("SIGNING_SECRET", "dev-signing-secret-change-me")
}

func (Server) GetAccessTokenExpiry() time.Duration {
	return GetEnvDuration("ACCESS_TOKEN_TTL", 5*time.Minute)
}

func (Server) GetRefreshTokenExpiry() time.Duration {
	return GetEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour) // 7 days
}

func (Server) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}

func (Server) GetSeedEmail() string {
	return GetEnv("SEED_EMAIL", "admin@example.com")
}

func (Server) GetSeedPassword() string {
	return GetEnv("SEED_PASSWORD", "Password123")
}

func (Server) GetSeedTenant() string {
	return GetEnv("SEED_TENANT", "Acme Workforce")
}
