package config

import (
	"os"
	"path/filepath"
)

const (
	SessionBackendFile  = "file"
	SessionBackendRedis = "redis"
)

type SessionConfig interface {
	GetSessionBackend() string
	GetSessionFile() string
	GetRedisURL() string
	GetSessionKey() string
	GetRequireTenant() bool
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetSessionBackend() string {
	return GetEnv("SESSION_BACKEND", SessionBackendFile)
}

// GetSessionFile defaults to ~/.rhr/session.json.
func (Session) GetSessionFile() string {
	if path := GetEnv("SESSION_FILE", ""); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".rhr", "session.json")
	}
	return filepath.Join(home, ".rhr", "session.json")
}

func (Session) GetRedisURL() string {
	return GetEnv("REDIS_URL", "redis://localhost:6379/0")
}

func (Session) GetSessionKey() string {
	return GetEnv("SESSION_KEY", "rhr:session")
}

// GetRequireTenant reports whether a session must always carry an active tenant.
func (Session) GetRequireTenant() bool {
	return GetEnvBool("REQUIRE_TENANT", true)
}
