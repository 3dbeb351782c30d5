package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
)

// Manager handles refresh token creation, validation, and rotation
type Manager struct {
	repo   Repo
	length int
	expiry time.Duration
	clock  clockwork.Clock
}

// NewManager creates a new refresh token manager. length is the number of
// random bytes in a token.
func NewManager(repo Repo, length int, expiry time.Duration, clock clockwork.Clock) *Manager {
	return &Manager{
		repo:   repo,
		length: length,
		expiry: expiry,
		clock:  clock,
	}
}

// Create generates a new refresh token and stores it
func (m *Manager) Create(userID string) (string, error) {
	tokenBytes := make([]byte, m.length)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	now := m.clock.Now()
	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:     tokenStr,
		UserID:    userID,
		Iat:       now,
		ExpiresAt: now.Add(m.expiry),
	}); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return tokenStr, nil
}

// Validate returns the stored token if it exists and has not expired.
// Expired tokens are deleted.
func (m *Manager) Validate(token string) (*StoredRefreshToken, error) {
	rt, err := m.repo.Get(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, err)
	}
	if m.IsExpired(rt) {
		_ = m.repo.Delete(token)
		return nil, apperrors.ErrRefreshTokenExpired
	}
	return rt, nil
}

// Rotate consumes token and issues a replacement for the same user. The old
// token cannot be used again.
func (m *Manager) Rotate(token string) (*StoredRefreshToken, string, error) {
	rt, err := m.Validate(token)
	if err != nil {
		return nil, "", err
	}
	if err := m.repo.Delete(token); err != nil {
		// Lost a race with another rotation of the same token.
		return nil, "", fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, err)
	}
	next, err := m.Create(rt.UserID)
	if err != nil {
		return nil, "", err
	}
	return rt, next, nil
}

// Delete removes a refresh token from storage
func (m *Manager) Delete(token string) error {
	return m.repo.Delete(token)
}

// DeleteForUser revokes every refresh token of a user.
func (m *Manager) DeleteForUser(userID string) (int, error) {
	return m.repo.DeleteByUserID(userID)
}

// IsExpired checks if a refresh token has expired
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return !m.clock.Now().Before(rt.ExpiresAt)
}
