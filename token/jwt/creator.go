package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/rhr-session/token"
	"github.com/jrsteele09/rhr-session/users"
)

const tokenTypeAccess = "access"

// Creator issues signed access tokens
type Creator struct {
	signer token.Signer
	expiry time.Duration
	clock  clockwork.Clock
}

// NewCreator creates a new JWT creator
func NewCreator(signer token.Signer, expiry time.Duration, clock clockwork.Clock) *Creator {
	return &Creator{
		signer: signer,
		expiry: expiry,
		clock:  clock,
	}
}

// CreateAccessToken creates an access token for the user. The tenant claim
// is informational; the API resolves the tenant per request.
func (c *Creator) CreateAccessToken(user *users.User, tenantID string) (string, error) {
	now := c.clock.Now()
	claims := jwtlib.MapClaims{
		"sub":        user.ID,                  // The user the token was issued to
		"email":      user.Email,               // Convenience claim for logs
		"iat":        now.Unix(),               // Issued At
		"exp":        now.Add(c.expiry).Unix(), // Expiry
		"jti":        uuid.New().String(),      // Unique token ID for revocation
		"token_type": tokenTypeAccess,          // Distinguishes access tokens from other JWTs
	}
	if tenantID != "" {
		claims["tenant"] = tenantID
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, nil
}
