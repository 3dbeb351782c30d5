package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/token"
)

// AccessClaims are the verified claims of an access token
type AccessClaims struct {
	Subject   string
	Email     string
	TenantID  string
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RevokedChecker is an interface for checking if a token has been revoked
type RevokedChecker interface {
	IsRevoked(jti string) bool
}

// Inspector verifies access tokens issued by Creator
type Inspector struct {
	signer         token.Signer
	revokedChecker RevokedChecker
	clock          clockwork.Clock
}

// NewInspector creates a new JWT inspector
func NewInspector(signer token.Signer, revokedChecker RevokedChecker, clock clockwork.Clock) *Inspector {
	return &Inspector{
		signer:         signer,
		revokedChecker: revokedChecker,
		clock:          clock,
	}
}

// Verify checks signature, expiry, token type and revocation. Expired tokens
// yield ErrTokenExpired, anything else ErrInvalidToken.
func (i *Inspector) Verify(rawToken string) (*AccessClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperrors.ErrInvalidToken
	}

	parsed, err := jwtlib.ParseWithClaims(rawToken, jwtlib.MapClaims{}, i.signer.GetVerificationKey,
		jwtlib.WithTimeFunc(i.clock.Now),
		jwtlib.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", apperrors.ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", apperrors.ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok || !parsed.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	if tokenType, _ := claims["token_type"].(string); tokenType != tokenTypeAccess {
		return nil, fmt.Errorf("%w: not an access token", apperrors.ErrInvalidToken)
	}

	out := &AccessClaims{}
	out.Subject, _ = claims["sub"].(string)
	out.Email, _ = claims["email"].(string)
	out.TenantID, _ = claims["tenant"].(string)
	out.JTI, _ = claims["jti"].(string)
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	if out.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", apperrors.ErrInvalidToken)
	}
	if i.revokedChecker != nil && out.JTI != "" && i.revokedChecker.IsRevoked(out.JTI) {
		return nil, fmt.Errorf("%w: token has been revoked", apperrors.ErrInvalidToken)
	}
	return out, nil
}
