package session

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/rhr-session/internal/utils"
	"github.com/jrsteele09/rhr-session/tenants"
	"github.com/jrsteele09/rhr-session/users"
	"golang.org/x/oauth2"
)

// Session is the authenticated state of the process. The JSON layout is the
// durable record read at start-up.
type Session struct {
	AccessToken       string                   `json:"accessToken,omitempty"`
	RefreshToken      string                   `json:"refreshToken,omitempty"`
	Principal         *users.User              `json:"principal,omitempty"`
	TenantMemberships []users.TenantMembership `json:"tenantMemberships"`
	ActiveTenant      *tenants.Tenant          `json:"activeTenant,omitempty"`
}

// IsAuthenticated reports whether an access token is held.
func (s Session) IsAuthenticated() bool {
	return s.AccessToken != ""
}

// ActiveTenantID returns the active tenant's ID or "".
func (s Session) ActiveTenantID() string {
	if s.ActiveTenant == nil {
		return ""
	}
	return s.ActiveTenant.ID
}

// Token returns the held credentials as an oauth2 token, or nil when
// unauthenticated. Expiry comes from the access token's exp claim when it is
// a JWT.
func (s Session) Token() *oauth2.Token {
	if !s.IsAuthenticated() {
		return nil
	}
	return NewToken(s.AccessToken, s.RefreshToken)
}

// NewToken builds a bearer token pair.
func NewToken(access, refresh string) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
	}
	if claims, err := parseUnverified(access); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			tok.Expiry = exp.Time
		}
	}
	return tok
}

// The client never holds the signing key; signature checks are the API's job.
func parseUnverified(access string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (s Session) clone() Session {
	return Session{
		AccessToken:       s.AccessToken,
		RefreshToken:      s.RefreshToken,
		Principal:         s.Principal.Clone(),
		TenantMemberships: users.CloneMemberships(s.TenantMemberships),
		ActiveTenant:      utils.ClonePtr(s.ActiveTenant),
	}
}

// valid checks the invariants a loaded record must satisfy.
func (s Session) valid() bool {
	if (s.Principal == nil) != (s.AccessToken == "") {
		return false
	}
	if s.ActiveTenant != nil && users.FindMembership(s.TenantMemberships, s.ActiveTenant.ID) == nil {
		return false
	}
	return true
}

// Repo persists the session record.
type Repo interface {
	// Load returns ErrSessionNotFound when no record exists.
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
}
