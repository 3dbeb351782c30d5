package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/rhr-session/identity"
	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/session"
	"github.com/rs/zerolog/log"
)

const defaultRevokeTimeout = 5 * time.Second

// IdentityService performs the credential exchanges with the API.
type IdentityService interface {
	Login(ctx context.Context, creds identity.Credentials) (*identity.AuthResult, error)
	Register(ctx context.Context, reg identity.Registration) (*identity.AuthResult, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

// CredentialStore is the part of session.Store the lifecycle drives.
type CredentialStore interface {
	Get() session.Session
	RequiresTenant() bool
	SetAuthenticated(ctx context.Context, a session.Authenticated) error
	SetActiveTenant(ctx context.Context, tenantID string) error
	Clear(ctx context.Context) error
}

// Service moves the session between its authenticated and unauthenticated
// states. It is the dispatcher's Terminator.
type Service struct {
	store          CredentialStore
	identity       IdentityService
	revokeOnLogout bool
	revokeTimeout  time.Duration
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithRevokeOnLogout controls the best-effort server side revocation of the
// refresh token on logout. It is on by default.
func WithRevokeOnLogout(enabled bool) ServiceOption {
	return func(s *Service) {
		s.revokeOnLogout = enabled
	}
}

func WithRevokeTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		s.revokeTimeout = d
	}
}

func NewService(store CredentialStore, identity IdentityService, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, apperrors.New("[NewService] store is required")
	}
	if identity == nil {
		return nil, apperrors.New("[NewService] identity service is required")
	}

	s := &Service{
		store:          store,
		identity:       identity,
		revokeOnLogout: true,
		revokeTimeout:  defaultRevokeTimeout,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Current returns a snapshot of the session.
func (s *Service) Current() session.Session {
	return s.store.Get()
}

// Login exchanges credentials and stores the result. A rejection returns
// ErrInvalidCredentials and leaves the store untouched.
func (s *Service) Login(ctx context.Context, creds identity.Credentials) (session.Session, error) {
	creds.Email = strings.ToLower(strings.TrimSpace(creds.Email))

	res, err := s.identity.Login(ctx, creds)
	if err != nil {
		return session.Session{}, fmt.Errorf("[Service Login] %w", err)
	}
	if err := s.establish(ctx, res); err != nil {
		return session.Session{}, fmt.Errorf("[Service Login] %w", err)
	}

	current := s.store.Get()
	log.Info().Str("user_id", res.User.ID).Str("tenant_id", current.ActiveTenantID()).Msg("Logged in")
	return current, nil
}

// Register creates an account and signs it in. Field errors from the API are
// returned as the *ValidationError itself.
func (s *Service) Register(ctx context.Context, reg identity.Registration) (session.Session, error) {
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))
	reg.TenantName = strings.TrimSpace(reg.TenantName)

	// Without a tenant the account could never satisfy the store's policy.
	if s.store.RequiresTenant() && reg.TenantName == "" {
		return session.Session{}, &apperrors.ValidationError{Fields: map[string][]string{
			"tenant_name": {"A tenant name is required."},
		}}
	}

	res, err := s.identity.Register(ctx, reg)
	if err != nil {
		var verr *apperrors.ValidationError
		if apperrors.As(err, &verr) {
			return session.Session{}, verr
		}
		return session.Session{}, fmt.Errorf("[Service Register] %w", err)
	}
	if err := s.establish(ctx, res); err != nil {
		return session.Session{}, fmt.Errorf("[Service Register] %w", err)
	}

	current := s.store.Get()
	log.Info().Str("user_id", res.User.ID).Str("tenant_id", current.ActiveTenantID()).Msg("Registered")
	return current, nil
}

// Logout clears the session. It never fails and is safe to call repeatedly.
func (s *Service) Logout(ctx context.Context) {
	previous := s.store.Get()

	if err := s.store.Clear(ctx); err != nil {
		log.Err(err).Msg("Failed to persist cleared session")
	}
	if !previous.IsAuthenticated() {
		return
	}
	log.Info().Str("user_id", previous.Principal.ID).Msg("Logged out")
	if s.revokeOnLogout {
		s.revoke(ctx, previous.AccessToken, previous.RefreshToken)
	}
}

// SelectTenant switches the active tenant to one of the memberships.
func (s *Service) SelectTenant(ctx context.Context, tenantID string) (session.Session, error) {
	if err := s.store.SetActiveTenant(ctx, tenantID); err != nil {
		return session.Session{}, fmt.Errorf("[Service SelectTenant] %w", err)
	}
	return s.store.Get(), nil
}

func (s *Service) establish(ctx context.Context, res *identity.AuthResult) error {
	err := s.store.SetAuthenticated(ctx, session.Authenticated{
		Principal:    res.User,
		AccessToken:  res.Access,
		RefreshToken: res.Refresh,
		Memberships:  res.Memberships(),
	})
	if err != nil {
		// The tokens were issued but will never be used.
		s.revoke(ctx, res.Access, res.Refresh)
		return err
	}
	return nil
}

func (s *Service) revoke(ctx context.Context, access, refresh string) {
	if refresh == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.revokeTimeout)
	defer cancel()
	if err := s.identity.Logout(ctx, access, refresh); err != nil {
		log.Debug().Err(err).Msg("Token revocation failed, ignoring")
	}
}
