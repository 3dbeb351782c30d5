package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/internal/metrics"
	"github.com/jrsteele09/rhr-session/internal/utils"
	"github.com/jrsteele09/rhr-session/tenants"
	"github.com/jrsteele09/rhr-session/users"
	"github.com/rs/zerolog/log"
)

// Authenticated is the input of Store.SetAuthenticated.
type Authenticated struct {
	Principal    *users.User
	AccessToken  string
	RefreshToken string
	Memberships  []users.TenantMembership
	// Tenant optionally selects the active tenant explicitly.
	Tenant *tenants.Tenant
}

// Store is the credential store. Reads are lock-free snapshots; writes are
// serialized and persisted before they become visible.
type Store struct {
	repo            Repo
	mu              sync.Mutex // serializes mutations
	current         atomic.Pointer[Session]
	allowTenantless bool
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithTenantlessSessions relaxes the policy that an authenticated session
// must carry an active tenant.
func WithTenantlessSessions() StoreOption {
	return func(s *Store) {
		s.allowTenantless = true
	}
}

// NewStore loads the persisted session from repo. A missing, unreadable or
// inconsistent record yields an unauthenticated session; other load errors
// are returned.
func NewStore(ctx context.Context, repo Repo, options ...StoreOption) (*Store, error) {
	if repo == nil {
		return nil, apperrors.New("[NewStore] repo is required")
	}
	s := &Store{repo: repo}
	for _, opt := range options {
		opt(s)
	}

	loaded, err := repo.Load(ctx)
	switch {
	case apperrors.Is(err, apperrors.ErrSessionNotFound):
		loaded = &Session{}
	case apperrors.Is(err, apperrors.ErrSessionCorrupt):
		log.Warn().Err(err).Msg("Discarding unreadable persisted session")
		loaded = &Session{}
	case err != nil:
		return nil, fmt.Errorf("[NewStore] failed to load session: %w", err)
	case loaded == nil:
		loaded = &Session{}
	case !loaded.valid() || !s.tenantPolicyHolds(*loaded):
		log.Warn().Msg("Discarding persisted session that violates session invariants")
		loaded = &Session{}
	}

	current := loaded.clone()
	s.current.Store(&current)
	return s, nil
}

// Get returns a snapshot of the current session. It never blocks.
func (s *Store) Get() Session {
	return s.current.Load().clone()
}

// RequiresTenant reports whether authenticated sessions must have an active tenant.
func (s *Store) RequiresTenant() bool {
	return !s.allowTenantless
}

// SetAuthenticated replaces the whole session. The active tenant is the
// explicit a.Tenant, else the default-flagged membership, else the first.
func (s *Store) SetAuthenticated(ctx context.Context, a Authenticated) error {
	if a.Principal == nil || a.AccessToken == "" {
		return fmt.Errorf("[Store SetAuthenticated] %w: principal and access token are required", apperrors.ErrInvalidArgument)
	}

	memberships := users.CloneMemberships(a.Memberships)
	var active *tenants.Tenant
	switch {
	case a.Tenant != nil && len(memberships) == 0:
		memberships = []users.TenantMembership{{Tenant: *a.Tenant, IsDefault: true}}
		active = utils.ClonePtr(a.Tenant)
	case a.Tenant != nil:
		m := users.FindMembership(memberships, a.Tenant.ID)
		if m == nil {
			return fmt.Errorf("[Store SetAuthenticated] %w: tenant %s is not among the memberships", apperrors.ErrInvalidArgument, a.Tenant.ID)
		}
		active = utils.ClonePtr(&m.Tenant)
	case len(memberships) > 0:
		active = utils.ClonePtr(&users.PrimaryMembership(memberships).Tenant)
	case !s.allowTenantless:
		return fmt.Errorf("[Store SetAuthenticated] %w: no tenant memberships", apperrors.ErrInvalidState)
	}

	next := Session{
		AccessToken:       a.AccessToken,
		RefreshToken:      a.RefreshToken,
		Principal:         a.Principal.Clone(),
		TenantMemberships: memberships,
		ActiveTenant:      active,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(ctx, "set_authenticated", next)
}

// SetTokens replaces the token pair only. An empty refresh keeps the current
// refresh token. It fails with ErrInvalidState if the session has been
// cleared, so a refresh that settles after a logout cannot revive it.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	if access == "" {
		return fmt.Errorf("[Store SetTokens] %w: access token is required", apperrors.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if !cur.IsAuthenticated() {
		return fmt.Errorf("[Store SetTokens] %w: session is not authenticated", apperrors.ErrInvalidState)
	}
	next := cur.clone()
	next.AccessToken = access
	if refresh != "" {
		next.RefreshToken = refresh
	}
	return s.commit(ctx, "set_tokens", next)
}

// SetActiveTenant switches the active tenant to one of the memberships.
func (s *Store) SetActiveTenant(ctx context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	m := users.FindMembership(cur.TenantMemberships, tenantID)
	if m == nil {
		return fmt.Errorf("[Store SetActiveTenant] %w: not a member of tenant %q", apperrors.ErrInvalidArgument, tenantID)
	}
	next := cur.clone()
	next.ActiveTenant = utils.ClonePtr(&m.Tenant)
	return s.commit(ctx, "set_active_tenant", next)
}

// Clear resets to the unauthenticated state. The in-memory session is always
// cleared; a persistence failure is still returned.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	empty := Session{}
	s.current.Store(&empty)
	if err := s.repo.Save(ctx, &Session{}); err != nil {
		metrics.SessionPersistErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("[Store Clear] failed to persist session: %w", err)
	}
	return nil
}

// commit persists next and then publishes it. Callers hold s.mu.
func (s *Store) commit(ctx context.Context, op string, next Session) error {
	record := next.clone()
	if err := s.repo.Save(ctx, &record); err != nil {
		metrics.SessionPersistErrors.WithLabelValues(op).Inc()
		return fmt.Errorf("[Store %s] failed to persist session: %w", op, err)
	}
	s.current.Store(&next)
	return nil
}

func (s *Store) tenantPolicyHolds(sess Session) bool {
	return s.allowTenantless || !sess.IsAuthenticated() || sess.ActiveTenant != nil
}
