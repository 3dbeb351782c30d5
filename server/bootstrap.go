package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/tenants"
	"github.com/jrsteele09/rhr-session/users"
	"github.com/rs/zerolog/log"
)

// InitialiseSystem seeds the configured tenant and its owner so a fresh
// server can be logged into. Existing records are left untouched.
func (s *Server) InitialiseSystem(ctx context.Context) error {
	email := strings.ToLower(strings.TrimSpace(s.config.GetSeedEmail()))
	if email == "" {
		log.Debug().Msg("Bootstrap: no seed user configured")
		return nil
	}

	existing, err := s.repos.Users.GetByEmail(email)
	if err == nil && existing != nil {
		log.Info().Str("email", existing.Email).Msg("Bootstrap: seed user already exists")
		return nil
	}
	if err != nil && !errors.Is(err, apperrors.ErrUserNotFound) {
		return fmt.Errorf("failed to look up seed user: %w", err)
	}

	tenant, err := s.ensureTenant(s.config.GetSeedTenant())
	if err != nil {
		return fmt.Errorf("failed to bootstrap seed tenant: %w", err)
	}

	hash, err := users.HashPassword(s.config.GetSeedPassword())
	if err != nil {
		return fmt.Errorf("failed to hash seed password: %w", err)
	}

	now := s.clock.Now()
	seed := &users.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Workspace",
		LastName:     "Owner",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repos.Users.Upsert(seed); err != nil {
		return fmt.Errorf("failed to create seed user: %w", err)
	}
	if err := s.repos.Users.AddMembership(seed.ID, users.TenantMembership{
		Tenant:    *tenant,
		Role:      users.RoleOwner,
		IsDefault: true,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to add seed membership: %w", err)
	}

	log.Info().
		Str("email", seed.Email).
		Str("tenant_id", tenant.ID).
		Str("tenant", tenant.Name).
		Msg("Bootstrap: created seed user")
	return nil
}

// ensureTenant returns the tenant whose slug matches name, creating it if needed.
func (s *Server) ensureTenant(name string) (*tenants.Tenant, error) {
	name = strings.TrimSpace(name)
	slug := tenants.Slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("%w: tenant name %q has no usable characters", apperrors.ErrInvalidArgument, name)
	}

	existing, err := s.repos.Tenants.GetBySlug(slug)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperrors.ErrTenantNotFound) {
		return nil, err
	}

	now := s.clock.Now()
	tenant := &tenants.Tenant{
		Name:         name,
		Slug:         slug,
		IsActive:     true,
		Plan:         tenants.PlanFree,
		MaxEmployees: 10,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repos.Tenants.Upsert(tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}
