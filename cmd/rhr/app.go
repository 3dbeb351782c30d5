package main

import (
	"context"
	"fmt"

	"github.com/jrsteele09/rhr-session/auth"
	"github.com/jrsteele09/rhr-session/dispatch"
	"github.com/jrsteele09/rhr-session/identity"
	"github.com/jrsteele09/rhr-session/internal/config"
	"github.com/jrsteele09/rhr-session/refresh"
	"github.com/jrsteele09/rhr-session/session"
	"github.com/jrsteele09/rhr-session/session/filerepo"
	"github.com/jrsteele09/rhr-session/session/redisrepo"
	"github.com/jrsteele09/rhr-session/transport"
	"github.com/rs/zerolog/log"
)

// app is the client side of the system: the credential store and the
// services built around it.
type app struct {
	store *session.Store
	auth  *auth.Service
	api   *dispatch.Dispatcher
	close func() error
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	repo, closeRepo, err := sessionRepo(cfg)
	if err != nil {
		return nil, err
	}

	var storeOpts []session.StoreOption
	if !cfg.GetRequireTenant() {
		storeOpts = append(storeOpts, session.WithTenantlessSessions())
	}
	store, err := session.NewStore(ctx, repo, storeOpts...)
	if err != nil {
		_ = closeRepo()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	httpClient := transport.New(
		transport.WithTimeout(cfg.GetRequestTimeout()),
		transport.WithRetry(cfg.GetTransportMaxAttempts(), cfg.GetTransportBackoff()),
	)
	identityClient := identity.New(cfg.GetAPIBaseURL(), identity.WithHTTPClient(httpClient))

	authService, err := auth.NewService(store, identityClient, auth.WithRevokeOnLogout(cfg.GetRevokeOnLogout()))
	if err != nil {
		_ = closeRepo()
		return nil, err
	}

	coordinator := refresh.NewCoordinator(store, identityClient, refresh.WithTimeout(cfg.GetRefreshTimeout()))
	dispatcher := dispatch.New(cfg.GetAPIBaseURL(), store, coordinator, authService, dispatch.WithHTTPClient(httpClient))

	return &app{
		store: store,
		auth:  authService,
		api:   dispatcher,
		close: closeRepo,
	}, nil
}

// sessionRepo opens the durable session record selected by SESSION_BACKEND.
func sessionRepo(cfg config.Config) (session.Repo, func() error, error) {
	switch backend := cfg.GetSessionBackend(); backend {
	case config.SessionBackendRedis:
		rdb, err := redisrepo.NewClient(cfg.GetRedisURL())
		if err != nil {
			return nil, nil, err
		}
		log.Debug().Str("key", cfg.GetSessionKey()).Msg("Using redis session store")
		return redisrepo.New(rdb, cfg.GetSessionKey()), rdb.Close, nil
	case config.SessionBackendFile, "":
		repo := filerepo.New(cfg.GetSessionFile())
		log.Debug().Str("path", repo.Path()).Msg("Using file session store")
		return repo, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", backend)
	}
}
