package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/rhr-session/internal/config"
	"github.com/jrsteele09/rhr-session/tenants"
	"github.com/jrsteele09/rhr-session/token"
	tokenjwt "github.com/jrsteele09/rhr-session/token/jwt"
	"github.com/jrsteele09/rhr-session/token/refresh"
	"github.com/jrsteele09/rhr-session/users"
	"github.com/rs/zerolog/log"
)

// Repos holds all repository dependencies of the identity service
type Repos struct {
	Users         users.UserRepo // Repository for user data
	Tenants       tenants.Repo   // Repository for tenant data
	RefreshTokens refresh.Repo   // Repository for issued refresh tokens
}

// Server is a local identity service speaking the API's auth protocol:
// login, registration, rotating refresh, logout and the current user and
// tenant resources.
type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	repos   Repos
	clock   clockwork.Clock
	creator *tokenjwt.Creator
	inspect *tokenjwt.Inspector
	refresh *refresh.Manager
	revoked token.RevokedTokenCache
}

// ServerOption defines a function type to modify the Server instance.
type ServerOption func(*Server)

// WithClock sets the time source used for token issuing and expiry (primarily for testing)
func WithClock(clock clockwork.Clock) ServerOption {
	return func(s *Server) {
		s.clock = clock
	}
}

func New(cfg config.Config, repos Repos, options ...ServerOption) (*Server, error) {
	if repos.Users == nil {
		return nil, fmt.Errorf("[Server New] Users repo is required")
	}
	if repos.Tenants == nil {
		return nil, fmt.Errorf("[Server New] Tenants repo is required")
	}
	if repos.RefreshTokens == nil {
		return nil, fmt.Errorf("[Server New] RefreshTokens repo is required")
	}

	s := &Server{
		env:    cfg.GetEnv(),
		mux:    http.NewServeMux(),
		config: cfg,
		repos:  repos,
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range options {
		opt(s)
	}

	signer := token.NewHMACSigner(cfg.GetSigningSecret())
	s.revoked = token.NewInMemoryRevokedTokenCache(s.clock)
	s.creator = tokenjwt.NewCreator(signer, cfg.GetAccessTokenExpiry(), s.clock)
	s.inspect = tokenjwt.NewInspector(signer, s.revoked, s.clock)
	s.refresh = refresh.NewManager(repos.RefreshTokens, cfg.GetRefreshTokenLength(), cfg.GetRefreshTokenExpiry(), s.clock)

	// Bootstrap: ensure the seed tenant and user exist
	if err := s.InitialiseSystem(context.Background()); err != nil {
		return nil, fmt.Errorf("[Server New] Failed to initialise the system: %w", err)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Debug().Msgf("[%-19s] %s", displayMethod, path)
}

// RunRevocationSweeper drops expired entries from the revoked access token
// list every interval until ctx is done.
func (s *Server) RunRevocationSweeper(ctx context.Context, every time.Duration) {
	ticker := s.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			s.revoked.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}
