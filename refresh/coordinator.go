package refresh

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/internal/metrics"
	"github.com/jrsteele09/rhr-session/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	flightKey      = "refresh"
	defaultTimeout = 15 * time.Second
)

// Exchanger trades a refresh token for a new token pair. An empty
// RefreshToken in the result means the service did not rotate.
type Exchanger interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TokenStore is the part of the credential store the coordinator needs.
type TokenStore interface {
	Get() session.Session
	SetTokens(ctx context.Context, access, refresh string) error
}

// FailedError is returned when a refresh cannot produce a new pair. It names
// the refresh token the exchange was attempted with, which is empty when the
// session held none.
type FailedError struct {
	RefreshToken string
	Err          error
}

func (e *FailedError) Error() string {
	return e.Err.Error()
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

// Coordinator makes sure at most one refresh exchange is in flight. Callers
// that arrive while one is running wait for and share its outcome.
type Coordinator struct {
	store     TokenStore
	exchanger Exchanger
	timeout   time.Duration
	group     singleflight.Group
}

type Option func(*Coordinator)

// WithTimeout bounds a single exchange. The exchange does not observe the
// cancellation of the callers waiting on it, only this timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func NewCoordinator(store TokenStore, exchanger Exchanger, options ...Option) *Coordinator {
	c := &Coordinator{
		store:     store,
		exchanger: exchanger,
		timeout:   defaultTimeout,
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Refresh obtains a new token pair, joining the exchange already in flight
// if there is one. On success the store holds the new pair before any caller
// returns. Every caller of a failed exchange gets the same error, which wraps
// ErrRefreshFailed inside a *FailedError. A caller whose ctx ends stops
// waiting; the exchange goes on.
func (c *Coordinator) Refresh(ctx context.Context) (*oauth2.Token, error) {
	refreshToken := c.store.Get().RefreshToken
	if refreshToken == "" {
		metrics.RefreshExchanges.WithLabelValues(metrics.OutcomeNoToken).Inc()
		return nil, &FailedError{Err: fmt.Errorf("[Coordinator Refresh] %w", apperrors.ErrNoRefreshToken)}
	}

	// Written by the flight before its result is delivered on ch.
	owner := false
	ch := c.group.DoChan(flightKey, func() (any, error) {
		owner = true
		tok, err := c.exchange(ctx, refreshToken)
		if err != nil {
			return nil, &FailedError{RefreshToken: refreshToken, Err: err}
		}
		return tok, nil
	})

	select {
	case res := <-ch:
		if !owner {
			metrics.RefreshSharedWaiters.Inc()
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("[Coordinator Refresh] stopped waiting: %w", ctx.Err())
	}
}

func (c *Coordinator) exchange(parent context.Context, refreshToken string) (tok *oauth2.Token, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("[Coordinator exchange] %w: panic: %v", apperrors.ErrRefreshFailed, r)
			tok = nil
		}
		if err != nil {
			metrics.RefreshExchanges.WithLabelValues(metrics.OutcomeFailure).Inc()
			log.Warn().Err(err).Msg("Token refresh failed")
			return
		}
		metrics.RefreshExchanges.WithLabelValues(metrics.OutcomeSuccess).Inc()
		log.Debug().Time("expiry", tok.Expiry).Msg("Token refreshed")
	}()

	next, err := c.exchanger.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, refreshFailed(err)
	}
	if next == nil || next.AccessToken == "" {
		return nil, fmt.Errorf("[Coordinator exchange] %w: empty access token", apperrors.ErrRefreshFailed)
	}
	if err := c.store.SetTokens(ctx, next.AccessToken, next.RefreshToken); err != nil {
		return nil, refreshFailed(err)
	}

	rotated := next.RefreshToken
	if rotated == "" {
		rotated = refreshToken
	}
	return session.NewToken(next.AccessToken, rotated), nil
}

func refreshFailed(err error) error {
	if apperrors.Is(err, apperrors.ErrRefreshFailed) {
		return fmt.Errorf("[Coordinator exchange] %w", err)
	}
	return fmt.Errorf("[Coordinator exchange] %w: %w", apperrors.ErrRefreshFailed, err)
}
