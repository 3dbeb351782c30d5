package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/internal/metrics"
	"github.com/jrsteele09/rhr-session/refresh"
	"github.com/jrsteele09/rhr-session/session"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	HeaderTenantID  = "X-Tenant-ID"
	headerRequestID = "X-Request-ID"

	retryRefreshed  = "refreshed"
	retryStaleToken = "stale_token"
)

// Doer sends HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// SessionReader gives read access to the credential store.
type SessionReader interface {
	Get() session.Session
}

// Refresher obtains a new token pair, single-flighted.
type Refresher interface {
	Refresh(ctx context.Context) (*oauth2.Token, error)
}

// Terminator ends the session when it can no longer be refreshed.
type Terminator interface {
	Logout(ctx context.Context)
}

// Dispatcher decorates every outbound call with the session's credentials
// and recovers from an expired access token by refreshing and resending once.
type Dispatcher struct {
	baseURL    string
	httpClient Doer
	store      SessionReader
	refresher  Refresher
	terminator Terminator
	logouts    singleflight.Group
}

type Option func(*Dispatcher)

func WithHTTPClient(d Doer) Option {
	return func(disp *Dispatcher) {
		disp.httpClient = d
	}
}

func New(baseURL string, store SessionReader, refresher Refresher, terminator Terminator, options ...Option) *Dispatcher {
	d := &Dispatcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		store:      store,
		refresher:  refresher,
		terminator: terminator,
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// Send transmits req with the current credentials. A 401 on a first attempt
// triggers one refresh and one resend; whatever the resend yields is
// returned unchanged. If the refresh fails the session is logged out and the
// error wraps ErrSessionExpired and the original 401.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Response, error) {
	req = req.withRequestID(uuid.NewString())
	sent := d.store.Get()

	resp, err := d.roundTrip(ctx, req, sent)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || req.IsRetry {
		return resp, nil
	}
	return d.recoverUnauthorized(ctx, req, sent, resp)
}

func (d *Dispatcher) recoverUnauthorized(ctx context.Context, req Request, sent session.Session, unauthorized *Response) (*Response, error) {
	current := d.store.Get()
	// Another request already refreshed while this one was on the wire.
	if current.IsAuthenticated() && current.AccessToken != sent.AccessToken {
		metrics.DispatchRetries.WithLabelValues(retryStaleToken).Inc()
		return d.Send(ctx, req.retry())
	}

	_, err := d.refresher.Refresh(ctx)
	if err == nil {
		metrics.DispatchRetries.WithLabelValues(retryRefreshed).Inc()
		return d.Send(ctx, req.retry())
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("dispatch %s %s: %w", req.Method, req.Path, err)
	}

	failedRefresh := current.RefreshToken
	var failed *refresh.FailedError
	if apperrors.As(err, &failed) {
		failedRefresh = failed.RefreshToken
	}
	d.forceLogout(ctx, failedRefresh, err)
	return nil, fmt.Errorf("dispatch %s %s: %w: %w: %w",
		req.Method, req.Path, apperrors.ErrSessionExpired, err, unauthorized.Err())
}

// forceLogout ends the session once per failed refresh token. Requests that
// fail together share one logout, and a session that has since been replaced
// or already cleared is left alone.
func (d *Dispatcher) forceLogout(ctx context.Context, failedRefresh string, cause error) {
	_, _, _ = d.logouts.Do(failedRefresh, func() (any, error) {
		s := d.store.Get()
		if s.RefreshToken != failedRefresh || (!s.IsAuthenticated() && s.RefreshToken == "") {
			return nil, nil
		}
		metrics.ForcedLogouts.Inc()
		log.Warn().Err(cause).Str("principal", principalID(s)).Msg("Session expired, logging out")
		d.terminator.Logout(context.WithoutCancel(ctx))
		return nil, nil
	})
}

func (d *Dispatcher) roundTrip(ctx context.Context, req Request, s session.Session) (*Response, error) {
	target := d.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s %s: create request: %w", req.Method, req.Path, err)
	}
	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if tok := s.Token(); tok != nil {
		tok.SetAuthHeader(httpReq)
	} else {
		httpReq.Header.Del("Authorization")
	}
	if tenantID := s.ActiveTenantID(); tenantID != "" {
		httpReq.Header.Set(HeaderTenantID, tenantID)
	} else {
		httpReq.Header.Del(HeaderTenantID)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dispatch %s %s: read response: %w", req.Method, req.Path, err)
	}

	log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Bool("retry", req.IsRetry).
		Str("request_id", req.Header.Get(headerRequestID)).
		Msg("Dispatched request")

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func principalID(s session.Session) string {
	if s.Principal == nil {
		return ""
	}
	return s.Principal.ID
}
