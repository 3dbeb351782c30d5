package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/session"
	"github.com/jrsteele09/rhr-session/users"
	"golang.org/x/oauth2"
)

// Doer sends HTTP requests. *http.Client and transport.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register payload.
type Registration struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	TenantName      string `json:"tenant_name,omitempty"`
}

// AuthResult is what login and register hand back.
type AuthResult struct {
	Access  string                   `json:"access"`
	Refresh string                   `json:"refresh"`
	User    *users.User              `json:"user"`
	Tenants []users.TenantMembership `json:"tenants"`
}

// Memberships returns the top level tenants list, falling back to the
// memberships embedded in the user.
func (r *AuthResult) Memberships() []users.TenantMembership {
	if len(r.Tenants) > 0 || r.User == nil {
		return r.Tenants
	}
	return r.User.Tenants
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Client talks to the identity endpoints of the API.
type Client struct {
	baseURL    string
	httpClient Doer
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the default http client.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		c.httpClient = d
	}
}

// New creates a new identity client rooted at baseURL (e.g. http://localhost:8080/api/v1).
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Login exchanges credentials for a token pair, principal and memberships.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResult, error) {
	var res AuthResult
	if err := c.post(ctx, "/auth/login/", "", creds, &res); err != nil {
		var verr *apperrors.ValidationError
		if apperrors.IsStatus(err, http.StatusUnauthorized) || apperrors.IsStatus(err, http.StatusBadRequest) || apperrors.As(err, &verr) {
			return nil, fmt.Errorf("client.Login: %w: %w", apperrors.ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("client.Login: %w", err)
	}
	if err := res.check(); err != nil {
		return nil, fmt.Errorf("client.Login: %w", err)
	}
	return &res, nil
}

// Register creates an account. A 400 response becomes a *ValidationError.
func (c *Client) Register(ctx context.Context, reg Registration) (*AuthResult, error) {
	var res AuthResult
	if err := c.post(ctx, "/auth/register/", "", reg, &res); err != nil {
		var verr *apperrors.ValidationError
		if apperrors.As(err, &verr) {
			return nil, verr
		}
		return nil, fmt.Errorf("client.Register: %w", err)
	}
	if err := res.check(); err != nil {
		return nil, fmt.Errorf("client.Register: %w", err)
	}
	return &res, nil
}

// Refresh exchanges a refresh token for a new pair. The returned token's
// RefreshToken is empty when the service does not rotate.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	var pair tokenPair
	if err := c.post(ctx, "/auth/refresh/", "", tokenPair{Refresh: refreshToken}, &pair); err != nil {
		return nil, fmt.Errorf("client.Refresh: %w: %w", apperrors.ErrRefreshFailed, err)
	}
	if pair.Access == "" {
		return nil, fmt.Errorf("client.Refresh: %w: response has no access token", apperrors.ErrRefreshFailed)
	}
	return session.NewToken(pair.Access, pair.Refresh), nil
}

// Logout asks the service to revoke the refresh token.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if err := c.post(ctx, "/auth/logout/", accessToken, tokenPair{Refresh: refreshToken}, nil); err != nil {
		return fmt.Errorf("client.Logout: %w", err)
	}
	return nil
}

func (r *AuthResult) check() error {
	if r.Access == "" || r.User == nil {
		return fmt.Errorf("%w: response is missing tokens or user", apperrors.ErrInternal)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, bearer string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		session.NewToken(bearer, "").SetAuthHeader(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DecodeError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// DecodeError maps a non-2xx response body to an error. A 400 whose body is
// a map of field names to message lists becomes a *ValidationError;
// anything else is an *HTTPError carrying "detail" or "error" when present.
func DecodeError(status int, body []byte) error {
	if status == http.StatusBadRequest {
		if fields := fieldErrors(body); len(fields) > 0 {
			return &apperrors.ValidationError{Fields: fields}
		}
	}

	var msg struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	message := http.StatusText(status)
	if json.Unmarshal(body, &msg) == nil {
		switch {
		case msg.Detail != "":
			message = msg.Detail
		case msg.Error != "":
			message = msg.Error
		}
	}
	return &apperrors.HTTPError{StatusCode: status, Message: message}
}

func fieldErrors(body []byte) map[string][]string {
	var raw map[string]json.RawMessage
	if json.Unmarshal(body, &raw) != nil {
		return nil
	}
	fields := map[string][]string{}
	for name, value := range raw {
		var list []string
		if json.Unmarshal(value, &list) == nil && len(list) > 0 {
			fields[name] = list
			continue
		}
		var single string
		if name != "detail" && name != "error" && json.Unmarshal(value, &single) == nil && single != "" {
			fields[name] = []string{single}
		}
	}
	return fields
}
