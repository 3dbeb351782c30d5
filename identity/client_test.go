package identity_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/rhr-session/identity"
	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/tenants"
	"github.com/jrsteele09/rhr-session/users"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, handler http.HandlerFunc) *identity.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return identity.New(srv.URL + "/api/v1/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func TestLogin(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/auth/login/", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))

		var creds identity.Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(t, "ada@example.com", creds.Email)

		writeJSON(w, http.StatusOK, map[string]any{
			"access":  "access-1",
			"refresh": "refresh-1",
			"user":    users.User{ID: "u-1", Email: creds.Email},
			"tenants": []users.TenantMembership{{ID: "m-1", Tenant: tenants.Tenant{ID: "t-1", Name: "Acme"}, IsDefault: true}},
		})
	})

	res, err := client.Login(context.Background(), identity.Credentials{Email: "ada@example.com", Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, "access-1", res.Access)
	require.Equal(t, "refresh-1", res.Refresh)
	require.Equal(t, "u-1", res.User.ID)
	require.Len(t, res.Memberships(), 1)
	require.Equal(t, "t-1", res.Memberships()[0].Tenant.ID)
}

func TestLoginRejected(t *testing.T) {
	tests := map[string]struct {
		status int
		body   any
	}{
		"unauthorized": {http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"}},
		"bad request":  {http.StatusBadRequest, map[string]string{"detail": "bad"}},
		"field errors": {http.StatusBadRequest, map[string][]string{"email": {"This field is required."}}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tc.status, tc.body)
			})
			_, err := client.Login(context.Background(), identity.Credentials{Email: "ada@example.com", Password: "wrong"})
			require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		})
	}
}

func TestLoginServerError(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database down"})
	})

	_, err := client.Login(context.Background(), identity.Credentials{Email: "a@b.c", Password: "pw"})
	require.Error(t, err)
	require.NotErrorIs(t, err, apperrors.ErrInvalidCredentials)
	require.True(t, apperrors.IsStatus(err, http.StatusInternalServerError))
	require.ErrorContains(t, err, "database down")
}

func TestRegisterUsesEmbeddedMemberships(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/register/", r.URL.Path)
		var reg map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reg))
		require.Equal(t, "Acme", reg["tenant_name"])
		require.Equal(t, "Password123", reg["password_confirm"])

		writeJSON(w, http.StatusCreated, map[string]any{
			"access":  "access-1",
			"refresh": "refresh-1",
			"user": users.User{ID: "u-1", Email: reg["email"], Tenants: []users.TenantMembership{
				{ID: "m-1", Tenant: tenants.Tenant{ID: "t-1", Name: "Acme"}, Role: users.RoleOwner, IsDefault: true},
			}},
		})
	})

	res, err := client.Register(context.Background(), identity.Registration{
		Email: "ada@example.com", Password: "Password123", PasswordConfirm: "Password123", TenantName: "Acme",
	})
	require.NoError(t, err)
	require.Len(t, res.Memberships(), 1)
	require.Equal(t, users.RoleOwner, res.Memberships()[0].Role)
}

func TestRegisterValidationError(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"email":            []string{"user with this email already exists."},
			"password_confirm": []string{"Passwords do not match."},
		})
	})

	_, err := client.Register(context.Background(), identity.Registration{Email: "ada@example.com"})
	var verr *apperrors.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{"user with this email already exists."}, verr.Field("email"))
	require.Equal(t, []string{"Passwords do not match."}, verr.Field("password_confirm"))
}

func TestRefresh(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/auth/refresh/", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["refresh"] != "refresh-1" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired", "code": "token_not_valid"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"access": "access-2", "refresh": "refresh-2"})
	})

	tok, err := client.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "access-2", tok.AccessToken)
	require.Equal(t, "refresh-2", tok.RefreshToken)
	require.Equal(t, "Bearer", tok.Type())

	_, err = client.Refresh(context.Background(), "bad")
	require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	require.True(t, apperrors.IsStatus(err, http.StatusUnauthorized))
	require.ErrorContains(t, err, "Token is invalid or expired")
}

func TestRefreshWithoutRotation(t *testing.T) {
	client := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"access": "access-2"})
	})

	tok, err := client.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "access-2", tok.AccessToken)
	require.Empty(t, tok.RefreshToken)
}

func TestLogoutSendsBearerAndRefreshToken(t *testing.T) {
	var called bool
	client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Equal(t, "/api/v1/auth/logout/", r.URL.Path)
		require.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "refresh-1", body["refresh"])
		writeJSON(w, http.StatusOK, map[string]string{"detail": "Successfully logged out"})
	})

	require.NoError(t, client.Logout(context.Background(), "access-1", "refresh-1"))
	require.True(t, called)
}

func TestDecodeError(t *testing.T) {
	err := identity.DecodeError(http.StatusForbidden, []byte(`{"detail":"You do not have access to this tenant."}`))
	require.True(t, apperrors.IsStatus(err, http.StatusForbidden))
	require.EqualError(t, err, "HTTP 403: You do not have access to this tenant.")

	err = identity.DecodeError(http.StatusBadGateway, []byte("<html>oops</html>"))
	require.EqualError(t, err, "HTTP 502: Bad Gateway")
}
