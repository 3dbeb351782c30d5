package filerepo_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/session"
	"github.com/jrsteele09/rhr-session/session/filerepo"
	"github.com/jrsteele09/rhr-session/tenants"
	"github.com/jrsteele09/rhr-session/users"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	r := filerepo.New(filepath.Join(t.TempDir(), "nested", "session.json"))

	_, err := r.Load(context.Background())
	require.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	r := filerepo.New(path)
	acme := tenants.Tenant{ID: "t-1", Name: "Acme"}

	in := &session.Session{
		AccessToken:       "access",
		RefreshToken:      "refresh",
		Principal:         &users.User{ID: "u-1", Email: "ada@example.com"},
		TenantMemberships: []users.TenantMembership{{ID: "m-1", Tenant: acme, Role: users.RoleOwner, IsDefault: true}},
		ActiveTenant:      &acme,
	}
	require.NoError(t, r.Save(context.Background(), in))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, err := r.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access", out.AccessToken)
	require.Equal(t, "refresh", out.RefreshToken)
	require.Equal(t, "u-1", out.Principal.ID)
	require.Equal(t, "t-1", out.ActiveTenant.ID)
	require.Len(t, out.TenantMemberships, 1)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{"accessToken", "refreshToken", "principal", "tenantMemberships", "activeTenant"} {
		require.Contains(t, string(raw), `"`+key+`"`)
	}
}

func TestSaveOverwrites(t *testing.T) {
	r := filerepo.New(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, r.Save(context.Background(), &session.Session{AccessToken: "a", Principal: &users.User{ID: "u"}}))
	require.NoError(t, r.Save(context.Background(), &session.Session{}))

	out, err := r.Load(context.Background())
	require.NoError(t, err)
	require.False(t, out.IsAuthenticated())
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := filerepo.New(path).Load(context.Background())
	require.ErrorIs(t, err, apperrors.ErrSessionCorrupt)
	require.NotErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestStoreStartsEmptyFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	r := filerepo.New(path)

	store, err := session.NewStore(context.Background(), r, session.WithTenantlessSessions())
	require.NoError(t, err)
	require.False(t, store.Get().IsAuthenticated())

	// A new login replaces the unreadable record
	require.NoError(t, store.SetAuthenticated(context.Background(), session.Authenticated{
		Principal:   &users.User{ID: "u-1", Email: "ada@example.com"},
		AccessToken: "access",
	}))
	out, err := r.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "access", out.AccessToken)
}

func TestLoadUnreadableFile(t *testing.T) {
	dir := t.TempDir()

	// A directory where the record should be is an I/O failure, not corruption
	_, err := filerepo.New(dir).Load(context.Background())
	require.Error(t, err)
	require.NotErrorIs(t, err, apperrors.ErrSessionCorrupt)

	_, err = session.NewStore(context.Background(), filerepo.New(dir))
	require.Error(t, err)
}
