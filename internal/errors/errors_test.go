package errors_test

import (
	"fmt"
	"net/http"
	"testing"

	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &apperrors.ValidationError{Fields: map[string][]string{
		"password": {"too short", "needs a digit"},
		"email":    {"enter a valid email address"},
	}}

	require.Equal(t, "validation failed: email: enter a valid email address, password: too short; needs a digit", err.Error())
	require.Equal(t, []string{"too short", "needs a digit"}, err.Field("password"))
	require.Nil(t, err.Field("missing"))
}

func TestIsStatusFollowsWrapping(t *testing.T) {
	err := fmt.Errorf("client.GetMe: %w", &apperrors.HTTPError{StatusCode: http.StatusUnauthorized, Message: "nope"})

	require.True(t, apperrors.IsStatus(err, http.StatusUnauthorized))
	require.False(t, apperrors.IsStatus(err, http.StatusForbidden))
	require.False(t, apperrors.IsStatus(nil, http.StatusUnauthorized))
}

func TestWrapf(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "load %s", "session"))

	err := apperrors.Wrapf(apperrors.ErrSessionNotFound, "load %s", "session")
	require.EqualError(t, err, "load session: session not found")
	require.True(t, apperrors.Is(err, apperrors.ErrSessionNotFound))
}
