package server

import (
	"context"
	"net/http"
	"strings"

	tokenjwt "github.com/jrsteele09/rhr-session/token/jwt"
	"github.com/rs/zerolog/log"
)

type contextKey string

const claimsContextKey contextKey = "access_claims"

// RequireBearer rejects requests without a valid, unrevoked access token and
// stores the verified claims on the request context.
func (s *Server) RequireBearer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Detail: "Authentication credentials were not provided.",
				Code:   "not_authenticated",
			})
			return
		}

		claims, err := s.inspect.Verify(raw)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Access token rejected")
			writeTokenNotValid(w)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

func claimsFromContext(ctx context.Context) (*tokenjwt.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*tokenjwt.AccessClaims)
	return claims, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, raw, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return strings.TrimSpace(raw), true
}
