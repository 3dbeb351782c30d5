package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/rhr-session/users"
)

const headerTenantID = "X-Tenant-ID"

func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.currentUser(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// CurrentTenantHandler answers with the tenant named by X-Tenant-ID, or the
// caller's primary tenant when the header is absent.
func (s *Server) CurrentTenantHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.currentUser(w, r)
		if !ok {
			return
		}

		var membership *users.TenantMembership
		if tenantID := strings.TrimSpace(r.Header.Get(headerTenantID)); tenantID != "" {
			membership = user.GetTenantMembership(tenantID)
			if membership == nil {
				writeDetail(w, http.StatusForbidden, "You do not have access to this tenant.")
				return
			}
		} else {
			membership = users.PrimaryMembership(user.Tenants)
		}
		if membership == nil {
			writeDetail(w, http.StatusNotFound, "No tenant found.")
			return
		}
		writeJSON(w, http.StatusOK, membership.Tenant)
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) (*users.User, bool) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeTokenNotValid(w)
		return nil, false
	}
	user, err := s.repos.Users.GetByID(claims.Subject)
	if err != nil || !user.IsActive {
		writeJSON(w, http.StatusUnauthorized, errorBody{Detail: "User not found", Code: "user_not_found"})
		return nil, false
	}
	return user, true
}
