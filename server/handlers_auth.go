package server

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	apperrors "github.com/jrsteele09/rhr-session/internal/errors"
	"github.com/jrsteele09/rhr-session/users"
	"github.com/rs/zerolog/log"
)

const msgRequired = "This field is required."

var errPasswordMismatch = errors.New("passwords do not match")

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required.Error(msgRequired)),
		validation.Field(&r.Password, validation.Required.Error(msgRequired)),
	)
}

type registerRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	TenantName      string `json:"tenant_name"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email,
			validation.Required.Error(msgRequired),
			is.Email.Error("Enter a valid email address."),
		),
		validation.Field(&r.Password,
			validation.Required.Error(msgRequired),
			validation.By(passwordStrength),
		),
		validation.Field(&r.PasswordConfirm,
			validation.Required.Error(msgRequired),
			validation.By(func(value interface{}) error {
				if confirm, _ := value.(string); confirm != r.Password {
					return errPasswordMismatch
				}
				return nil
			}),
		),
		validation.Field(&r.FirstName, validation.Length(0, 150)),
		validation.Field(&r.LastName, validation.Length(0, 150)),
		validation.Field(&r.TenantName, validation.Length(0, 255)),
	)
}

func passwordStrength(value interface{}) error {
	password, _ := value.(string)
	if password == "" {
		return nil
	}
	return users.ValidatePasswordStrength(password)
}

// authResponse is returned by login and register
type authResponse struct {
	Access  string                   `json:"access"`
	Refresh string                   `json:"refresh"`
	User    *users.User              `json:"user"`
	Tenants []users.TenantMembership `json:"tenants"`
}

type tokenPairBody struct {
	Access  string `json:"access,omitempty"`
	Refresh string `json:"refresh"`
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		if err := req.Validate(); err != nil {
			writeFieldErrors(w, validationFields(err))
			return
		}

		user, err := s.repos.Users.GetByEmail(strings.ToLower(strings.TrimSpace(req.Email)))
		if err != nil || !user.IsActive || !users.CheckPasswordHash(req.Password, user.PasswordHash) {
			log.Info().Str("email", req.Email).Msg("Login rejected")
			writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
			return
		}

		s.issue(w, http.StatusOK, user)
	}
}

func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if err := req.Validate(); err != nil {
			writeFieldErrors(w, validationFields(err))
			return
		}

		if _, err := s.repos.Users.GetByEmail(req.Email); err == nil {
			writeFieldErrors(w, map[string][]string{"email": {"A user with this email already exists."}})
			return
		} else if !errors.Is(err, apperrors.ErrUserNotFound) {
			log.Error().Err(err).Msg("Register: user lookup failed")
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		user, err := s.createUser(req)
		if err != nil {
			if errors.Is(err, apperrors.ErrInvalidArgument) {
				writeFieldErrors(w, map[string][]string{"tenant_name": {"Enter a tenant name containing letters or digits."}})
				return
			}
			log.Error().Err(err).Str("email", req.Email).Msg("Register: failed to create user")
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		log.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("User registered")
		s.issue(w, http.StatusCreated, user)
	}
}

// createUser stores the user and, when a tenant name is given, the tenant
// with the user as its default owner. Returns the stored user.
func (s *Server) createUser(req registerRequest) (*users.User, error) {
	hash, err := users.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &users.User{
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var membership *users.TenantMembership
	if name := strings.TrimSpace(req.TenantName); name != "" {
		tenant, err := s.ensureTenant(name)
		if err != nil {
			return nil, err
		}
		membership = &users.TenantMembership{
			Tenant:    *tenant,
			Role:      users.RoleOwner,
			IsDefault: true,
			CreatedAt: now,
		}
	}

	user.FullName = user.DisplayName()
	if err := s.repos.Users.Upsert(user); err != nil {
		return nil, err
	}
	if membership != nil {
		if err := s.repos.Users.AddMembership(user.ID, *membership); err != nil {
			return nil, err
		}
	}
	return s.repos.Users.GetByID(user.ID)
}

// issue writes a fresh token pair along with the user and memberships
func (s *Server) issue(w http.ResponseWriter, status int, user *users.User) {
	access, refresh, err := s.tokenPair(user)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to issue tokens")
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, status, authResponse{
		Access:  access,
		Refresh: refresh,
		User:    user,
		Tenants: users.CloneMemberships(user.Tenants),
	})
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenPairBody
		if err := decodeJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "Malformed request body.")
			return
		}
		if strings.TrimSpace(req.Refresh) == "" {
			writeFieldErrors(w, map[string][]string{"refresh": {msgRequired}})
			return
		}

		stored, rotated, err := s.refresh.Rotate(req.Refresh)
		if err != nil {
			log.Debug().Err(err).Msg("Refresh rejected")
			writeTokenNotValid(w)
			return
		}

		user, err := s.repos.Users.GetByID(stored.UserID)
		if err != nil || !user.IsActive {
			// A deactivated account loses every session it holds
			n, delErr := s.refresh.DeleteForUser(stored.UserID)
			if delErr != nil {
				log.Error().Err(delErr).Str("user_id", stored.UserID).Msg("Failed to revoke refresh tokens")
			}
			log.Info().Str("user_id", stored.UserID).Int("revoked", n).Msg("Refresh refused for inactive user")
			writeTokenNotValid(w)
			return
		}

		access, err := s.creator.CreateAccessToken(user, primaryTenantID(user))
		if err != nil {
			log.Error().Err(err).Str("user_id", user.ID).Msg("Failed to create access token")
			writeDetail(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		writeJSON(w, http.StatusOK, tokenPairBody{Access: access, Refresh: rotated})
	}
}

// LogoutHandler revokes the caller's access token and deletes the refresh
// token named in the body when it belongs to the caller.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := claimsFromContext(r.Context())
		if !ok {
			writeTokenNotValid(w)
			return
		}

		var req tokenPairBody
		_ = decodeJSON(r, &req) // body is optional

		if req.Refresh != "" {
			if stored, err := s.refresh.Validate(req.Refresh); err == nil && stored.UserID == claims.Subject {
				if err := s.refresh.Delete(req.Refresh); err != nil {
					log.Warn().Err(err).Str("user_id", claims.Subject).Msg("Failed to delete refresh token")
				}
			}
		}
		if claims.JTI != "" {
			if err := s.revoked.Add(claims.JTI, claims.ExpiresAt); err != nil {
				log.Warn().Err(err).Str("user_id", claims.Subject).Msg("Failed to revoke access token")
			}
		}

		log.Info().Str("user_id", claims.Subject).Msg("User logged out")
		writeDetail(w, http.StatusOK, "Successfully logged out")
	}
}

func (s *Server) tokenPair(user *users.User) (access, refresh string, err error) {
	access, err = s.creator.CreateAccessToken(user, primaryTenantID(user))
	if err != nil {
		return "", "", err
	}
	refresh, err = s.refresh.Create(user.ID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func primaryTenantID(user *users.User) string {
	if m := users.PrimaryMembership(user.Tenants); m != nil {
		return m.Tenant.ID
	}
	return ""
}

// validationFields flattens ozzo validation errors into the API's
// {field: [messages]} shape.
func validationFields(err error) map[string][]string {
	fields := map[string][]string{}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		fields["non_field_errors"] = []string{err.Error()}
		return fields
	}
	for name, fieldErr := range verrs {
		if fieldErr == nil {
			continue
		}
		fields[name] = append(fields[name], fieldErr.Error())
	}
	return fields
}
