package users

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jrsteele09/rhr-session/tenants"
	"golang.org/x/crypto/bcrypt"
)

// RoleType is a user's role within a tenant
type RoleType string

const (
	RoleOwner    RoleType = "owner"
	RoleAdmin    RoleType = "admin"
	RoleManager  RoleType = "manager"
	RoleEmployee RoleType = "employee"
	RoleViewer   RoleType = "viewer"
)

// TenantMembership represents a user's membership and role within a tenant
type TenantMembership struct {
	ID        string         `json:"id"`
	Tenant    tenants.Tenant `json:"tenant"`
	Role      RoleType       `json:"role"`
	IsDefault bool           `json:"is_default"`
	CreatedAt time.Time      `json:"created_at"`
}

// User is the authenticated principal as returned by the identity service.
type User struct {
	ID           string             `json:"id"`
	Email        string             `json:"email"`
	PasswordHash string             `json:"-"` // never serialize
	FirstName    string             `json:"first_name,omitempty"`
	LastName     string             `json:"last_name,omitempty"`
	FullName     string             `json:"full_name,omitempty"`
	Avatar       *string            `json:"avatar,omitempty"`
	IsActive     bool               `json:"is_active"`
	Tenants      []TenantMembership `json:"tenants,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// DisplayName returns the full name, falling back to the email address.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Email
}

func (u *User) HasTenant(tenantID string) bool {
	return u.GetTenantMembership(tenantID) != nil
}

// GetTenantMembership returns the user's membership for a specific tenant
func (u *User) GetTenantMembership(tenantID string) *TenantMembership {
	return FindMembership(u.Tenants, tenantID)
}

// FindMembership returns the membership for tenantID, or nil.
func FindMembership(memberships []TenantMembership, tenantID string) *TenantMembership {
	for i := range memberships {
		if memberships[i].Tenant.ID == tenantID {
			return &memberships[i]
		}
	}
	return nil
}

// PrimaryMembership picks the membership a session starts in: the one flagged
// as default, otherwise the first. Returns nil for no memberships.
func PrimaryMembership(memberships []TenantMembership) *TenantMembership {
	for i := range memberships {
		if memberships[i].IsDefault {
			return &memberships[i]
		}
	}
	if len(memberships) > 0 {
		return &memberships[0]
	}
	return nil
}

// CloneMemberships copies a membership list so callers cannot alias it.
func CloneMemberships(memberships []TenantMembership) []TenantMembership {
	if memberships == nil {
		return nil
	}
	out := make([]TenantMembership, len(memberships))
	copy(out, memberships)
	return out
}

// Clone returns a copy of u that shares no slices or pointers with it.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Tenants = CloneMemberships(u.Tenants)
	if u.Avatar != nil {
		avatar := *u.Avatar
		c.Avatar = &avatar
	}
	return &c
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
