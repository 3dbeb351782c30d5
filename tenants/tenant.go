package tenants

import (
	"regexp"
	"strings"
	"time"
)

type Plan string

const (
	PlanFree         Plan = "free"
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
)

// Tenant is an organisation scope. Requests made on behalf of a tenant carry
// its ID in the X-Tenant-ID header.
type Tenant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Domain       *string   `json:"domain,omitempty"`
	IsActive     bool      `json:"is_active"`
	Plan         Plan      `json:"plan,omitempty"`
	MaxEmployees int       `json:"max_employees,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL safe slug from a tenant name.
func Slugify(name string) string {
	return strings.Trim(nonSlugChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
}
