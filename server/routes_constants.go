package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	APIPrefix = "/api/v1"

	// Auth Routes
	RouteAuthLogin    = APIPrefix + "/auth/login/"
	RouteAuthRegister = APIPrefix + "/auth/register/"
	RouteAuthRefresh  = APIPrefix + "/auth/refresh/"
	RouteAuthLogout   = APIPrefix + "/auth/logout/"

	// Resource Routes
	RouteUsersMe        = APIPrefix + "/users/me/"
	RouteTenantsCurrent = APIPrefix + "/tenants/current/"
	RouteHealth         = APIPrefix + "/health/"

	// Operations
	RouteMetrics = "/metrics"
)
