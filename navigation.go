package accounts

// Client-side routes exposed by this system.
const (
	RouteHome             = "/"
	RouteSignUp           = "/signup"
	RouteSignIn           = "/signin"
	RouteConfirmEmail     = "/confirm-email"
	RouteConfirmation     = "/confirmation"
	RouteAcceptInvite     = "/accept-invite"
	RouteUnauthorized     = "/unauthorized"
	RouteStudentDashboard = "/student-dashboard"
	RouteAdminDashboard   = "/admin-dashboard"
)

// NavLogger receives the diagnostic for unrecognized roles.
var NavLogger Logger = defLogger{}

// DashboardRoute maps a role to its dashboard path. Any role other than
// admin or student, including unrecognized role strings, falls back to the
// student dashboard. That fallback is a deliberate, documented policy: it
// silently grants student-level routing to unknown roles, so it is logged
// and pinned by tests rather than treated as an oversight.
func DashboardRoute(role Role) string {
	switch role {
	case RoleAdmin:
		return RouteAdminDashboard
	case RoleStudent:
		return RouteStudentDashboard
	default:
		NavLogger.Info("unknown role, routing to student dashboard", "role", string(role))
		return RouteStudentDashboard
	}
}
