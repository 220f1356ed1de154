package accounts

// TemplateUserKey is the locals key the guard stores the authenticated
// profile under, exposed to views as current_user.
var TemplateUserKey = "current_user"

// TemplateHelpers returns helper functions and data for the view engine.
//
// In templates:
//
//	{% if current_user %}
//	{% if has_role(current_user, "admin") %}
//	<a href="{{ dashboard_path(current_user) }}">Dashboard</a>
func TemplateHelpers() map[string]any {
	return map[string]any{
		"is_authenticated": isAuthenticatedHelper,
		"has_role":         hasRoleHelper,
		"display_name":     displayNameHelper,
		"dashboard_path":   dashboardPathHelper,

		// Role and route constants for easy template access
		"roles": map[string]string{
			"guest":   string(RoleGuest),
			"student": string(RoleStudent),
			"admin":   string(RoleAdmin),
		},
		"routes": map[string]string{
			"home":              RouteHome,
			"sign_up":           RouteSignUp,
			"sign_in":           RouteSignIn,
			"confirm_email":     RouteConfirmEmail,
			"confirmation":      RouteConfirmation,
			"accept_invite":     RouteAcceptInvite,
			"unauthorized":      RouteUnauthorized,
			"student_dashboard": RouteStudentDashboard,
			"admin_dashboard":   RouteAdminDashboard,
		},
	}
}

func isAuthenticatedHelper(profile *UserProfile) bool {
	return profile != nil
}

func hasRoleHelper(profile *UserProfile, role string) bool {
	return profile != nil && string(profile.Role) == role
}

func displayNameHelper(profile *UserProfile) string {
	if profile == nil {
		return ""
	}
	if profile.FirstName != "" {
		return profile.FirstName
	}
	return profile.Username
}

func dashboardPathHelper(profile *UserProfile) string {
	if profile == nil {
		return RouteSignIn
	}
	return DashboardRoute(profile.Role)
}
