package accounts_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	accounts "github.com/virtualgta/go-accounts"
)

func TestDashboardRoute(t *testing.T) {
	assert.Equal(t, accounts.RouteAdminDashboard, accounts.DashboardRoute(accounts.RoleAdmin))
	assert.Equal(t, accounts.RouteStudentDashboard, accounts.DashboardRoute(accounts.RoleStudent))
}

// Unknown roles intentionally fall back to the student dashboard. The
// route guard still denies the dashboard itself for roles it does not
// accept, so the fallback only affects where the redirect points.
func TestDashboardRouteFallsBackToStudent(t *testing.T) {
	prev := accounts.NavLogger
	accounts.NavLogger = quietLogger{}
	defer func() { accounts.NavLogger = prev }()

	assert.Equal(t, accounts.RouteStudentDashboard, accounts.DashboardRoute(accounts.RoleGuest))
	assert.Equal(t, accounts.RouteStudentDashboard, accounts.DashboardRoute(""))
	assert.Equal(t, accounts.RouteStudentDashboard, accounts.DashboardRoute("superuser"))
}

func TestParseRole(t *testing.T) {
	for _, valid := range []string{"guest", "student", "admin"} {
		role, ok := accounts.ParseRole(valid)
		assert.True(t, ok)
		assert.Equal(t, valid, string(role))
	}

	_, ok := accounts.ParseRole("root")
	assert.False(t, ok)
}
