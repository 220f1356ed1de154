package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Role is the application-level user role
type Role = string

const (
	// RoleGuest has no dashboard of its own
	RoleGuest Role = "guest"
	// RoleStudent can access the student dashboard
	RoleStudent Role = "student"
	// RoleAdmin can access both dashboards
	RoleAdmin Role = "admin"
)

// ParseRole validates a raw role string
func ParseRole(s string) (Role, bool) {
	switch s {
	case RoleGuest, RoleStudent, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// UserStatus is the profile lifecycle status
type UserStatus = string

const (
	UserStatusUnverified UserStatus = "unverified"
	UserStatusActive     UserStatus = "active"
	UserStatusBanned     UserStatus = "banned"
)

// UserProfile is the extended application record, one-to-one with the
// identity held by the identity backend. The id equals the identity id.
type UserProfile struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Role          Role       `bun:"user_role,notnull" json:"role,omitempty"`
	FirstName     string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName      string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Status        UserStatus `bun:"status,notnull" json:"status,omitempty"`
	TokenCount    int        `bun:"token_count,notnull,default:0" json:"token_count"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// EnsureStatus backfills the zero value with the post-signup default.
func (p *UserProfile) EnsureStatus() {
	if p.Status == "" {
		p.Status = UserStatusUnverified
	}
}

// Clone returns a shallow copy so store snapshots cannot be mutated by
// callers.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
