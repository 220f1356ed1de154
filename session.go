package accounts

import (
	"time"

	"github.com/google/uuid"
)

// SignupMetadata is the arbitrary metadata attached to an identity at sign
// up and copied into the profile row on creation.
type SignupMetadata struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

func (m SignupMetadata) IsZero() bool {
	return m == SignupMetadata{}
}

// Identity is the authenticated user's core record at the identity
// provider. ConfirmedAt is nil until the email is verified.
type Identity struct {
	ID          uuid.UUID      `json:"id"`
	Email       string         `json:"email"`
	ConfirmedAt *time.Time     `json:"confirmed_at,omitempty"`
	Metadata    SignupMetadata `json:"user_metadata"`
}

// Confirmed reports whether the identity has completed email verification.
func (i *Identity) Confirmed() bool {
	return i != nil && i.ConfirmedAt != nil
}

// Session is the credential bundle issued by the identity backend. It is
// replaced wholesale on refresh and owned exclusively by the session store.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *Identity `json:"user"`
}

// Expired reports whether the session's access token is past its expiry.
func (s *Session) Expired() bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// UserID returns the associated identity id, or uuid.Nil when the session
// carries no identity.
func (s *Session) UserID() uuid.UUID {
	if s == nil || s.User == nil {
		return uuid.Nil
	}
	return s.User.ID
}
