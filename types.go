package accounts

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Unsubscribe tears down a subscription. Implementations must be
// idempotent; calling an Unsubscribe twice is a no-op.
type Unsubscribe func()

// AuthEvent identifies a session transition reported by the identity
// backend.
type AuthEvent string

const (
	AuthEventSignedIn       AuthEvent = "SIGNED_IN"
	AuthEventSignedOut      AuthEvent = "SIGNED_OUT"
	AuthEventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	AuthEventUserUpdated    AuthEvent = "USER_UPDATED"
)

// AuthChange is a single session transition. Session is nil on sign out.
type AuthChange struct {
	Event   AuthEvent
	Session *Session
}

// Identities is the hosted identity backend surface the session store and
// flows depend on. Session returns (nil, nil) when no session exists.
type Identities interface {
	Session(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string, meta SignupMetadata) (*Identity, error)
	SignOut(ctx context.Context) error
	ExchangeCode(ctx context.Context, code string) (*Session, error)
	UpdateUser(ctx context.Context, password string, meta SignupMetadata) (*Identity, error)
	OnAuthChange(fn func(AuthChange)) Unsubscribe
}

// Profiles is the database backend surface for the users table. OnRowUpdate
// delivers pushed updates for the row with the given id until unsubscribed.
type Profiles interface {
	Insert(ctx context.Context, profile *UserProfile) (*UserProfile, error)
	Select(ctx context.Context, id uuid.UUID) (*UserProfile, error)
	Update(ctx context.Context, id uuid.UUID, fields map[string]any) error
	OnRowUpdate(id uuid.UUID, fn func(*UserProfile)) Unsubscribe
}

// Config holds accounts options
type Config interface {
	GetSignInPath() string
	GetUnauthorizedPath() string
	GetRejectedRouteKey() string
	GetEmailRedirectTo() string
}

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println(append([]any{"[ERR] ACCOUNTS " + msg}, args...)...)
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println(append([]any{"[WRN] ACCOUNTS " + msg}, args...)...)
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println(append([]any{"[INF] ACCOUNTS " + msg}, args...)...)
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println(append([]any{"[DBG] ACCOUNTS " + msg}, args...)...)
}
