package accounts

import (
	"time"

	"github.com/goliatone/go-router"
)

// GuardOutcome is the route guard's decision for a protected view.
type GuardOutcome int

const (
	// GuardAllow renders the protected content.
	GuardAllow GuardOutcome = iota
	// GuardLoading renders a loading placeholder; no redirect.
	GuardLoading
	// GuardRedirectSignIn sends the visitor to sign in, remembering the
	// attempted location for the post-login return.
	GuardRedirectSignIn
	// GuardRedirectUnauthorized sends an authenticated visitor without
	// the required role to the unauthorized page.
	GuardRedirectUnauthorized
)

func (o GuardOutcome) String() string {
	switch o {
	case GuardAllow:
		return "allow"
	case GuardLoading:
		return "loading"
	case GuardRedirectSignIn:
		return "redirect-sign-in"
	case GuardRedirectUnauthorized:
		return "redirect-unauthorized"
	default:
		return "unknown"
	}
}

// GuardInput is the combined store state a protected view is evaluated
// against.
type GuardInput struct {
	Session        *Session
	Identity       *Identity
	Profile        *UserProfile
	LoadingProfile bool
	RequiredRoles  []Role
}

// EvaluateGuard is the guard decision table. The loading check precedes
// the role check: a profile that has not arrived yet is pending, not a
// missing permission. Authorization is never granted on the session
// alone; the profile's role must match.
func EvaluateGuard(in GuardInput) GuardOutcome {
	if in.Session == nil && in.Identity == nil {
		return GuardRedirectSignIn
	}
	if in.LoadingProfile {
		return GuardLoading
	}
	if in.Profile == nil || !roleAllowed(in.Profile.Role, in.RequiredRoles) {
		return GuardRedirectUnauthorized
	}
	return GuardAllow
}

func roleAllowed(role Role, required []Role) bool {
	for _, r := range required {
		if role == r {
			return true
		}
	}
	return false
}

// Guard binds the decision table to the two stores and exposes it as
// router middleware for the dashboard routes.
type Guard struct {
	sessions *SessionStore
	profiles *ProfileStore
	cfg      Config
	logger   Logger
}

func NewGuard(sessions *SessionStore, profiles *ProfileStore, cfg Config) *Guard {
	return &Guard{
		sessions: sessions,
		profiles: profiles,
		cfg:      cfg,
		logger:   defLogger{},
	}
}

func (g *Guard) WithLogger(l Logger) *Guard {
	if l != nil {
		g.logger = l
	}
	return g
}

// Evaluate runs the decision table against the current store state.
func (g *Guard) Evaluate(roles ...Role) GuardOutcome {
	return EvaluateGuard(GuardInput{
		Session:        g.sessions.Session(),
		Identity:       g.sessions.Identity(),
		Profile:        g.profiles.Profile(),
		LoadingProfile: g.profiles.Loading(),
		RequiredRoles:  roles,
	})
}

// RequireRoles gates a route on the guard outcome. Redirects and the
// loading placeholder are routing outcomes, never errors.
func (g *Guard) RequireRoles(roles ...Role) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			switch outcome := g.Evaluate(roles...); outcome {
			case GuardLoading:
				return ctx.Render("loading", router.ViewContext{
					"title": "Loading",
				})
			case GuardRedirectSignIn:
				g.SetRedirect(ctx)
				return ctx.Redirect(g.cfg.GetSignInPath(), router.StatusSeeOther)
			case GuardRedirectUnauthorized:
				g.logger.Info("access denied",
					"path", ctx.OriginalURL(),
					"required_roles", roles,
				)
				return ctx.Redirect(g.cfg.GetUnauthorizedPath(), router.StatusSeeOther)
			default:
				ctx.Locals(TemplateUserKey, g.profiles.Profile())
				return next(ctx)
			}
		}
	}
}

// SetRedirect remembers the attempted location so the sign-in flow can
// return the visitor after authentication.
func (g *Guard) SetRedirect(ctx router.Context) {
	key := g.cfg.GetRejectedRouteKey()
	g.logger.Debug("setting redirect cookie", "key", key, "path", ctx.OriginalURL())

	ctx.Cookie(&router.Cookie{
		Name:     key,
		Value:    ctx.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GetRedirect consumes the remembered location, falling back to def.
func (g *Guard) GetRedirect(ctx router.Context, def string) string {
	key := g.cfg.GetRejectedRouteKey()
	r := ctx.Cookies(key)
	if r == "" {
		return def
	}
	ctx.Cookie(&router.Cookie{
		Name:     key,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * 24),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
	return r
}
