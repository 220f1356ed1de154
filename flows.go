package accounts

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Flows orchestrates the page-level sequences over the two stores and the
// identity backend: sign up, sign in, invite acceptance, and the email
// confirmation screens. Every method returns errors for the form boundary
// to render inline; redirect targets come back as route paths.
type Flows struct {
	sessions *SessionStore
	profiles *ProfileStore
	backend  Identities
	logger   Logger
}

func NewFlows(sessions *SessionStore, profiles *ProfileStore, backend Identities) *Flows {
	return &Flows{
		sessions: sessions,
		profiles: profiles,
		backend:  backend,
		logger:   defLogger{},
	}
}

func (f *Flows) WithLogger(l Logger) *Flows {
	if l != nil {
		f.logger = l
	}
	return f
}

// SignUp validates the form, registers the identity with its metadata
// attached, and returns the confirm-email route. Validation failures
// reject before any backend call.
func (f *Flows) SignUp(ctx context.Context, form SignUpForm) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}

	_, err := f.sessions.SignUp(ctx, form.Email, form.Password, form.Metadata())
	if err != nil {
		if strings.Contains(err.Error(), "already registered") {
			return "", ErrDuplicateRegistration
		}
		return "", err
	}

	return RouteConfirmEmail, nil
}

// SignIn authenticates, loads the profile for the new session's identity,
// and resolves the dashboard route. A confirmed sign-in without a profile
// is an error: the visitor must sign up and confirm first.
func (f *Flows) SignIn(ctx context.Context, form SignInForm) (string, error) {
	if err := form.Validate(); err != nil {
		return "", err
	}

	sess, err := f.sessions.SignIn(ctx, form.Email, form.Password)
	if err != nil {
		return "", err
	}

	profile, err := f.profiles.FetchUserProfile(ctx, sess.UserID())
	if err != nil {
		if IsNotFound(err) {
			return "", goerrors.New(
				"user profile not found, please sign up and confirm your email",
				goerrors.CategoryNotFound,
			).WithCode(goerrors.CodeNotFound)
		}
		return "", err
	}

	return DashboardRoute(profile.Role), nil
}

// RedirectIfAuthenticated backs the sign-in and sign-up screens: a
// visitor who already holds a session goes straight to their dashboard.
func (f *Flows) RedirectIfAuthenticated(ctx context.Context) (string, bool) {
	sess := f.sessions.Session()
	if sess == nil || sess.User == nil {
		return "", false
	}

	profile, err := f.profiles.FetchUserProfile(ctx, sess.User.ID)
	if err != nil {
		f.logger.Error("failed to redirect to dashboard", "error", err)
		return "", false
	}

	return DashboardRoute(profile.Role), true
}

// AcceptInvite exchanges the invite code for a session, updates the
// identity's password and metadata, creates the profile, and resolves the
// dashboard route.
func (f *Flows) AcceptInvite(ctx context.Context, frag InviteFragment, form InviteForm) (string, error) {
	if err := frag.Validate(); err != nil {
		return "", err
	}
	if err := form.Validate(); err != nil {
		return "", err
	}

	sess, err := f.backend.ExchangeCode(ctx, frag.Code)
	if err != nil {
		return "", wrapAuth(err, "invite code exchange failed")
	}
	if sess == nil || sess.User == nil {
		return "", ErrSessionNotFound
	}

	meta := form.Metadata()
	if _, err := f.backend.UpdateUser(ctx, form.Password, meta); err != nil {
		return "", wrapAuth(err, "failed to update invited user")
	}

	identity := *sess.User
	identity.Metadata = meta

	profile, err := f.profiles.CreateUserProfile(ctx, &identity)
	if err != nil {
		return "", err
	}

	return DashboardRoute(profile.Role), nil
}

// ConfirmationResult is the /confirmation screen outcome: either a
// redirect target or a message to display.
type ConfirmationResult struct {
	Redirect string
	Message  string
}

// Confirmation handles the landing from the confirmation link: it
// requires a signed-in, confirmed identity, creates the profile when it
// does not exist yet, and resolves the dashboard.
func (f *Flows) Confirmation(ctx context.Context) ConfirmationResult {
	identity := f.sessions.Identity()
	if identity == nil {
		f.logger.Info("no user signed in on confirmation landing")
		return ConfirmationResult{Redirect: RouteSignIn}
	}

	if !identity.Confirmed() {
		// Landing here unconfirmed means the tokens appended to the
		// confirmation link did not establish a confirmed session.
		return ConfirmationResult{Message: "Your email is not confirmed yet. Please check your inbox."}
	}

	if profile := f.profiles.Profile(); profile != nil {
		return ConfirmationResult{Redirect: DashboardRoute(profile.Role)}
	}

	profile, err := f.profiles.CreateUserProfile(ctx, identity)
	if err != nil {
		return ConfirmationResult{Message: "Error creating profile: " + err.Error()}
	}

	return ConfirmationResult{Redirect: DashboardRoute(profile.Role)}
}

// ConfirmEmailResult is the /confirm-email holding screen state.
type ConfirmEmailResult struct {
	Message       string
	DashboardPath string
}

// ConfirmEmail reports where the just-registered visitor stands: waiting
// on the confirmation link, confirmed with a profile, or confirmed
// without one.
func (f *Flows) ConfirmEmail(ctx context.Context) ConfirmEmailResult {
	sess := f.sessions.Session()
	if sess == nil {
		return ConfirmEmailResult{
			Message: "Confirmation email sent. Please check your inbox and click the link to continue.",
		}
	}

	if sess.User.Confirmed() {
		if profile := f.profiles.Profile(); profile != nil {
			return ConfirmEmailResult{
				Message:       "Email confirmed!",
				DashboardPath: DashboardRoute(profile.Role),
			}
		}
		return ConfirmEmailResult{Message: "Email confirmed, but user profile not found."}
	}

	return ConfirmEmailResult{
		Message: "Confirmation email sent. Please check your inbox and click the link to continue.",
	}
}
