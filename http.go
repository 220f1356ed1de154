package accounts

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// AccountsControllerRoutes are the client-side paths this system exposes.
type AccountsControllerRoutes struct {
	Home             string
	SignUp           string
	SignIn           string
	SignOut          string
	ConfirmEmail     string
	Confirmation     string
	AcceptInvite     string
	Unauthorized     string
	StudentDashboard string
	AdminDashboard   string
}

type AccountsControllerViews struct {
	Home             string
	SignUp           string
	SignIn           string
	ConfirmEmail     string
	Confirmation     string
	AcceptInvite     string
	Unauthorized     string
	StudentDashboard string
	AdminDashboard   string
}

type AccountsController struct {
	Debug    bool
	Logger   Logger
	Flows    *Flows
	Guard    *Guard
	Sessions *SessionStore
	Profiles *ProfileStore
	Routes   *AccountsControllerRoutes
	Views    *AccountsControllerViews
}

type AccountsControllerOption func(*AccountsController) *AccountsController

func WithControllerLogger(l Logger) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func WithControllerFlows(f *Flows) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Flows = f
		return c
	}
}

func WithControllerGuard(g *Guard) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Guard = g
		return c
	}
}

func WithControllerStores(sessions *SessionStore, profiles *ProfileStore) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Sessions = sessions
		c.Profiles = profiles
		return c
	}
}

func WithControllerDebug(debug bool) AccountsControllerOption {
	return func(c *AccountsController) *AccountsController {
		c.Debug = debug
		return c
	}
}

func NewAccountsController(opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger: defLogger{},
		Routes: &AccountsControllerRoutes{
			Home:             RouteHome,
			SignUp:           RouteSignUp,
			SignIn:           RouteSignIn,
			SignOut:          "/signout",
			ConfirmEmail:     RouteConfirmEmail,
			Confirmation:     RouteConfirmation,
			AcceptInvite:     RouteAcceptInvite,
			Unauthorized:     RouteUnauthorized,
			StudentDashboard: RouteStudentDashboard,
			AdminDashboard:   RouteAdminDashboard,
		},
		Views: &AccountsControllerViews{
			Home:             "home",
			SignUp:           "signup",
			SignIn:           "signin",
			ConfirmEmail:     "confirm_email",
			Confirmation:     "confirmation",
			AcceptInvite:     "accept_invite",
			Unauthorized:     "unauthorized",
			StudentDashboard: "student_dashboard",
			AdminDashboard:   "admin_dashboard",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Flows == nil {
		panic("Missing Flows in accounts controller...")
	}
	if c.Guard == nil {
		panic("Missing Guard in accounts controller...")
	}
	if c.Sessions == nil || c.Profiles == nil {
		panic("Missing stores in accounts controller...")
	}

	return c
}

// RegisterAccountRoutes mounts every client-side route, with the guard
// middleware on the two dashboards.
func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountsControllerOption) *AccountsController {
	controller := NewAccountsController(opts...)

	app.Get(controller.Routes.Home, controller.HomeShow).SetName("home.get")

	app.Get(controller.Routes.SignUp, controller.SignUpShow).SetName("sign-up.get")
	app.Post(controller.Routes.SignUp, controller.SignUpPost).SetName("sign-up.post")

	app.Get(controller.Routes.SignIn, controller.SignInShow).SetName("sign-in.get")
	app.Post(controller.Routes.SignIn, controller.SignInPost).SetName("sign-in.post")

	app.Post(controller.Routes.SignOut, controller.SignOutPost).SetName("sign-out.post")

	app.Get(controller.Routes.ConfirmEmail, controller.ConfirmEmailShow).SetName("confirm-email.get")
	app.Get(controller.Routes.Confirmation, controller.ConfirmationShow).SetName("confirmation.get")

	app.Get(controller.Routes.AcceptInvite, controller.AcceptInviteShow).SetName("accept-invite.get")
	app.Post(controller.Routes.AcceptInvite, controller.AcceptInvitePost).SetName("accept-invite.post")

	app.Get(controller.Routes.Unauthorized, controller.UnauthorizedShow).SetName("unauthorized.get")

	app.Get(
		controller.Routes.StudentDashboard,
		controller.StudentDashboardShow,
		controller.Guard.RequireRoles(RoleStudent, RoleAdmin),
	).SetName("student-dashboard.get")

	app.Get(
		controller.Routes.AdminDashboard,
		controller.AdminDashboardShow,
		controller.Guard.RequireRoles(RoleAdmin),
	).SetName("admin-dashboard.get")

	if controller.Debug {
		app.Get("/debug/session", controller.DebugSession).SetName("debug-session.get")
	}

	return controller
}

func (a *AccountsController) HomeShow(ctx router.Context) error {
	return ctx.Render(a.Views.Home, router.ViewContext{
		"title": "Virtual GTA",
	})
}

func (a *AccountsController) SignUpShow(ctx router.Context) error {
	if redirect, ok := a.Flows.RedirectIfAuthenticated(ctx.Context()); ok {
		return ctx.Redirect(redirect, router.StatusSeeOther)
	}
	return ctx.Render(a.Views.SignUp, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

func (a *AccountsController) SignUpPost(ctx router.Context) error {
	payload := new(SignUpForm)
	if err := ctx.Bind(payload); err != nil {
		return ctx.Status(fiber.StatusBadRequest).Render(a.Views.SignUp, router.ViewContext{
			"errors": err.Error(),
			"record": payload,
		})
	}

	redirect, err := a.Flows.SignUp(ctx.Context(), *payload)
	if err != nil {
		a.Logger.Info("sign up rejected", "error", err)
		return ctx.Status(fiber.StatusBadRequest).Render(a.Views.SignUp, router.ViewContext{
			"errors": err.Error(),
			"record": payload,
		})
	}

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AccountsController) SignInShow(ctx router.Context) error {
	if redirect, ok := a.Flows.RedirectIfAuthenticated(ctx.Context()); ok {
		return ctx.Redirect(redirect, router.StatusSeeOther)
	}
	return ctx.Render(a.Views.SignIn, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

func (a *AccountsController) SignInPost(ctx router.Context) error {
	payload := new(SignInForm)
	if err := ctx.Bind(payload); err != nil {
		return ctx.Status(fiber.StatusBadRequest).Render(a.Views.SignIn, router.ViewContext{
			"errors": err.Error(),
			"record": payload,
		})
	}

	dashboard, err := a.Flows.SignIn(ctx.Context(), *payload)
	if err != nil {
		a.Logger.Info("sign in rejected", "error", err)
		return ctx.Status(fiber.StatusBadRequest).Render(a.Views.SignIn, router.ViewContext{
			"errors": err.Error(),
			"record": payload,
		})
	}

	// A remembered location from a guarded route wins over the default
	// dashboard.
	return ctx.Redirect(a.Guard.GetRedirect(ctx, dashboard), router.StatusSeeOther)
}

func (a *AccountsController) SignOutPost(ctx router.Context) error {
	if err := a.Sessions.SignOut(ctx.Context()); err != nil {
		a.Logger.Error("sign out failed", "error", err)
	}
	return ctx.Redirect(a.Routes.Home, router.StatusSeeOther)
}

func (a *AccountsController) ConfirmEmailShow(ctx router.Context) error {
	result := a.Flows.ConfirmEmail(ctx.Context())
	return ctx.Render(a.Views.ConfirmEmail, router.ViewContext{
		"message":        result.Message,
		"dashboard_path": result.DashboardPath,
	})
}

func (a *AccountsController) ConfirmationShow(ctx router.Context) error {
	result := a.Flows.Confirmation(ctx.Context())
	if result.Redirect != "" {
		return ctx.Redirect(result.Redirect, router.StatusSeeOther)
	}
	return ctx.Render(a.Views.Confirmation, router.ViewContext{
		"message": result.Message,
	})
}

func (a *AccountsController) AcceptInviteShow(ctx router.Context) error {
	return ctx.Render(a.Views.AcceptInvite, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// AcceptInviteRequest carries the invite form plus the raw URL fragment,
// which the page forwards since fragments never reach the server.
type AcceptInviteRequest struct {
	InviteForm
	Fragment string `form:"fragment" json:"fragment"`
}

func (a *AccountsController) AcceptInvitePost(ctx router.Context) error {
	payload := new(AcceptInviteRequest)
	if err := ctx.Bind(payload); err != nil {
		return ctx.Status(fiber.StatusBadRequest).Render(a.Views.AcceptInvite, router.ViewContext{
			"errors": err.Error(),
			"record": payload,
		})
	}

	frag, err := ParseInviteFragment(payload.Fragment)
	if err == nil {
		var redirect string
		redirect, err = a.Flows.AcceptInvite(ctx.Context(), frag, payload.InviteForm)
		if err == nil {
			return ctx.Redirect(redirect, router.StatusSeeOther)
		}
	}

	a.Logger.Info("invite acceptance rejected", "error", err)
	return ctx.Status(fiber.StatusBadRequest).Render(a.Views.AcceptInvite, router.ViewContext{
		"errors": err.Error(),
		"record": payload,
	})
}

func (a *AccountsController) UnauthorizedShow(ctx router.Context) error {
	return ctx.Render(a.Views.Unauthorized, router.ViewContext{
		"title": "Unauthorized",
	})
}

func (a *AccountsController) StudentDashboardShow(ctx router.Context) error {
	return ctx.Render(a.Views.StudentDashboard, router.ViewContext{
		"profile": a.currentProfile(ctx),
	})
}

func (a *AccountsController) AdminDashboardShow(ctx router.Context) error {
	return ctx.Render(a.Views.AdminDashboard, router.ViewContext{
		"profile": a.currentProfile(ctx),
	})
}

func (a *AccountsController) currentProfile(ctx router.Context) *UserProfile {
	if profile, ok := CurrentProfile(ctx); ok {
		return profile
	}
	return a.Profiles.Profile()
}

// DebugSession dumps the current store state; mounted only with Debug on.
func (a *AccountsController) DebugSession(ctx router.Context) error {
	state := map[string]any{
		"session":  a.Sessions.Session(),
		"identity": a.Sessions.Identity(),
		"profile":  a.Profiles.Profile(),
		"loading":  a.Profiles.Loading(),
	}
	return ctx.SendString(print.MaybeHighlightJSON(state))
}
