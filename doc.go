// Package accounts implements the account management layer for the
// Virtual GTA application: a session store that tracks the authenticated
// session against a hosted identity backend, a profile store that mirrors
// the extended user record, a route guard that decides render vs redirect
// for protected dashboards, and the page flows (sign up, sign in, invite
// acceptance, email confirmation) that tie them together.
//
// The identity and database backend is injected through the Identities and
// Profiles interfaces, so the stores are testable in isolation and the
// hosted provider can be swapped for the local one in development.
package accounts
