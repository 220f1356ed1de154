package accounts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProfileStore mirrors the authenticated user's extended profile row. It
// reacts to the session store: when the identity id changes the store
// drops its old row subscription and establishes one for the new id; when
// the identity goes away the profile clears with no network round trip.
// Safe for concurrent use.
type ProfileStore struct {
	backend  Profiles
	sessions *SessionStore
	logger   Logger
	now      func() time.Time

	mu           sync.Mutex
	profile      *UserProfile
	loading      bool
	lastErr      string
	currentID    uuid.UUID
	rowUnsub     Unsubscribe
	sessionUnsub Unsubscribe
	started      bool
	closed       bool
}

type ProfileStoreOption func(*ProfileStore)

func WithProfileLogger(l Logger) ProfileStoreOption {
	return func(p *ProfileStore) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithProfileClock injects a custom clock (useful for tests).
func WithProfileClock(clock func() time.Time) ProfileStoreOption {
	return func(p *ProfileStore) {
		if clock != nil {
			p.now = clock
		}
	}
}

func NewProfileStore(backend Profiles, sessions *SessionStore, opts ...ProfileStoreOption) *ProfileStore {
	p := &ProfileStore{
		backend:  backend,
		sessions: sessions,
		logger:   defLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start wires the store to session transitions. Idempotent.
func (p *ProfileStore) Start() {
	p.mu.Lock()
	if p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	unsub := p.sessions.OnChange(p.onSession)

	p.mu.Lock()
	if p.closed {
		// Close ran between the two critical sections and never saw this
		// subscription, so it is released here.
		p.mu.Unlock()
		unsub()
		return
	}
	p.sessionUnsub = unsub
	p.mu.Unlock()
}

func (p *ProfileStore) onSession(snap SessionSnapshot) {
	id := uuid.Nil
	if snap.Identity != nil {
		id = snap.Identity.ID
	}

	p.mu.Lock()
	if p.closed || id == p.currentID {
		p.mu.Unlock()
		return
	}

	// Tear down the old row subscription before anything else so at most
	// one is ever live.
	old := p.rowUnsub
	p.rowUnsub = nil
	p.currentID = id

	if id == uuid.Nil {
		p.profile = nil
		p.mu.Unlock()
		if old != nil {
			old()
		}
		return
	}
	p.mu.Unlock()

	if old != nil {
		old()
	}

	sub := p.backend.OnRowUpdate(id, p.applyRow)

	p.mu.Lock()
	if p.closed || p.currentID != id {
		// The id moved on (or the store closed) while we subscribed.
		p.mu.Unlock()
		sub()
		return
	}
	p.rowUnsub = sub
	p.mu.Unlock()
}

// applyRow installs a pushed row update, provided it still belongs to the
// current identity.
func (p *ProfileStore) applyRow(profile *UserProfile) {
	if profile == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || profile.ID != p.currentID {
		return
	}
	p.logger.Debug("user profile updated", "id", profile.ID.String())
	p.profile = profile.Clone()
}

// CreateUserProfile inserts the users row for the identity, copying
// email, username, and names from the signup metadata. The identity must
// carry metadata; backend failures (e.g. a duplicate id) surface
// unmodified.
func (p *ProfileStore) CreateUserProfile(ctx context.Context, identity *Identity) (*UserProfile, error) {
	if identity == nil || identity.Metadata.IsZero() {
		p.setErr("profile creation failed: no signup metadata found")
		return nil, ErrMissingSignupMetadata
	}

	p.beginCall()
	defer p.endCall()

	record := &UserProfile{
		ID:        identity.ID,
		Email:     identity.Email,
		Username:  identity.Metadata.Username,
		FirstName: identity.Metadata.FirstName,
		LastName:  identity.Metadata.LastName,
	}

	created, err := p.backend.Insert(ctx, record)
	if err != nil {
		p.setErr(err.Error())
		return nil, err
	}

	p.setProfile(created)
	return created.Clone(), nil
}

// FetchUserProfile loads the row for the given id and replaces the stored
// profile.
func (p *ProfileStore) FetchUserProfile(ctx context.Context, userID uuid.UUID) (*UserProfile, error) {
	p.beginCall()
	defer p.endCall()

	return p.fetch(ctx, userID)
}

func (p *ProfileStore) fetch(ctx context.Context, userID uuid.UUID) (*UserProfile, error) {
	profile, err := p.backend.Select(ctx, userID)
	if err != nil {
		err = wrapProfile(err, "failed to fetch user profile")
		p.setErr(err.Error())
		return nil, err
	}
	if profile == nil {
		p.setErr(ErrProfileNotFound.Message)
		return nil, ErrProfileNotFound
	}

	p.setProfile(profile)
	return profile.Clone(), nil
}

// UpdateUserProfile applies a partial update to the loaded profile,
// stamping updated_at, then re-reads the full row so server-computed
// fields are never guessed at. A profile must be loaded first.
func (p *ProfileStore) UpdateUserProfile(ctx context.Context, fields map[string]any) (*UserProfile, error) {
	p.mu.Lock()
	current := p.profile
	p.mu.Unlock()

	if current == nil {
		p.setErr(ErrNoProfileLoaded.Message)
		return nil, ErrNoProfileLoaded
	}

	p.beginCall()
	defer p.endCall()

	stamped := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		stamped[k] = v
	}
	stamped["updated_at"] = p.now()

	if err := p.backend.Update(ctx, current.ID, stamped); err != nil {
		err = wrapProfile(err, "failed to update user profile")
		p.setErr(err.Error())
		return nil, err
	}

	// Re-read after write: the stored profile is always the authoritative
	// row, not an optimistic local merge.
	return p.fetch(ctx, current.ID)
}

// Close drops the session and row subscriptions. Idempotent.
func (p *ProfileStore) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	rowUnsub := p.rowUnsub
	p.rowUnsub = nil
	sessionUnsub := p.sessionUnsub
	p.sessionUnsub = nil
	p.mu.Unlock()

	if rowUnsub != nil {
		rowUnsub()
	}
	if sessionUnsub != nil {
		sessionUnsub()
	}
}

func (p *ProfileStore) beginCall() {
	p.mu.Lock()
	p.loading = true
	p.lastErr = ""
	p.mu.Unlock()
}

func (p *ProfileStore) endCall() {
	p.mu.Lock()
	p.loading = false
	p.mu.Unlock()
}

func (p *ProfileStore) setErr(msg string) {
	p.mu.Lock()
	p.lastErr = msg
	p.mu.Unlock()
}

func (p *ProfileStore) setProfile(profile *UserProfile) {
	p.mu.Lock()
	p.profile = profile.Clone()
	p.mu.Unlock()
}

// Profile returns the mirrored profile, or nil when none is loaded.
func (p *ProfileStore) Profile() *UserProfile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profile.Clone()
}

// Loading reports whether a profile operation is in flight.
func (p *ProfileStore) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// Err returns the last profile error message, cleared at the start of
// each call.
func (p *ProfileStore) Err() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
