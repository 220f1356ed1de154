// Package local implements the accounts.Identities backend in process:
// bcrypt password hashes, HS256 session tokens, and an auth-change hub.
// It exists for development and tests; production deployments talk to the
// hosted provider instead.
package local

import (
	"context"
	"errors"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/virtualgta/go-accounts"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeUnauthorized)

var ErrEmailNotConfirmed = goerrors.New("email not confirmed", goerrors.CategoryAuth).
	WithTextCode("EMAIL_NOT_CONFIRMED").
	WithCode(goerrors.CodeUnauthorized)

// ErrAlreadyRegistered keeps the hosted provider's message so the sign-up
// flow maps it the same way for both backends.
var ErrAlreadyRegistered = goerrors.New("User already registered", goerrors.CategoryConflict).
	WithTextCode("ALREADY_REGISTERED").
	WithCode(goerrors.CodeConflict)

var ErrInvalidInviteCode = goerrors.New("invalid or expired invite code", goerrors.CategoryAuth).
	WithTextCode("INVALID_INVITE_CODE").
	WithCode(goerrors.CodeUnauthorized)

var ErrNoActiveSession = goerrors.New("no active session", goerrors.CategoryAuth).
	WithTextCode("NO_ACTIVE_SESSION").
	WithCode(goerrors.CodeUnauthorized)

type identityRecord struct {
	id           uuid.UUID
	email        string
	passwordHash string
	confirmedAt  *time.Time
	meta         accounts.SignupMetadata
}

// Provider is an in-process identity backend.
type Provider struct {
	signingKey []byte
	tokenTTL   time.Duration
	bcryptCost int
	issuer     string
	now        func() time.Time

	mu           sync.Mutex
	byEmail      map[string]*identityRecord
	inviteCodes  map[string]uuid.UUID
	current      *accounts.Session
	listeners    map[int]func(accounts.AuthChange)
	nextListener int
}

var _ accounts.Identities = (*Provider)(nil)

type Option func(*Provider)

func WithTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.tokenTTL = ttl
		}
	}
}

func WithBcryptCost(cost int) Option {
	return func(p *Provider) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			p.bcryptCost = cost
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.now = clock
		}
	}
}

func New(signingKey []byte, opts ...Option) *Provider {
	p := &Provider{
		signingKey:  signingKey,
		tokenTTL:    time.Hour,
		bcryptCost:  bcrypt.DefaultCost,
		issuer:      "virtualgta-local",
		now:         time.Now,
		byEmail:     map[string]*identityRecord{},
		inviteCodes: map[string]uuid.UUID{},
		listeners:   map[int]func(accounts.AuthChange){},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Session returns the provider's current session, or (nil, nil) when no
// one is signed in. An expired session is refreshed in place and the
// refresh is announced through the auth-change channel.
func (p *Provider) Session(ctx context.Context) (*accounts.Session, error) {
	p.mu.Lock()
	current := p.current
	if current == nil || !current.Expired() {
		p.mu.Unlock()
		return current, nil
	}

	refreshed, err := p.mintSessionLocked(current.User)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.current = refreshed
	emit := p.emitPlanLocked(accounts.AuthChange{
		Event:   accounts.AuthEventTokenRefreshed,
		Session: refreshed,
	})
	p.mu.Unlock()

	emit()
	return refreshed, nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*accounts.Session, error) {
	p.mu.Lock()
	record, ok := p.byEmail[email]
	if !ok || record.passwordHash == "" {
		p.mu.Unlock()
		return nil, ErrInvalidCredentials
	}
	hash := record.passwordHash
	p.mu.Unlock()

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "password comparison failed")
	}

	p.mu.Lock()
	if record.confirmedAt == nil {
		p.mu.Unlock()
		return nil, ErrEmailNotConfirmed
	}

	sess, err := p.mintSessionLocked(record.identity())
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.current = sess
	emit := p.emitPlanLocked(accounts.AuthChange{
		Event:   accounts.AuthEventSignedIn,
		Session: sess,
	})
	p.mu.Unlock()

	emit()
	return sess, nil
}

// SignUp registers an unconfirmed identity. No session is issued until
// the email confirmation completes.
func (p *Provider) SignUp(ctx context.Context, email, password string, meta accounts.SignupMetadata) (*accounts.Identity, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byEmail[email]; exists {
		return nil, ErrAlreadyRegistered
	}

	record := &identityRecord{
		id:           identityID(email),
		email:        email,
		passwordHash: string(hash),
		meta:         meta,
	}
	p.byEmail[email] = record

	return record.identity(), nil
}

func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return ErrNoActiveSession
	}
	p.current = nil
	emit := p.emitPlanLocked(accounts.AuthChange{Event: accounts.AuthEventSignedOut})
	p.mu.Unlock()

	emit()
	return nil
}

// ExchangeCode trades an invite code for a confirmed session, consuming
// the code.
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*accounts.Session, error) {
	p.mu.Lock()
	id, ok := p.inviteCodes[code]
	if !ok {
		p.mu.Unlock()
		return nil, ErrInvalidInviteCode
	}
	delete(p.inviteCodes, code)

	record := p.byID(id)
	if record == nil {
		p.mu.Unlock()
		return nil, ErrInvalidInviteCode
	}
	if record.confirmedAt == nil {
		now := p.now()
		record.confirmedAt = &now
	}

	sess, err := p.mintSessionLocked(record.identity())
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.current = sess
	emit := p.emitPlanLocked(accounts.AuthChange{
		Event:   accounts.AuthEventSignedIn,
		Session: sess,
	})
	p.mu.Unlock()

	emit()
	return sess, nil
}

// UpdateUser sets the current identity's password and metadata.
func (p *Provider) UpdateUser(ctx context.Context, password string, meta accounts.SignupMetadata) (*accounts.Identity, error) {
	var hash []byte
	if password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}
	}

	p.mu.Lock()
	if p.current == nil || p.current.User == nil {
		p.mu.Unlock()
		return nil, ErrNoActiveSession
	}

	record := p.byID(p.current.User.ID)
	if record == nil {
		p.mu.Unlock()
		return nil, ErrNoActiveSession
	}
	if hash != nil {
		record.passwordHash = string(hash)
	}
	if !meta.IsZero() {
		record.meta = meta
	}

	// Previously published sessions stay immutable. The refreshed identity
	// rides a fresh session announced through the auth-change channel.
	updated := &accounts.Session{
		AccessToken:  p.current.AccessToken,
		RefreshToken: p.current.RefreshToken,
		ExpiresAt:    p.current.ExpiresAt,
		User:         record.identity(),
	}
	p.current = updated
	emit := p.emitPlanLocked(accounts.AuthChange{
		Event:   accounts.AuthEventUserUpdated,
		Session: updated,
	})
	p.mu.Unlock()

	emit()
	return record.identity(), nil
}

func (p *Provider) OnAuthChange(fn func(accounts.AuthChange)) accounts.Unsubscribe {
	p.mu.Lock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

// Invite registers an unconfirmed identity without a password and returns
// the one-time code for the invite link.
func (p *Provider) Invite(email string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byEmail[email]; exists {
		return "", ErrAlreadyRegistered
	}

	record := &identityRecord{
		id:    identityID(email),
		email: email,
	}
	p.byEmail[email] = record

	code := uuid.NewString()
	p.inviteCodes[code] = record.id
	return code, nil
}

// ConfirmEmail simulates the confirmation-link landing: it marks the
// identity confirmed and establishes a session, which the session store
// picks up through its subscription or the recovery poll.
func (p *Provider) ConfirmEmail(email string) error {
	p.mu.Lock()
	record, ok := p.byEmail[email]
	if !ok {
		p.mu.Unlock()
		return ErrInvalidCredentials
	}
	now := p.now()
	record.confirmedAt = &now

	sess, err := p.mintSessionLocked(record.identity())
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.current = sess
	emit := p.emitPlanLocked(accounts.AuthChange{
		Event:   accounts.AuthEventSignedIn,
		Session: sess,
	})
	p.mu.Unlock()

	emit()
	return nil
}

func (p *Provider) mintSessionLocked(identity *accounts.Identity) (*accounts.Session, error) {
	expiresAt := p.now().Add(p.tokenTTL)

	claims := jwt.MapClaims{
		"sub":   identity.ID.String(),
		"email": identity.Email,
		"iss":   p.issuer,
		"iat":   p.now().Unix(),
		"exp":   expiresAt.Unix(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return &accounts.Session{
		AccessToken:  token,
		RefreshToken: uuid.NewString(),
		ExpiresAt:    expiresAt,
		User:         identity,
	}, nil
}

func (p *Provider) emitPlanLocked(change accounts.AuthChange) func() {
	fns := make([]func(accounts.AuthChange), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(change)
		}
	}
}

func (p *Provider) byID(id uuid.UUID) *identityRecord {
	for _, record := range p.byEmail {
		if record.id == id {
			return record
		}
	}
	return nil
}

func (r *identityRecord) identity() *accounts.Identity {
	return &accounts.Identity{
		ID:          r.id,
		Email:       r.email,
		ConfirmedAt: r.confirmedAt,
		Metadata:    r.meta,
	}
}

// identityID derives a stable id from the email so repeated dev runs see
// the same identity.
func identityID(email string) uuid.UUID {
	if id, err := hashid.NewUUID(email); err == nil {
		return id
	}
	return uuid.New()
}
