package accounts_test

import (
	"context"
	"sync"

	"github.com/google/uuid"
	accounts "github.com/virtualgta/go-accounts"
)

// fakeIdentities is a controllable identity backend. Tests drive auth
// change notifications through Emit and gate the initial Session call
// with sessionGate to orchestrate races.
type fakeIdentities struct {
	mu sync.Mutex

	session      *accounts.Session
	sessionErr   error
	sessionCalls int
	sessionGate  chan struct{}

	signInSession *accounts.Session
	signInErr     error
	signInEmail   string

	signUpIdentity *accounts.Identity
	signUpErr      error
	signUpEmail    string
	signUpMeta     accounts.SignupMetadata

	signOutErr   error
	signOutCalls int

	exchangeSession *accounts.Session
	exchangeErr     error
	exchangedCode   string

	updateIdentity  *accounts.Identity
	updateErr       error
	updatedPassword string
	updatedMeta     accounts.SignupMetadata

	listeners map[int]func(accounts.AuthChange)
	next      int
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{listeners: map[int]func(accounts.AuthChange){}}
}

func (f *fakeIdentities) Session(ctx context.Context) (*accounts.Session, error) {
	f.mu.Lock()
	f.sessionCalls++
	gate := f.sessionGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, f.sessionErr
}

func (f *fakeIdentities) SetSession(sess *accounts.Session) {
	f.mu.Lock()
	f.session = sess
	f.mu.Unlock()
}

func (f *fakeIdentities) SessionCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessionCalls
}

func (f *fakeIdentities) SignInWithPassword(ctx context.Context, email, password string) (*accounts.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signInEmail = email
	return f.signInSession, f.signInErr
}

func (f *fakeIdentities) SignUp(ctx context.Context, email, password string, meta accounts.SignupMetadata) (*accounts.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signUpEmail = email
	f.signUpMeta = meta
	return f.signUpIdentity, f.signUpErr
}

func (f *fakeIdentities) SignOut(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	return f.signOutErr
}

func (f *fakeIdentities) ExchangeCode(ctx context.Context, code string) (*accounts.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangedCode = code
	return f.exchangeSession, f.exchangeErr
}

func (f *fakeIdentities) UpdateUser(ctx context.Context, password string, meta accounts.SignupMetadata) (*accounts.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updatedPassword = password
	f.updatedMeta = meta
	return f.updateIdentity, f.updateErr
}

func (f *fakeIdentities) OnAuthChange(fn func(accounts.AuthChange)) accounts.Unsubscribe {
	f.mu.Lock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
}

// Emit delivers an auth change to every subscriber, like the backend
// pushing a transition.
func (f *fakeIdentities) Emit(change accounts.AuthChange) {
	f.mu.Lock()
	fns := make([]func(accounts.AuthChange), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// fakeProfiles is a controllable users table backend with a row update
// hub tests publish into directly.
type fakeProfiles struct {
	mu sync.Mutex

	rows map[uuid.UUID]*accounts.UserProfile

	insertErr   error
	inserted    *accounts.UserProfile
	selectErr   error
	selectCalls int
	updateErr   error
	updatedID   uuid.UUID
	updated     map[string]any

	subs       map[uuid.UUID]map[int]func(*accounts.UserProfile)
	subCounts  map[uuid.UUID]int
	unsubCount int
	next       int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		rows:      map[uuid.UUID]*accounts.UserProfile{},
		subs:      map[uuid.UUID]map[int]func(*accounts.UserProfile){},
		subCounts: map[uuid.UUID]int{},
	}
}

func (f *fakeProfiles) Insert(ctx context.Context, profile *accounts.UserProfile) (*accounts.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = profile.Clone()
	if f.inserted.Role == "" {
		f.inserted.Role = accounts.RoleStudent
	}
	f.rows[profile.ID] = f.inserted
	return f.inserted.Clone(), nil
}

func (f *fakeProfiles) Select(ctx context.Context, id uuid.UUID) (*accounts.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectCalls++
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.rows[id].Clone(), nil
}

func (f *fakeProfiles) Update(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedID = id
	f.updated = fields
	return nil
}

func (f *fakeProfiles) OnRowUpdate(id uuid.UUID, fn func(*accounts.UserProfile)) accounts.Unsubscribe {
	f.mu.Lock()
	subID := f.next
	f.next++
	if f.subs[id] == nil {
		f.subs[id] = map[int]func(*accounts.UserProfile){}
	}
	f.subs[id][subID] = fn
	f.subCounts[id]++
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs[id], subID)
			f.unsubCount++
			f.mu.Unlock()
		})
	}
}

// PublishRow pushes a row update to subscribers of its id.
func (f *fakeProfiles) PublishRow(row *accounts.UserProfile) {
	f.mu.Lock()
	fns := make([]func(*accounts.UserProfile), 0, len(f.subs[row.ID]))
	for _, fn := range f.subs[row.ID] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(row.Clone())
	}
}

func (f *fakeProfiles) LiveSubs(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[id])
}

func (f *fakeProfiles) SelectCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectCalls
}

// quietLogger silences store logging in tests.
type quietLogger struct{}

func (quietLogger) Debug(msg string, args ...any) {}
func (quietLogger) Info(msg string, args ...any)  {}
func (quietLogger) Warn(msg string, args ...any)  {}
func (quietLogger) Error(msg string, args ...any) {}
