package accounts

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is the cadence of the startup recovery poll. It
// covers the window where a session exists server side (e.g. an email
// confirmation completed in another tab) but no auth change has been
// pushed yet.
var DefaultPollInterval = 2 * time.Second

// SessionSnapshot is the session store state delivered to subscribers.
// Session and Identity always come from the same transition.
type SessionSnapshot struct {
	Session  *Session
	Identity *Identity
}

// SessionStore is the single source of truth for the authenticated
// session. It is initialized once at startup, subscribes to auth change
// notifications from the backend, and runs a recovery poll while no
// session is known. Safe for concurrent use.
type SessionStore struct {
	backend      Identities
	logger       Logger
	pollInterval time.Duration

	mu           sync.Mutex
	session      *Session
	identity     *Identity
	loading      bool
	lastErr      string
	epoch        uint64
	listeners    map[int]func(SessionSnapshot)
	nextListener int

	authUnsub  Unsubscribe
	pollCancel context.CancelFunc
	pollDone   chan struct{}
	started    bool
	closed     bool
}

type SessionStoreOption func(*SessionStore)

func WithSessionLogger(l Logger) SessionStoreOption {
	return func(s *SessionStore) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithPollInterval(d time.Duration) SessionStoreOption {
	return func(s *SessionStore) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func NewSessionStore(backend Identities, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		backend:      backend,
		logger:       defLogger{},
		pollInterval: DefaultPollInterval,
		loading:      true,
		listeners:    map[int]func(SessionSnapshot){},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start subscribes to auth change notifications and requests the current
// session. Loading clears after the first response, success or failure.
// When no session is found Start leaves a recovery poll running until one
// appears or the store is closed. Calling Start twice is a no-op.
func (s *SessionStore) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.authUnsub = s.backend.OnAuthChange(s.handleAuthChange)
	epoch := s.epoch
	s.mu.Unlock()

	sess, err := s.backend.Session(ctx)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
		s.logger.Error("failed to load initial session", "error", err)
	} else if s.epoch == epoch {
		// The subscription has not delivered anything newer; the
		// initializer's response is still current.
		s.setSessionLocked(sess)
	}

	startPoll := !s.closed && s.session == nil
	if startPoll {
		pollCtx, cancel := context.WithCancel(context.Background())
		s.pollCancel = cancel
		s.pollDone = make(chan struct{})
		go s.recoverLoop(pollCtx)
	}
	notify := s.notifyPlanLocked()
	s.mu.Unlock()

	notify()
	return err
}

// recoverLoop re-requests the session on a fixed interval until one is
// known, then stops itself. The subscription may beat the poll to it; the
// loop exits either way, exactly once.
func (s *SessionStore) recoverLoop(ctx context.Context) {
	defer close(s.pollDone)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.closed || s.session != nil {
				s.mu.Unlock()
				return
			}
			epoch := s.epoch
			s.mu.Unlock()

			sess, err := s.backend.Session(ctx)
			if err != nil {
				s.logger.Debug("session recovery poll failed", "error", err)
				continue
			}
			if sess == nil {
				continue
			}

			if s.apply(epoch, sess) {
				s.logger.Info("session detected via polling", "user_id", sess.UserID().String())
			}
			// A session exists either way: applied here, or a newer one
			// arrived through the subscription while we were in flight.
			return
		}
	}
}

func (s *SessionStore) handleAuthChange(change AuthChange) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.logger.Debug("auth state changed", "event", string(change.Event))
	s.setSessionLocked(change.Session)
	notify := s.notifyPlanLocked()
	s.mu.Unlock()

	notify()
}

// apply installs sess only if no newer update landed since epoch was read.
func (s *SessionStore) apply(epoch uint64, sess *Session) bool {
	s.mu.Lock()
	if s.closed || s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.setSessionLocked(sess)
	notify := s.notifyPlanLocked()
	s.mu.Unlock()

	notify()
	return true
}

// setSessionLocked replaces session and identity together, from the same
// event, and advances the epoch. Callers hold s.mu.
func (s *SessionStore) setSessionLocked(sess *Session) {
	s.session = sess
	if sess != nil {
		s.identity = sess.User
	} else {
		s.identity = nil
	}
	s.epoch++
}

// notifyPlanLocked captures the current snapshot and listener set; the
// returned func runs outside the lock.
func (s *SessionStore) notifyPlanLocked() func() {
	if len(s.listeners) == 0 {
		return func() {}
	}
	snap := SessionSnapshot{Session: s.session, Identity: s.identity}
	fns := make([]func(SessionSnapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(snap)
		}
	}
}

// OnChange registers a subscriber for session transitions. The current
// snapshot is delivered synchronously before OnChange returns so late
// subscribers converge on the present state.
func (s *SessionStore) OnChange(fn func(SessionSnapshot)) Unsubscribe {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	snap := SessionSnapshot{Session: s.session, Identity: s.identity}
	s.mu.Unlock()

	fn(snap)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// SignIn exchanges credentials for a session. On success the new session
// replaces the stored one; on failure the store's error field holds the
// backend message until the next call.
func (s *SessionStore) SignIn(ctx context.Context, email, password string) (*Session, error) {
	s.setLoading(true)
	sess, err := s.backend.SignInWithPassword(ctx, email, password)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
		s.mu.Unlock()
		return nil, wrapAuth(err, "sign in failed")
	}
	s.lastErr = ""
	s.setSessionLocked(sess)
	notify := s.notifyPlanLocked()
	s.mu.Unlock()

	notify()
	return sess, nil
}

// SignUp registers a new identity with the signup metadata attached. No
// usable session exists until the identity confirms its email out of band.
func (s *SessionStore) SignUp(ctx context.Context, email, password string, meta SignupMetadata) (*Identity, error) {
	s.setLoading(true)
	identity, err := s.backend.SignUp(ctx, email, password, meta)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
	s.mu.Unlock()

	if err != nil {
		return nil, wrapAuth(err, "sign up failed")
	}
	return identity, nil
}

// SignOut invalidates the session with the backend. On failure local state
// is left untouched; on success session, identity, and error are cleared.
func (s *SessionStore) SignOut(ctx context.Context) error {
	s.setLoading(true)
	err := s.backend.SignOut(ctx)

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.lastErr = err.Error()
		s.mu.Unlock()
		return wrapAuth(err, "sign out failed")
	}
	s.lastErr = ""
	s.setSessionLocked(nil)
	notify := s.notifyPlanLocked()
	s.mu.Unlock()

	notify()
	return nil
}

// Close unsubscribes from auth change notifications and cancels the
// recovery poll, waiting for an in-flight tick to finish. Idempotent.
func (s *SessionStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsub := s.authUnsub
	cancel := s.pollCancel
	done := s.pollDone
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *SessionStore) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// Session returns the current session, or nil.
func (s *SessionStore) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Identity returns the identity associated with the current session.
func (s *SessionStore) Identity() *Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Loading reports whether the store is waiting on the backend.
func (s *SessionStore) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the last backend error message, empty when the last call
// succeeded.
func (s *SessionStore) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
