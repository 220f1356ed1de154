package hosted_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	accounts "github.com/virtualgta/go-accounts"
	"github.com/virtualgta/go-accounts/provider/hosted"
)

// identityServer fakes the provider's REST surface.
type identityServer struct {
	mu       sync.Mutex
	userID   uuid.UUID
	email    string
	requests []string
	signUp   map[string]any
	logout   int
	fail     map[string]int
	failMsg  string
}

func newIdentityServer() *identityServer {
	return &identityServer{
		userID: uuid.New(),
		email:  "ada@example.com",
		fail:   map[string]int{},
	}
}

func (s *identityServer) userJSON() map[string]any {
	now := time.Now().UTC()
	return map[string]any{
		"id":           s.userID.String(),
		"email":        s.email,
		"confirmed_at": now.Format(time.RFC3339),
		"user_metadata": map[string]any{
			"first_name": "Ada",
			"last_name":  "Lovelace",
			"username":   "ada",
		},
	}
}

func (s *identityServer) handler() http.Handler {
	mux := http.NewServeMux()

	record := func(r *http.Request) (failed bool, status int) {
		s.mu.Lock()
		defer s.mu.Unlock()
		key := r.URL.Path
		s.requests = append(s.requests, key+"?"+r.URL.RawQuery)
		if code := s.fail[key]; code != 0 {
			return true, code
		}
		return false, 0
	}

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if failed, status := record(r); failed {
			w.WriteHeader(status)
			writeJSON(w, map[string]any{"msg": s.failMsg})
			return
		}
		writeJSON(w, map[string]any{
			"access_token":  "issued-access-token",
			"refresh_token": "issued-refresh-token",
			"expires_in":    3600,
			"user":          s.userJSON(),
		})
	})

	mux.HandleFunc("/signup", func(w http.ResponseWriter, r *http.Request) {
		if failed, status := record(r); failed {
			w.WriteHeader(status)
			writeJSON(w, map[string]any{"msg": s.failMsg})
			return
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		s.mu.Lock()
		s.signUp = payload
		s.mu.Unlock()
		writeJSON(w, s.userJSON())
	})

	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		s.mu.Lock()
		s.logout++
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		writeJSON(w, s.userJSON())
	})

	return mux
}

func newTestClient(t *testing.T, opts ...hosted.Option) (*hosted.Client, *identityServer) {
	t.Helper()

	backend := newIdentityServer()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	return hosted.New(srv.URL, "anon-key", opts...), backend
}

func TestClientSignInWithPassword(t *testing.T) {
	client, backend := newTestClient(t)

	var last accounts.AuthChange
	unsub := client.OnAuthChange(func(change accounts.AuthChange) { last = change })
	defer unsub()

	sess, err := client.SignInWithPassword(context.Background(), "ada@example.com", "Sup3r$ecret")
	require.NoError(t, err)

	assert.Equal(t, "issued-access-token", sess.AccessToken)
	require.NotNil(t, sess.User)
	assert.Equal(t, backend.userID, sess.User.ID)
	assert.True(t, sess.User.Confirmed())
	assert.Equal(t, "ada", sess.User.Metadata.Username)

	assert.Equal(t, accounts.AuthEventSignedIn, last.Event)
	require.NotNil(t, last.Session)

	// The issued session is mirrored for Session lookups.
	mirrored, err := client.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, mirrored.AccessToken)
}

func TestClientSignInFailureSurfacesProviderMessage(t *testing.T) {
	client, backend := newTestClient(t)
	backend.fail["/token"] = http.StatusBadRequest
	backend.failMsg = "Invalid login credentials"

	_, err := client.SignInWithPassword(context.Background(), "ada@example.com", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid login credentials")
}

func TestClientSessionWithoutSignIn(t *testing.T) {
	client, _ := newTestClient(t)

	sess, err := client.Session(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestClientSignUpSendsMetadata(t *testing.T) {
	client, backend := newTestClient(t, hosted.WithEmailRedirectTo("https://app.example.com/confirmation"))

	identity, err := client.SignUp(context.Background(), "ada@example.com", "Sup3r$ecret", accounts.SignupMetadata{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Username:  "ada",
	})
	require.NoError(t, err)
	assert.Equal(t, backend.userID, identity.ID)

	backend.mu.Lock()
	payload := backend.signUp
	backend.mu.Unlock()

	assert.Equal(t, "ada@example.com", payload["email"])
	assert.Equal(t, "https://app.example.com/confirmation", payload["email_redirect_to"])
	meta, ok := payload["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ada", meta["username"])
}

func TestClientSignUpDuplicateKeepsProviderMessage(t *testing.T) {
	client, backend := newTestClient(t)
	backend.fail["/signup"] = http.StatusUnprocessableEntity
	backend.failMsg = "User already registered"

	_, err := client.SignUp(context.Background(), "dup@example.com", "pw123456", accounts.SignupMetadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "User already registered")
}

func TestClientSignOut(t *testing.T) {
	client, backend := newTestClient(t)

	t.Run("without a session", func(t *testing.T) {
		require.Error(t, client.SignOut(context.Background()))
	})

	t.Run("revokes and clears the mirror", func(t *testing.T) {
		_, err := client.SignInWithPassword(context.Background(), "ada@example.com", "Sup3r$ecret")
		require.NoError(t, err)

		var last accounts.AuthChange
		unsub := client.OnAuthChange(func(change accounts.AuthChange) { last = change })
		defer unsub()

		require.NoError(t, client.SignOut(context.Background()))
		assert.Equal(t, accounts.AuthEventSignedOut, last.Event)
		assert.Nil(t, last.Session)
		assert.Equal(t, 1, backend.logout)

		sess, err := client.Session(context.Background())
		require.NoError(t, err)
		assert.Nil(t, sess)
	})
}

func TestClientExchangeCode(t *testing.T) {
	client, backend := newTestClient(t)

	sess, err := client.ExchangeCode(context.Background(), "invite-code")
	require.NoError(t, err)

	assert.Equal(t, "issued-access-token", sess.AccessToken)
	require.NotNil(t, sess.User)
	assert.Equal(t, backend.userID, sess.User.ID)

	mirrored, err := client.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, mirrored.AccessToken)
}

func TestClientUpdateUser(t *testing.T) {
	client, backend := newTestClient(t)

	t.Run("requires a session", func(t *testing.T) {
		_, err := client.UpdateUser(context.Background(), "new-pw", accounts.SignupMetadata{})
		require.Error(t, err)
	})

	t.Run("refreshes the mirrored identity", func(t *testing.T) {
		_, err := client.SignInWithPassword(context.Background(), "ada@example.com", "Sup3r$ecret")
		require.NoError(t, err)

		identity, err := client.UpdateUser(context.Background(), "new-pw", accounts.SignupMetadata{Username: "ada"})
		require.NoError(t, err)
		assert.Equal(t, backend.userID, identity.ID)
	})

	t.Run("publishes a fresh session instead of mutating the old one", func(t *testing.T) {
		sess, err := client.SignInWithPassword(context.Background(), "ada@example.com", "Sup3r$ecret")
		require.NoError(t, err)
		before := sess.User

		var last accounts.AuthChange
		unsub := client.OnAuthChange(func(change accounts.AuthChange) { last = change })
		defer unsub()

		identity, err := client.UpdateUser(context.Background(), "", accounts.SignupMetadata{Username: "countess"})
		require.NoError(t, err)

		assert.Equal(t, accounts.AuthEventUserUpdated, last.Event)
		require.NotNil(t, last.Session)
		assert.NotSame(t, sess, last.Session)
		assert.Same(t, identity, last.Session.User)

		// The session handed out at sign in is never written to again.
		assert.Same(t, before, sess.User)
	})
}
