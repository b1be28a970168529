package session

import (
	"context"
	"errors"
	"testing"

	"github.com/claude/rutinas/internal/api"
	"github.com/claude/rutinas/internal/apitest"
	"github.com/claude/rutinas/internal/credstore"
	"github.com/claude/rutinas/internal/models"
)

func newTestSession(t *testing.T, token string) (*apitest.Server, *credstore.MemoryStore, *Controller) {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	store := credstore.NewMemoryStore(token)
	gw := api.New(srv.URL, credstore.TokenSource(store))
	c := New(store, gw, nil)
	gw.SetUnauthorizedHook(c.Expire)
	return srv, store, c
}

// TestInitialStateFromStore verifies the startup state follows token
// presence with no network call.
func TestInitialStateFromStore(t *testing.T) {
	_, _, c := newTestSession(t, "")
	if c.State() != Unauthenticated {
		t.Errorf("empty store state = %v, want unauthenticated", c.State())
	}
	if !errors.Is(c.Require(), ErrUnauthenticated) {
		t.Error("Require should fail without a token")
	}

	srv, _, c2 := newTestSession(t, "stale")
	if c2.State() != Authenticated {
		t.Errorf("stored token state = %v, want authenticated", c2.State())
	}
	if n := len(srv.Requests()); n != 0 {
		t.Errorf("requests at startup = %d, want 0", n)
	}
}

// TestLoginStoresToken covers the a@b.com/x scenario: the session becomes
// authenticated and the store holds the returned token.
func TestLoginStoresToken(t *testing.T) {
	srv, store, c := newTestSession(t, "")
	srv.AddUser("A", "a@b.com", "x")

	var got []State
	c.Subscribe(func(s State) { got = append(got, s) })

	if err := c.Login(context.Background(), "a@b.com", "x"); err != nil {
		t.Fatal(err)
	}
	if c.State() != Authenticated {
		t.Errorf("state = %v, want authenticated", c.State())
	}
	tok, err := store.Get()
	if err != nil || tok == "" {
		t.Fatalf("stored token = %q, %v", tok, err)
	}
	if len(got) != 1 || got[0] != Authenticated {
		t.Errorf("notifications = %v, want [authenticated]", got)
	}
}

// TestLoginRejected verifies a 401 from the service maps to
// ErrInvalidCredentials and the state does not change.
func TestLoginRejected(t *testing.T) {
	srv, store, c := newTestSession(t, "")
	srv.AddUser("A", "a@b.com", "x")

	err := c.Login(context.Background(), "a@b.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if c.State() != Unauthenticated {
		t.Errorf("state = %v, want unauthenticated", c.State())
	}
	if _, err := store.Get(); !errors.Is(err, credstore.ErrNoToken) {
		t.Errorf("store.Get err = %v, want ErrNoToken", err)
	}
}

// TestLoginRejectedKeepsStoredToken verifies a wrong password leaves an
// existing session untouched.
func TestLoginRejectedKeepsStoredToken(t *testing.T) {
	srv, store, c := newTestSession(t, "T")
	srv.IssueToken("T")
	srv.AddUser("A", "a@b.com", "x")

	notified := 0
	c.Subscribe(func(State) { notified++ })

	err := c.Login(context.Background(), "a@b.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if c.State() != Authenticated {
		t.Errorf("state = %v, want authenticated", c.State())
	}
	if c.Expired() {
		t.Error("session marked expired after a rejected login")
	}
	if tok, err := store.Get(); err != nil || tok != "T" {
		t.Errorf("stored token = %q, %v, want T", tok, err)
	}
	if notified != 0 {
		t.Errorf("notifications = %d, want 0", notified)
	}
}

// TestLogoutIsLocal verifies logout clears the token without a request.
func TestLogoutIsLocal(t *testing.T) {
	srv, store, c := newTestSession(t, "T")
	if err := c.Logout(); err != nil {
		t.Fatal(err)
	}
	if c.State() != Unauthenticated {
		t.Errorf("state = %v, want unauthenticated", c.State())
	}
	if _, err := store.Get(); !errors.Is(err, credstore.ErrNoToken) {
		t.Errorf("store.Get err = %v, want ErrNoToken", err)
	}
	if c.Expired() {
		t.Error("Expired() = true after explicit logout")
	}
	if n := len(srv.Requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

// TestRegisterConflict verifies the duplicate-email detail is surfaced
// verbatim and register does not log the caller in.
func TestRegisterConflict(t *testing.T) {
	srv, _, c := newTestSession(t, "")
	srv.AddUser("A", "a@b.com", "x")

	_, err := c.Register(context.Background(), models.Profile{Name: "B", Email: "a@b.com", Password: "y"})
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if ce.Detail != "El email ya está registrado." {
		t.Errorf("Detail = %q", ce.Detail)
	}

	u, err := c.Register(context.Background(), models.Profile{Name: "C", Email: "c@d.com", Password: "z"})
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != "c@d.com" {
		t.Errorf("Email = %q, want c@d.com", u.Email)
	}
	if c.State() != Unauthenticated {
		t.Errorf("state after register = %v, want unauthenticated", c.State())
	}
}

// TestExpireOnUnauthorized verifies a 401 on an authenticated request logs
// the session out and notifies subscribers once.
func TestExpireOnUnauthorized(t *testing.T) {
	srv, store, c := newTestSession(t, "stale")
	gw := api.New(srv.URL, credstore.TokenSource(store), api.WithUnauthorizedHook(c.Expire))

	var got []State
	unsub := c.Subscribe(func(s State) { got = append(got, s) })
	defer unsub()

	if _, err := gw.GetRoutine(context.Background(), 1); !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if c.State() != Unauthenticated || !c.Expired() {
		t.Errorf("state = %v expired = %v, want unauthenticated/true", c.State(), c.Expired())
	}
	if _, err := store.Get(); !errors.Is(err, credstore.ErrNoToken) {
		t.Errorf("token not cleared: %v", err)
	}

	c.Expire()
	if len(got) != 1 {
		t.Errorf("notifications = %v, want exactly one", got)
	}
}

// TestUnsubscribe verifies an unsubscribed callback stops receiving events.
func TestUnsubscribe(t *testing.T) {
	_, _, c := newTestSession(t, "T")
	calls := 0
	unsub := c.Subscribe(func(State) { calls++ })
	unsub()
	if err := c.Logout(); err != nil {
		t.Fatal(err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}
