// Package session tracks whether the client holds a bearer token and
// notifies subscribers when that changes. It is the only writer of the
// credential store.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/claude/rutinas/internal/api"
	"github.com/claude/rutinas/internal/credstore"
	"github.com/claude/rutinas/internal/models"
)

// State is the authentication state.
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

var (
	// ErrInvalidCredentials is returned by Login when the service rejects
	// the identifier/secret pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated is returned by Require while no token is stored.
	ErrUnauthenticated = errors.New("not logged in")
)

// ConflictError is returned by Register when the account already exists.
// Detail is the service's message, shown to the user verbatim.
type ConflictError struct {
	Detail string
}

func (e *ConflictError) Error() string { return e.Detail }

// Gateway is the subset of the API client the session needs.
type Gateway interface {
	Login(ctx context.Context, identifier, secret string) (*models.Token, error)
	Register(ctx context.Context, p models.Profile) (*models.PublicUser, error)
}

// Controller owns the session state. Safe for concurrent use.
type Controller struct {
	store credstore.Store
	gw    Gateway
	log   *slog.Logger

	mu      sync.Mutex
	state   State
	expired bool
	nextSub int
	subs    map[int]func(State)
}

// New derives the initial state from the store without a network call: a
// stored token counts as authenticated until the service rejects it.
func New(store credstore.Store, gw Gateway, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	c := &Controller{
		store: store,
		gw:    gw,
		log:   log,
		subs:  map[int]func(State){},
	}
	if tok, err := store.Get(); err == nil && tok != "" {
		c.state = Authenticated
	} else if err != nil && !errors.Is(err, credstore.ErrNoToken) {
		log.Warn("reading stored token", "error", err)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Expired reports whether the last transition to Unauthenticated was
// caused by the service rejecting the stored token.
func (c *Controller) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Require returns ErrUnauthenticated unless a session is active. Every
// routine-bearing surface calls it before doing anything.
func (c *Controller) Require() error {
	if c.State() != Authenticated {
		return ErrUnauthenticated
	}
	return nil
}

// Subscribe registers fn to receive every state transition. fn runs on the
// goroutine that caused the transition, without any lock held.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Login exchanges credentials for a token and persists it.
func (c *Controller) Login(ctx context.Context, identifier, secret string) error {
	tok, err := c.gw.Login(ctx, identifier, secret)
	if err != nil {
		var ae *api.Error
		if errors.As(err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusBadRequest) {
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, api.Message(err, "rejected by service"))
		}
		return fmt.Errorf("login: %w", err)
	}
	if err := c.store.Set(tok.AccessToken); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}

	c.log.Info("logged in", "identifier", identifier)
	c.transition(Authenticated, false)
	return nil
}

// Logout clears the stored token. It never touches the network.
func (c *Controller) Logout() error {
	err := c.store.Clear()
	c.transition(Unauthenticated, false)
	if err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	return nil
}

// Expire is called when the service answers 401 to a request that carried
// the stored token. It behaves like Logout but is remembered as an expiry.
func (c *Controller) Expire() {
	if c.State() != Authenticated {
		return
	}
	if err := c.store.Clear(); err != nil {
		c.log.Warn("clearing expired token", "error", err)
	}
	c.log.Info("session expired")
	c.transition(Unauthenticated, true)
}

// Register creates an account. The caller stays in its current state.
func (c *Controller) Register(ctx context.Context, p models.Profile) (*models.PublicUser, error) {
	u, err := c.gw.Register(ctx, p)
	if errors.Is(err, api.ErrConflict) {
		return nil, &ConflictError{Detail: api.Message(err, "account already exists")}
	}
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return u, nil
}

func (c *Controller) transition(to State, expired bool) {
	c.mu.Lock()
	changed := c.state != to
	c.state = to
	c.expired = expired
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range subs {
		fn(to)
	}
}
