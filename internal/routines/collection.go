// Package routines keeps one page of the user's routines in sync with the
// current search term, page cursor and day filter.
package routines

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/rutinas/internal/api"
	"github.com/claude/rutinas/internal/models"
	"github.com/claude/rutinas/internal/session"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("routines: collection closed")

// Gateway is the subset of the API client the collection calls.
type Gateway interface {
	ListRoutines(ctx context.Context, page, size int, day models.Day) (*models.Page, error)
	SearchRoutines(ctx context.Context, name string) ([]models.Routine, error)
	DuplicateRoutine(ctx context.Context, id int) (*models.Routine, error)
	DeleteRoutine(ctx context.Context, id int) error
}

// Session gates every fetch and announces logouts.
type Session interface {
	Require() error
	Subscribe(fn func(session.State)) (unsubscribe func())
}

// Scheduler runs fn once after d. The returned stop func cancels a call
// that has not started yet.
type Scheduler func(d time.Duration, fn func()) (stop func() bool)

func afterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Page is the listing cursor.
type Page struct {
	Number     int
	TotalPages int
}

// State is a snapshot of the collection.
type State struct {
	SearchTerm string
	Day        models.Day
	Page       Page
	Items      []models.Routine
	Loading    bool
	// Paginated is false while a search term is set: search results are
	// one unpaginated set.
	Paginated   bool
	LastError   string
	ActionError string
}

// Option configures a Collection.
type Option func(*Collection)

func WithPageSize(n int) Option           { return func(c *Collection) { c.pageSize = n } }
func WithDebounce(d time.Duration) Option { return func(c *Collection) { c.debounce = d } }
func WithScheduler(s Scheduler) Option    { return func(c *Collection) { c.schedule = s } }
func WithLogger(l *slog.Logger) Option    { return func(c *Collection) { c.log = l } }

// WithOnChange registers fn to receive a snapshot after every state change.
func WithOnChange(fn func(State)) Option { return func(c *Collection) { c.onChange = fn } }

// Collection is the routine list controller. Safe for concurrent use;
// gateway calls run without the lock held.
type Collection struct {
	gw       Gateway
	sess     Session
	pageSize int
	debounce time.Duration
	schedule Scheduler
	log      *slog.Logger
	onChange func(State)

	ctx    context.Context
	cancel context.CancelFunc
	unsub  func()

	mu          sync.Mutex
	state       State
	inflight    int
	seq         uint64
	applied     uint64
	pending     func() bool
	debounceGen uint64
	closed      bool
}

// New creates a collection in listing mode on page 1. Nothing is fetched
// until Refetch or one of the setters is called. The collection closes
// itself when the session becomes unauthenticated.
func New(gw Gateway, sess Session, opts ...Option) *Collection {
	c := &Collection{
		gw:       gw,
		sess:     sess,
		pageSize: 10,
		debounce: 500 * time.Millisecond,
		schedule: afterFunc,
		log:      slog.New(slog.DiscardHandler),
		state:    State{Page: Page{Number: 1}, Paginated: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	unsub := sess.Subscribe(func(s session.State) {
		if s == session.Unauthenticated {
			c.Close()
		}
	})
	c.mu.Lock()
	closed := c.closed
	if !closed {
		c.unsub = unsub
	}
	c.mu.Unlock()
	// a logout may have closed us before Subscribe returned
	if closed {
		unsub()
	}
	return c
}

// State returns a snapshot.
func (c *Collection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Collection) snapshot() State {
	s := c.state
	s.Items = append([]models.Routine(nil), c.state.Items...)
	s.Loading = c.inflight > 0
	return s
}

// SetSearchTerm records term and schedules a refetch after the quiet
// period, replacing any refetch still waiting. The page resets to 1.
func (c *Collection) SetSearchTerm(term string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.state.SearchTerm = term
	c.state.Page.Number = 1
	c.state.Paginated = term == ""
	if c.pending != nil {
		c.pending()
	}
	c.debounceGen++
	gen := c.debounceGen
	c.pending = c.schedule(c.debounce, func() { c.fire(gen) })
	snap := c.snapshot()
	c.mu.Unlock()

	c.notify(snap)
}

func (c *Collection) fire(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.debounceGen {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.mu.Unlock()

	if err := c.Refetch(c.ctx); err != nil && !errors.Is(err, ErrClosed) {
		c.log.Warn("debounced refetch failed", "error", err)
	}
}

// Search sets term and fetches at once, dropping any debounced refetch
// still waiting. It is the submit counterpart of SetSearchTerm.
func (c *Collection) Search(ctx context.Context, term string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state.SearchTerm = term
	c.state.Page.Number = 1
	c.state.Paginated = term == ""
	if c.pending != nil {
		c.pending()
		c.pending = nil
	}
	c.debounceGen++
	c.mu.Unlock()

	return c.Refetch(ctx)
}

// SetPage moves the cursor to n and refetches. Out-of-range pages are
// ignored without a request.
func (c *Collection) SetPage(ctx context.Context, n int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if n < 1 || n > c.state.Page.TotalPages {
		c.mu.Unlock()
		return nil
	}
	c.state.Page.Number = n
	c.mu.Unlock()

	return c.Refetch(ctx)
}

// SetDay restricts the listing to routines with exercises on day. An empty
// day clears the filter. The page resets to 1.
func (c *Collection) SetDay(ctx context.Context, day models.Day) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.state.Day = day
	c.state.Page.Number = 1
	c.mu.Unlock()

	return c.Refetch(ctx)
}

// Refetch loads either the current listing page (empty search term) or
// the search results, and replaces Items wholesale. Only the response to
// the most recently issued request is applied; earlier ones that arrive
// late are dropped. On failure Items are kept and LastError is set.
func (c *Collection) Refetch(ctx context.Context) error {
	if err := c.sess.Require(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.seq++
	seq := c.seq
	c.inflight++
	term, day, page := c.state.SearchTerm, c.state.Day, c.state.Page.Number
	snap := c.snapshot()
	c.mu.Unlock()
	c.notify(snap)

	var (
		items []models.Routine
		list  *models.Page
		err   error
	)
	if term == "" {
		list, err = c.gw.ListRoutines(ctx, page, c.pageSize, day)
	} else {
		items, err = c.gw.SearchRoutines(ctx, term)
	}

	c.mu.Lock()
	c.inflight--
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if seq <= c.applied {
		c.log.Debug("dropping stale routine response", "seq", seq, "applied", c.applied)
		snap = c.snapshot()
		c.mu.Unlock()
		c.notify(snap)
		return nil
	}
	c.applied = seq
	if err != nil {
		c.state.LastError = api.Message(err, "Could not load routines.")
	} else {
		c.state.LastError = ""
		if list != nil {
			c.state.Items = list.Items
			c.state.Page = Page{Number: list.Number, TotalPages: list.TotalPages}
			c.state.Paginated = true
		} else {
			c.state.Items = items
			c.state.Paginated = false
		}
	}
	snap = c.snapshot()
	c.mu.Unlock()

	c.notify(snap)
	return err
}

// Duplicate copies a routine on the service and refetches so the copy
// shows up. The copy's id is not returned.
func (c *Collection) Duplicate(ctx context.Context, id int) error {
	return c.act(ctx, "Could not copy routine.", func() error {
		_, err := c.gw.DuplicateRoutine(ctx, id)
		return err
	})
}

// Remove deletes a routine and refetches with the current search term.
func (c *Collection) Remove(ctx context.Context, id int) error {
	return c.act(ctx, "Could not delete routine.", func() error {
		return c.gw.DeleteRoutine(ctx, id)
	})
}

// act runs a mutation. A failure is reported in ActionError and leaves
// Items untouched; success refetches.
func (c *Collection) act(ctx context.Context, fallback string, call func() error) error {
	if err := c.sess.Require(); err != nil {
		return err
	}
	if c.isClosed() {
		return ErrClosed
	}

	err := call()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		c.state.ActionError = api.Message(err, fallback)
	} else {
		c.state.ActionError = ""
	}
	snap := c.snapshot()
	c.mu.Unlock()
	c.notify(snap)

	if err != nil {
		return err
	}
	return c.Refetch(ctx)
}

// Close cancels any pending debounced refetch and stops applying late
// responses. It is safe to call more than once.
func (c *Collection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.pending != nil {
		c.pending()
		c.pending = nil
	}
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()

	c.cancel()
	if unsub != nil {
		unsub()
	}
}

func (c *Collection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Collection) notify(s State) {
	if c.onChange != nil {
		c.onChange(s)
	}
}
