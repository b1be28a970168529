package routines

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/claude/rutinas/internal/api"
	"github.com/claude/rutinas/internal/apitest"
	"github.com/claude/rutinas/internal/credstore"
	"github.com/claude/rutinas/internal/models"
	"github.com/claude/rutinas/internal/session"
	"go.uber.org/goleak"
)

// fakeScheduler records scheduled calls and runs them only on fire.
type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (s *fakeScheduler) schedule(d time.Duration, fn func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{d: d, fn: fn}
	s.timers = append(s.timers, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		active := !t.stopped && !t.fired
		t.stopped = true
		return active
	}
}

// fire runs every timer that is still armed.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

func (s *fakeScheduler) armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fixture struct {
	srv   *apitest.Server
	sess  *session.Controller
	sched *fakeScheduler
	c     *Collection
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	srv.IssueToken("T")
	for _, n := range names {
		srv.SeedRoutine(n, "")
	}

	store := credstore.NewMemoryStore("T")
	gw := api.New(srv.URL, credstore.TokenSource(store))
	sess := session.New(store, gw, nil)
	sched := &fakeScheduler{}
	c := New(gw, sess, WithPageSize(2), WithScheduler(sched.schedule))
	t.Cleanup(c.Close)
	return &fixture{srv: srv, sess: sess, sched: sched, c: c}
}

func names(rs []models.Routine) string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return strings.Join(out, ",")
}

// TestRefetchListing verifies the initial listing fills items and the
// page cursor.
func TestRefetchListing(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	if err := f.c.Refetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	s := f.c.State()
	if names(s.Items) != "A,B" {
		t.Errorf("items = %s, want A,B", names(s.Items))
	}
	if s.Page != (Page{Number: 1, TotalPages: 2}) {
		t.Errorf("page = %+v, want 1/2", s.Page)
	}
	if !s.Paginated || s.Loading {
		t.Errorf("paginated = %v loading = %v, want true/false", s.Paginated, s.Loading)
	}
}

// TestSetPageOutOfRange verifies page 0 and totalPages+1 dispatch nothing
// and leave the cursor alone.
func TestSetPageOutOfRange(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	ctx := context.Background()
	if err := f.c.Refetch(ctx); err != nil {
		t.Fatal(err)
	}
	before := len(f.srv.Requests())

	for _, n := range []int{0, 3} {
		if err := f.c.SetPage(ctx, n); err != nil {
			t.Errorf("SetPage(%d) err = %v", n, err)
		}
	}
	if got := len(f.srv.Requests()); got != before {
		t.Errorf("requests = %d, want %d", got, before)
	}
	if p := f.c.State().Page; p != (Page{Number: 1, TotalPages: 2}) {
		t.Errorf("page = %+v, want 1/2", p)
	}
}

// TestSetPage verifies a valid page fetches with the new cursor.
func TestSetPage(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	ctx := context.Background()
	if err := f.c.Refetch(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.c.SetPage(ctx, 2); err != nil {
		t.Fatal(err)
	}
	s := f.c.State()
	if names(s.Items) != "C" || s.Page.Number != 2 {
		t.Errorf("items = %s page = %d, want C/2", names(s.Items), s.Page.Number)
	}
}

// TestSearchDebounce verifies rapid term changes produce one search, for
// the last term only.
func TestSearchDebounce(t *testing.T) {
	f := newFixture(t, "Push Day", "Pull Day", "Legs")
	for _, term := range []string{"p", "pu", "pus"} {
		f.c.SetSearchTerm(term)
	}
	if f.sched.armed() != 1 {
		t.Fatalf("armed timers = %d, want 1", f.sched.armed())
	}
	if n := f.srv.CountRequests("GET /rutinas/buscar"); n != 0 {
		t.Fatalf("searches before quiet period = %d, want 0", n)
	}

	f.sched.fire()

	reqs := f.srv.Requests()
	if len(reqs) != 1 || reqs[0] != "GET /rutinas/buscar?nombre=pus" {
		t.Errorf("requests = %v, want one search for pus", reqs)
	}
	if got := names(f.c.State().Items); got != "Push Day" {
		t.Errorf("items = %s, want Push Day", got)
	}
	if f.sched.timers[0].d != 500*time.Millisecond {
		t.Errorf("debounce = %v, want 500ms", f.sched.timers[0].d)
	}
}

// TestSearchLeavesPage verifies a search neither sends nor updates the
// page cursor.
func TestSearchLeavesPage(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	ctx := context.Background()
	if err := f.c.Refetch(ctx); err != nil {
		t.Fatal(err)
	}
	f.c.SetSearchTerm("B")
	before := f.c.State().Page

	f.sched.fire()

	s := f.c.State()
	if s.Page != before {
		t.Errorf("page = %+v, want %+v", s.Page, before)
	}
	if s.Paginated {
		t.Error("Paginated = true in search mode")
	}
	for _, r := range f.srv.Requests() {
		if strings.HasPrefix(r, "GET /rutinas/buscar") && strings.Contains(r, "pagina") {
			t.Errorf("search request carried paging: %s", r)
		}
	}
	if names(s.Items) != "B" {
		t.Errorf("items = %s, want B", names(s.Items))
	}
}

// TestClearSearchReturnsToListing verifies an empty term lists again.
func TestClearSearchReturnsToListing(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	f.c.SetSearchTerm("C")
	f.sched.fire()
	f.c.SetSearchTerm("")
	f.sched.fire()

	s := f.c.State()
	if !s.Paginated || names(s.Items) != "A,B" {
		t.Errorf("paginated = %v items = %s, want true/A,B", s.Paginated, names(s.Items))
	}
}

// TestSearchSubmit verifies an immediate search cancels the pending
// debounced one.
func TestSearchSubmit(t *testing.T) {
	f := newFixture(t, "Push Day", "Legs")
	f.c.SetSearchTerm("le")
	if err := f.c.Search(context.Background(), "leg"); err != nil {
		t.Fatal(err)
	}
	if f.sched.armed() != 0 {
		t.Errorf("armed timers = %d, want 0", f.sched.armed())
	}
	f.sched.fire()
	if reqs := f.srv.Requests(); len(reqs) != 1 || reqs[0] != "GET /rutinas/buscar?nombre=leg" {
		t.Errorf("requests = %v, want one search for leg", reqs)
	}
	if got := names(f.c.State().Items); got != "Legs" {
		t.Errorf("items = %s, want Legs", got)
	}
}

// TestSetDay verifies the day filter is sent and resets the page.
func TestSetDay(t *testing.T) {
	f := newFixture(t)
	f.srv.SeedRoutine("Mon", "", models.Exercise{Name: "x", Day: models.Monday, Series: 1, Repetitions: 1, Order: 1})
	f.srv.SeedRoutine("Tue", "", models.Exercise{Name: "y", Day: models.Tuesday, Series: 1, Repetitions: 1, Order: 1})

	if err := f.c.SetDay(context.Background(), models.Tuesday); err != nil {
		t.Fatal(err)
	}
	if got := names(f.c.State().Items); got != "Tue" {
		t.Errorf("items = %s, want Tue", got)
	}
	if f.srv.CountRequests("GET /rutinas?dia=Martes") != 1 {
		t.Errorf("requests = %v, want one with dia=Martes", f.srv.Requests())
	}
}

// TestRefetchFailureKeepsItems verifies a failed fetch keeps the previous
// items and reports the service detail.
func TestRefetchFailureKeepsItems(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	if err := f.c.Refetch(ctx); err != nil {
		t.Fatal(err)
	}
	f.srv.Fail(http.MethodGet, "/rutinas", http.StatusInternalServerError, "boom")

	if err := f.c.Refetch(ctx); !errors.Is(err, api.ErrService) {
		t.Fatalf("err = %v, want ErrService", err)
	}
	s := f.c.State()
	if names(s.Items) != "A,B" {
		t.Errorf("items = %s, want A,B", names(s.Items))
	}
	if s.LastError != "boom" {
		t.Errorf("LastError = %q, want boom", s.LastError)
	}

	if err := f.c.Refetch(ctx); err != nil {
		t.Fatal(err)
	}
	if s := f.c.State(); s.LastError != "" {
		t.Errorf("LastError after success = %q, want empty", s.LastError)
	}
}

// TestDuplicateRefetches verifies the copy appears after duplicate.
func TestDuplicateRefetches(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()
	if err := f.c.Refetch(ctx); err != nil {
		t.Fatal(err)
	}
	id := f.c.State().Items[0].ID

	if err := f.c.Duplicate(ctx, id); err != nil {
		t.Fatal(err)
	}
	if got := names(f.c.State().Items); got != "A,A (Copia 1)" {
		t.Errorf("items = %s, want A,A (Copia 1)", got)
	}
}

// TestRemoveKeepsSearchTerm verifies removal refetches in search mode when
// a term is set.
func TestRemoveKeepsSearchTerm(t *testing.T) {
	f := newFixture(t, "Push A", "Push B", "Legs")
	ctx := context.Background()
	f.c.SetSearchTerm("push")
	f.sched.fire()
	id := f.c.State().Items[0].ID

	if err := f.c.Remove(ctx, id); err != nil {
		t.Fatal(err)
	}
	s := f.c.State()
	if names(s.Items) != "Push B" {
		t.Errorf("items = %s, want Push B", names(s.Items))
	}
	if f.srv.CountRequests("GET /rutinas/buscar?nombre=push") != 2 {
		t.Errorf("requests = %v, want two searches", f.srv.Requests())
	}
}

// TestRemoveFailure verifies a failed delete leaves items alone, reports
// an action error separate from fetch errors and does not refetch.
func TestRemoveFailure(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	if err := f.c.Refetch(ctx); err != nil {
		t.Fatal(err)
	}
	f.srv.Fail(http.MethodDelete, "/rutinas/{id}", http.StatusInternalServerError, "no se pudo")
	lists := f.srv.CountRequests("GET /rutinas?")

	if err := f.c.Remove(ctx, f.c.State().Items[0].ID); err == nil {
		t.Fatal("expected error")
	}
	s := f.c.State()
	if names(s.Items) != "A,B" {
		t.Errorf("items = %s, want A,B", names(s.Items))
	}
	if s.ActionError != "no se pudo" || s.LastError != "" {
		t.Errorf("ActionError = %q LastError = %q", s.ActionError, s.LastError)
	}
	if got := f.srv.CountRequests("GET /rutinas?"); got != lists {
		t.Errorf("listing requests = %d, want %d", got, lists)
	}
}

// TestCloseCancelsDebounce verifies Close disarms the pending search and
// later calls fail with ErrClosed.
func TestCloseCancelsDebounce(t *testing.T) {
	f := newFixture(t, "A")
	f.c.SetSearchTerm("A")
	f.c.Close()

	if f.sched.armed() != 0 {
		t.Errorf("armed timers = %d, want 0", f.sched.armed())
	}
	if err := f.c.Refetch(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Refetch err = %v, want ErrClosed", err)
	}
	if n := len(f.srv.Requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

// TestLogoutCloses verifies the collection disposes itself when the
// session ends.
func TestLogoutCloses(t *testing.T) {
	f := newFixture(t, "A")
	if err := f.sess.Logout(); err != nil {
		t.Fatal(err)
	}
	if err := f.c.SetPage(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("SetPage err = %v, want ErrClosed", err)
	}
}

// logoutDuringSubscribe reports Unauthenticated to the subscriber before
// Subscribe returns, as a logout racing with construction would.
type logoutDuringSubscribe struct {
	unsubscribed int
}

func (s *logoutDuringSubscribe) Require() error { return nil }

func (s *logoutDuringSubscribe) Subscribe(fn func(session.State)) func() {
	fn(session.Unauthenticated)
	return func() { s.unsubscribed++ }
}

// TestLogoutWhileSubscribing verifies a logout that lands during New closes
// the collection and still releases the subscription.
func TestLogoutWhileSubscribing(t *testing.T) {
	sess := &logoutDuringSubscribe{}
	c := New(&stubGateway{}, sess)
	if err := c.SetDay(context.Background(), models.Monday); !errors.Is(err, ErrClosed) {
		t.Errorf("SetDay err = %v, want ErrClosed", err)
	}
	c.Close()
	if sess.unsubscribed != 1 {
		t.Errorf("unsubscribed %d times, want 1", sess.unsubscribed)
	}
}

// stubGateway serves listings from a function so tests can hold responses.
type stubGateway struct {
	list func(page int) (*models.Page, error)
}

func (g *stubGateway) ListRoutines(_ context.Context, page, _ int, _ models.Day) (*models.Page, error) {
	return g.list(page)
}

func (g *stubGateway) SearchRoutines(_ context.Context, name string) ([]models.Routine, error) {
	return []models.Routine{{ID: 1, Name: name}}, nil
}

func (g *stubGateway) DuplicateRoutine(context.Context, int) (*models.Routine, error) {
	return nil, nil
}

func (g *stubGateway) DeleteRoutine(context.Context, int) error { return nil }

func pageOf(n int) *models.Page {
	return &models.Page{
		Items:      []models.Routine{{ID: n, Name: fmt.Sprintf("page%d", n)}},
		Number:     n,
		TotalPages: 2,
	}
}

// TestStaleResponseDropped verifies an earlier request that completes
// after a later one does not overwrite its items.
func TestStaleResponseDropped(t *testing.T) {
	started := make(chan int, 4)
	release := make(chan struct{})
	gw := &stubGateway{list: func(page int) (*models.Page, error) {
		started <- page
		if page == 2 {
			<-release
		}
		return pageOf(page), nil
	}}
	sess := session.New(credstore.NewMemoryStore("T"), nil, nil)
	c := New(gw, sess)
	defer c.Close()
	ctx := context.Background()

	if err := c.Refetch(ctx); err != nil {
		t.Fatal(err)
	}
	<-started

	done := make(chan error, 1)
	go func() { done <- c.SetPage(ctx, 2) }()
	if p := <-started; p != 2 {
		t.Fatalf("started page %d, want 2", p)
	}

	if err := c.SetPage(ctx, 1); err != nil {
		t.Fatal(err)
	}
	<-started
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	s := c.State()
	if names(s.Items) != "page1" || s.Page.Number != 1 {
		t.Errorf("items = %s page = %d, want page1/1", names(s.Items), s.Page.Number)
	}
	if s.Loading {
		t.Error("Loading = true after all requests finished")
	}
}

// TestDebounceNoLeak verifies the real timer-backed debounce leaves no
// goroutines behind once it has fired and the collection is closed.
func TestDebounceNoLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	gw := &stubGateway{list: func(page int) (*models.Page, error) { return pageOf(page), nil }}
	sess := session.New(credstore.NewMemoryStore("T"), nil, nil)
	changed := make(chan State, 8)
	c := New(gw, sess, WithDebounce(10*time.Millisecond), WithOnChange(func(s State) {
		if len(s.Items) > 0 && !s.Loading {
			changed <- s
		}
	}))

	c.SetSearchTerm("abc")
	select {
	case s := <-changed:
		if names(s.Items) != "abc" {
			t.Errorf("items = %s, want abc", names(s.Items))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("debounced search never ran")
	}

	c.SetSearchTerm("never")
	c.Close()
}
