package api

import (
	"context"
	"errors"
	"testing"

	"github.com/claude/rutinas/internal/apitest"
	"github.com/claude/rutinas/internal/credstore"
	"github.com/claude/rutinas/internal/models"
)

func newServiceClient(t *testing.T) (*apitest.Server, *Client) {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	srv.IssueToken("T")
	return srv, New(srv.URL, credstore.TokenSource(credstore.NewMemoryStore("T")))
}

func ptr[T any](v T) *T { return &v }

// TestListRoutinesPagination verifies page fields and the day filter.
func TestListRoutinesPagination(t *testing.T) {
	srv, c := newServiceClient(t)
	srv.SeedRoutine("A", "", models.Exercise{Name: "Squat", Day: models.Monday, Series: 3, Repetitions: 5, Order: 1})
	srv.SeedRoutine("B", "")
	srv.SeedRoutine("C", "", models.Exercise{Name: "Row", Day: models.Friday, Series: 3, Repetitions: 8, Order: 1})

	p, err := c.ListRoutines(context.Background(), 2, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if p.TotalItems != 3 || p.TotalPages != 2 || p.Number != 2 || p.PageSize != 2 {
		t.Errorf("page = %+v, want total 3 pages 2 number 2 size 2", p)
	}
	if len(p.Items) != 1 || p.Items[0].Name != "C" {
		t.Errorf("items = %+v, want [C]", p.Items)
	}

	p, err = c.ListRoutines(context.Background(), 1, 10, models.Monday)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Items) != 1 || p.Items[0].Name != "A" {
		t.Errorf("monday items = %+v, want [A]", p.Items)
	}
}

// TestCreateRoutineConflict verifies the duplicate-name detail reaches the
// caller verbatim.
func TestCreateRoutineConflict(t *testing.T) {
	srv, c := newServiceClient(t)
	srv.SeedRoutine("Fuerza", "")

	_, err := c.CreateRoutine(context.Background(), models.RoutineInput{Name: "fuerza"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if got, want := Message(err, ""), "Ya existe una rutina con el nombre 'fuerza'."; got != want {
		t.Errorf("Message = %q, want %q", got, want)
	}
}

// TestRoutineLifecycle walks create, update, duplicate and delete.
func TestRoutineLifecycle(t *testing.T) {
	srv, c := newServiceClient(t)
	ctx := context.Background()

	r, err := c.CreateRoutine(ctx, models.RoutineInput{Name: "Pierna", Description: ptr("lunes")})
	if err != nil {
		t.Fatal(err)
	}
	if r.ID == 0 || r.CreatedAt == nil {
		t.Errorf("created = %+v, want id and timestamp", r)
	}

	r, err = c.UpdateRoutine(ctx, r.ID, models.RoutineInput{Name: "Pierna 2"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "Pierna 2" || r.DescriptionText() != "lunes" {
		t.Errorf("updated = %q/%q, want Pierna 2/lunes", r.Name, r.DescriptionText())
	}

	dup, err := c.DuplicateRoutine(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if dup.Name != "Pierna 2 (Copia 1)" {
		t.Errorf("duplicate name = %q, want Pierna 2 (Copia 1)", dup.Name)
	}

	if err := c.DeleteRoutine(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetRoutine(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete err = %v, want ErrNotFound", err)
	}
	if srv.RoutineCount() != 1 {
		t.Errorf("RoutineCount = %d, want 1", srv.RoutineCount())
	}
}

// TestExerciseEndpoints verifies add, bulk add, update and delete, and
// that a zero order is assigned by the service.
func TestExerciseEndpoints(t *testing.T) {
	srv, c := newServiceClient(t)
	ctx := context.Background()
	id := srv.SeedRoutine("Torso", "")

	e, err := c.AddExercise(ctx, id, models.Exercise{Name: "Press", Day: models.Tuesday, Series: 4, Repetitions: 6, Weight: ptr(60.0), Order: 1})
	if err != nil {
		t.Fatal(err)
	}
	if e.ID == 0 || e.RoutineID != id {
		t.Errorf("added = %+v, want ids set", e)
	}

	bulk, err := c.AddExercises(ctx, id, []models.Exercise{
		{Name: "Remo", Day: models.Tuesday, Series: 3, Repetitions: 10},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(bulk) != 1 || bulk[0].Order != 2 {
		t.Errorf("bulk = %+v, want one exercise with order 2", bulk)
	}

	e.Repetitions = 8
	updated, err := c.UpdateExercise(ctx, e.ID, *e)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Repetitions != 8 {
		t.Errorf("Repetitions = %d, want 8", updated.Repetitions)
	}

	if err := c.DeleteExercise(ctx, e.ID); err != nil {
		t.Fatal(err)
	}
	r, _ := srv.Routine(id)
	if len(r.Exercises) != 1 || r.Exercises[0].Name != "Remo" {
		t.Errorf("remaining = %+v, want [Remo]", r.Exercises)
	}

	if err := c.DeleteExercise(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete missing err = %v, want ErrNotFound", err)
	}
}

// TestRegister verifies account creation and the duplicate-email conflict.
func TestRegister(t *testing.T) {
	_, c := newServiceClient(t)
	ctx := context.Background()
	p := models.Profile{Name: "Ana", Email: "ana@example.com", Password: "pw"}

	u, err := c.Register(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != p.Email {
		t.Errorf("Email = %q, want %q", u.Email, p.Email)
	}
	if _, err := c.Register(ctx, p); !errors.Is(err, ErrConflict) {
		t.Errorf("second register err = %v, want ErrConflict", err)
	}
	tok, err := c.Login(ctx, p.Email, p.Password)
	if err != nil {
		t.Fatal(err)
	}
	if tok.TokenType != "bearer" {
		t.Errorf("TokenType = %q, want bearer", tok.TokenType)
	}
}
