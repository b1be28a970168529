// Package apitest runs an in-memory routine service that honors the HTTP
// contract the client depends on. Tests point a gateway at Server.URL.
package apitest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/claude/rutinas/internal/models"
	"github.com/go-chi/chi/v5"
)

type user struct {
	id       int
	name     string
	email    string
	password string
}

type routine struct {
	id          int
	name        string
	description *string
	createdAt   time.Time
}

type failure struct {
	status int
	detail string
}

// Server holds the fake service state. All fields are guarded by mu.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	router    chi.Router
	users     map[string]*user
	tokens    map[string]int
	routines  map[int]*routine
	exercises map[int]*models.Exercise
	nextID    int
	requests  []string
	failures  map[string][]failure
	onRequest func(r *http.Request)
}

// New starts a fake service. It is closed with t.Cleanup by the caller.
func New() *Server {
	s := &Server{
		router:    chi.NewRouter(),
		users:     map[string]*user{},
		tokens:    map[string]int{},
		routines:  map[int]*routine{},
		exercises: map[int]*models.Exercise{},
		failures:  map[string][]failure{},
	}
	s.routes()
	s.Server = httptest.NewServer(s.router)
	return s
}

func (s *Server) routes() {
	s.router.Use(s.record)
	s.router.Use(s.injectFailures)

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/register", s.handleRegister)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Get("/rutinas", s.handleListRoutines)
		r.Get("/rutinas/buscar", s.handleSearchRoutines)
		r.Post("/rutinas", s.handleCreateRoutine)
		r.Get("/rutinas/{id}", s.handleGetRoutine)
		r.Put("/rutinas/{id}", s.handleUpdateRoutine)
		r.Delete("/rutinas/{id}", s.handleDeleteRoutine)
		r.Post("/rutinas/{id}/duplicar", s.handleDuplicateRoutine)
		r.Post("/rutinas/{id}/ejercicio", s.handleAddExercise)
		r.Post("/rutinas/{id}/ejercicios", s.handleAddExercises)
		r.Put("/ejercicios/{id}", s.handleUpdateExercise)
		r.Delete("/ejercicios/{id}", s.handleDeleteExercise)
	})
}

// SetOnRequest installs fn to run before every request is handled. Tests
// use it to hold responses back and reorder completions.
func (s *Server) SetOnRequest(fn func(r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRequest = fn
}

// AddUser registers an account directly.
func (s *Server) AddUser(name, email, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.users[strings.ToLower(email)] = &user{id: s.nextID, name: name, email: email, password: password}
}

// IssueToken makes token valid without a login round-trip.
func (s *Server) IssueToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = 1
}

// RevokeToken makes token invalid, as if it had expired server-side.
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// SeedRoutine stores a routine with exercises and returns its id. The
// exercises get fresh ids in slice order.
func (s *Server) SeedRoutine(name, description string, exercises ...models.Exercise) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.insertRoutine(name, optional(description))
	for _, e := range exercises {
		s.insertExercise(r.id, e)
	}
	return r.id
}

// Routine returns the stored routine with its exercises in id order.
func (s *Server) Routine(id int) (models.Routine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.routines[id]
	if !ok {
		return models.Routine{}, false
	}
	return s.detail(r), true
}

// RoutineCount returns the number of stored routines.
func (s *Server) RoutineCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.routines)
}

// Fail makes the next request matching method and the chi route pattern
// (e.g. "/rutinas/{id}") answer status with detail. Failures queue up.
func (s *Server) Fail(method, pattern string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + pattern
	s.failures[key] = append(s.failures[key], failure{status: status, detail: detail})
}

// Requests returns "METHOD path?query" for every request received so far.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountRequests returns how many received requests start with prefix.
func (s *Server) CountRequests(prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) insertRoutine(name string, description *string) *routine {
	s.nextID++
	r := &routine{id: s.nextID, name: name, description: description, createdAt: time.Now().UTC()}
	s.routines[r.id] = r
	return r
}

func (s *Server) insertExercise(routineID int, e models.Exercise) *models.Exercise {
	s.nextID++
	e.ID = s.nextID
	e.RoutineID = routineID
	s.exercises[e.ID] = &e
	return &e
}

func (s *Server) nameTaken(name string, except int) bool {
	for _, r := range s.routines {
		if r.id != except && strings.EqualFold(r.name, name) {
			return true
		}
	}
	return false
}

func (s *Server) copyName(original string) string {
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (Copia %d)", original, n)
		if !s.nameTaken(candidate, 0) {
			return candidate
		}
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
