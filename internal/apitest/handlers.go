package apitest

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/claude/rutinas/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func pathID(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	return id, err == nil
}

func routineNotFound(w http.ResponseWriter, id int) {
	writeDetail(w, http.StatusNotFound, fmt.Sprintf("Rutina con ID %d no encontrada.", id))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid form")
		return
	}
	email := r.PostForm.Get("username")
	password := r.PostForm.Get("password")

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok || u.password != password {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Credenciales de usuario o contraseña inválidas.")
		return
	}
	token := uuid.NewString()
	s.tokens[token] = u.id
	writeJSON(w, http.StatusOK, models.Token{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var p models.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.Email == "" || p.Password == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "nombre, email y password son obligatorios")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(p.Email)
	if _, exists := s.users[key]; exists {
		writeDetail(w, http.StatusConflict, "El email ya está registrado.")
		return
	}
	s.nextID++
	u := &user{id: s.nextID, name: p.Name, email: p.Email, password: p.Password}
	s.users[key] = u
	writeJSON(w, http.StatusCreated, models.PublicUser{ID: u.id, Name: u.name, Email: u.email})
}

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := intParam(q.Get("pagina"), 1)
	size := intParam(q.Get("tamano_pagina"), 10)
	if page < 1 || size < 1 || size > 100 {
		writeDetail(w, http.StatusUnprocessableEntity, "parámetros de paginación inválidos")
		return
	}

	var day models.Day
	if raw := q.Get("dia"); raw != "" {
		d, ok := models.ParseDay(raw)
		if !ok {
			writeDetail(w, http.StatusUnprocessableEntity, fmt.Sprintf("Día inválido: %s", raw))
			return
		}
		day = d
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sortedRoutines(func(rt *routine) bool {
		return day == "" || s.hasExerciseOn(rt.id, day)
	})

	total := len(all)
	start := min((page-1)*size, total)
	end := min(start+size, total)
	items := make([]models.Routine, 0, end-start)
	for _, rt := range all[start:end] {
		items = append(items, s.detail(rt))
	}
	writeJSON(w, http.StatusOK, models.Page{
		Items:      items,
		TotalItems: total,
		Number:     page,
		PageSize:   size,
		TotalPages: int(math.Ceil(float64(total) / float64(size))),
	})
}

func (s *Server) handleSearchRoutines(w http.ResponseWriter, r *http.Request) {
	term := strings.ToLower(r.URL.Query().Get("nombre"))

	s.mu.Lock()
	defer s.mu.Unlock()
	matches := s.sortedRoutines(func(rt *routine) bool {
		return strings.Contains(strings.ToLower(rt.name), term)
	})
	out := make([]models.Routine, 0, len(matches))
	for _, rt := range matches {
		out = append(out, s.detail(rt))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.routines[id]
	if !ok {
		routineNotFound(w, id)
		return
	}
	writeJSON(w, http.StatusOK, s.detail(rt))
}

// routineBody accepts both the create shape (with ejercicios) and the
// partial update shape.
type routineBody struct {
	Name        *string           `json:"nombre"`
	Description *string           `json:"descripcion"`
	Exercises   []models.Exercise `json:"ejercicios"`
}

func (s *Server) handleCreateRoutine(w http.ResponseWriter, r *http.Request) {
	var body routineBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == nil || strings.TrimSpace(*body.Name) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "nombre es obligatorio")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(*body.Name, 0) {
		writeDetail(w, http.StatusConflict, fmt.Sprintf("Ya existe una rutina con el nombre '%s'.", *body.Name))
		return
	}
	rt := s.insertRoutine(*body.Name, body.Description)
	for _, e := range body.Exercises {
		s.insertExercise(rt.id, e)
	}
	writeJSON(w, http.StatusCreated, s.detail(rt))
}

func (s *Server) handleUpdateRoutine(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	var body routineBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "cuerpo inválido")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.routines[id]
	if !ok {
		routineNotFound(w, id)
		return
	}
	if body.Name != nil {
		if s.nameTaken(*body.Name, id) {
			writeDetail(w, http.StatusConflict, fmt.Sprintf("Ya existe una rutina con el nombre '%s'.", *body.Name))
			return
		}
		rt.name = *body.Name
	}
	if body.Description != nil {
		rt.description = body.Description
	}
	writeJSON(w, http.StatusOK, s.detail(rt))
}

func (s *Server) handleDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routines[id]; !ok {
		routineNotFound(w, id)
		return
	}
	delete(s.routines, id)
	for eid, e := range s.exercises {
		if e.RoutineID == id {
			delete(s.exercises, eid)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDuplicateRoutine(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.routines[id]
	if !ok {
		routineNotFound(w, id)
		return
	}
	dup := s.insertRoutine(s.copyName(src.name), src.description)
	for _, e := range s.exercisesOf(id) {
		s.insertExercise(dup.id, e)
	}
	writeJSON(w, http.StatusCreated, s.detail(dup))
}

func (s *Server) handleAddExercise(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	var e models.Exercise
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "cuerpo inválido")
		return
	}
	if msg := checkExercise(e); msg != "" {
		writeDetail(w, http.StatusUnprocessableEntity, msg)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routines[id]; !ok {
		routineNotFound(w, id)
		return
	}
	writeJSON(w, http.StatusCreated, s.addExercise(id, e))
}

func (s *Server) handleAddExercises(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	var list []models.Exercise
	if err := json.NewDecoder(r.Body).Decode(&list); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "cuerpo inválido")
		return
	}
	for _, e := range list {
		if msg := checkExercise(e); msg != "" {
			writeDetail(w, http.StatusUnprocessableEntity, msg)
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.routines[id]; !ok {
		routineNotFound(w, id)
		return
	}
	out := make([]*models.Exercise, 0, len(list))
	for _, e := range list {
		out = append(out, s.addExercise(id, e))
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleUpdateExercise(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	var e models.Exercise
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "cuerpo inválido")
		return
	}
	if msg := checkExercise(e); msg != "" {
		writeDetail(w, http.StatusUnprocessableEntity, msg)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.exercises[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Ejercicio con ID %d no encontrado.", id))
		return
	}
	e.ID = cur.ID
	e.RoutineID = cur.RoutineID
	*cur = e
	writeJSON(w, http.StatusOK, cur)
}

func (s *Server) handleDeleteExercise(w http.ResponseWriter, r *http.Request) {
	id, _ := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.exercises[id]; !ok {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Ejercicio con ID %d no encontrado.", id))
		return
	}
	delete(s.exercises, id)
	w.WriteHeader(http.StatusNoContent)
}

// addExercise stores e under routineID. An order of zero is replaced by
// the next free order for that day. Caller holds mu.
func (s *Server) addExercise(routineID int, e models.Exercise) *models.Exercise {
	if e.Order == 0 {
		max := 0
		for _, x := range s.exercises {
			if x.RoutineID == routineID && x.Day == e.Day && x.Order > max {
				max = x.Order
			}
		}
		e.Order = max + 1
	}
	return s.insertExercise(routineID, e)
}

func checkExercise(e models.Exercise) string {
	switch {
	case strings.TrimSpace(e.Name) == "":
		return "nombre es obligatorio"
	case !e.Day.Valid():
		return fmt.Sprintf("Día inválido: %s", e.Day)
	case e.Series < 1:
		return "series debe ser mayor o igual a 1"
	case e.Repetitions < 1:
		return "repeticiones debe ser mayor o igual a 1"
	case e.Weight != nil && *e.Weight < 0:
		return "peso debe ser mayor o igual a 0"
	}
	return ""
}

// Caller holds mu for the helpers below.

func (s *Server) sortedRoutines(keep func(*routine) bool) []*routine {
	var out []*routine
	for _, rt := range s.routines {
		if keep(rt) {
			out = append(out, rt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (s *Server) hasExerciseOn(routineID int, day models.Day) bool {
	for _, e := range s.exercises {
		if e.RoutineID == routineID && e.Day == day {
			return true
		}
	}
	return false
}

func (s *Server) exercisesOf(routineID int) []models.Exercise {
	var out []models.Exercise
	for _, e := range s.exercises {
		if e.RoutineID == routineID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) detail(rt *routine) models.Routine {
	created := models.Timestamp{Time: rt.createdAt}
	return models.Routine{
		ID:          rt.id,
		Name:        rt.name,
		Description: rt.description,
		CreatedAt:   &created,
		Exercises:   s.exercisesOf(rt.id),
	}
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
