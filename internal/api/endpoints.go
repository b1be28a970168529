package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/claude/rutinas/internal/models"
)

// Login exchanges credentials for a token. The service expects the OAuth2
// password form, with the email in the username field.
func (c *Client) Login(ctx context.Context, identifier, secret string) (*models.Token, error) {
	form := url.Values{}
	form.Set("username", identifier)
	form.Set("password", secret)

	body, err := c.doAnonymous(ctx, http.MethodPost, "/auth/login", form, nil)
	if err != nil {
		return nil, err
	}
	tok, err := decode[models.Token](body, "token")
	if err != nil {
		return nil, err
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("api: login response carried no access_token")
	}
	return &tok, nil
}

// Register creates an account. It does not log the caller in.
func (c *Client) Register(ctx context.Context, p models.Profile) (*models.PublicUser, error) {
	body, err := c.doAnonymous(ctx, http.MethodPost, "/auth/register", p, nil)
	if err != nil {
		return nil, err
	}
	u, err := decode[models.PublicUser](body, "user")
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListRoutines fetches one page of routines, optionally restricted to
// routines with exercises on day.
func (c *Client) ListRoutines(ctx context.Context, page, size int, day models.Day) (*models.Page, error) {
	q := url.Values{}
	q.Set("pagina", strconv.Itoa(page))
	q.Set("tamano_pagina", strconv.Itoa(size))
	if day != "" {
		q.Set("dia", string(day))
	}

	body, err := c.Do(ctx, http.MethodGet, "/rutinas", nil, q)
	if err != nil {
		return nil, err
	}
	p, err := decode[models.Page](body, "routine page")
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SearchRoutines returns every routine whose name contains name. The
// result is not paginated.
func (c *Client) SearchRoutines(ctx context.Context, name string) ([]models.Routine, error) {
	q := url.Values{}
	q.Set("nombre", name)

	body, err := c.Do(ctx, http.MethodGet, "/rutinas/buscar", nil, q)
	if err != nil {
		return nil, err
	}
	return decode[[]models.Routine](body, "routine search")
}

// GetRoutine fetches one routine with its exercises.
func (c *Client) GetRoutine(ctx context.Context, id int) (*models.Routine, error) {
	body, err := c.Do(ctx, http.MethodGet, routinePath(id), nil, nil)
	if err != nil {
		return nil, err
	}
	r, err := decode[models.Routine](body, "routine")
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRoutine creates an empty routine.
func (c *Client) CreateRoutine(ctx context.Context, in models.RoutineInput) (*models.Routine, error) {
	return c.routineCall(ctx, http.MethodPost, "/rutinas", in)
}

// UpdateRoutine changes name and description only; exercises are untouched.
func (c *Client) UpdateRoutine(ctx context.Context, id int, in models.RoutineInput) (*models.Routine, error) {
	return c.routineCall(ctx, http.MethodPut, routinePath(id), in)
}

// DeleteRoutine removes a routine and, on the service side, its exercises.
func (c *Client) DeleteRoutine(ctx context.Context, id int) error {
	_, err := c.Do(ctx, http.MethodDelete, routinePath(id), nil, nil)
	return err
}

// DuplicateRoutine clones a routine and its exercises under a new id.
func (c *Client) DuplicateRoutine(ctx context.Context, id int) (*models.Routine, error) {
	return c.routineCall(ctx, http.MethodPost, routinePath(id)+"/duplicar", nil)
}

func (c *Client) routineCall(ctx context.Context, method, path string, in any) (*models.Routine, error) {
	body, err := c.Do(ctx, method, path, in, nil)
	if err != nil {
		return nil, err
	}
	r, err := decode[models.Routine](body, "routine")
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// AddExercise creates one exercise under routineID and returns it with its
// assigned id.
func (c *Client) AddExercise(ctx context.Context, routineID int, e models.Exercise) (*models.Exercise, error) {
	body, err := c.Do(ctx, http.MethodPost, routinePath(routineID)+"/ejercicio", exerciseBody(e), nil)
	if err != nil {
		return nil, err
	}
	out, err := decode[models.Exercise](body, "exercise")
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AddExercises creates several exercises under routineID in one call.
func (c *Client) AddExercises(ctx context.Context, routineID int, es []models.Exercise) ([]models.Exercise, error) {
	in := make([]models.Exercise, 0, len(es))
	for _, e := range es {
		in = append(in, exerciseBody(e))
	}
	body, err := c.Do(ctx, http.MethodPost, routinePath(routineID)+"/ejercicios", in, nil)
	if err != nil {
		return nil, err
	}
	return decode[[]models.Exercise](body, "exercises")
}

// UpdateExercise replaces the fields of one exercise.
func (c *Client) UpdateExercise(ctx context.Context, id int, e models.Exercise) (*models.Exercise, error) {
	body, err := c.Do(ctx, http.MethodPut, exercisePath(id), exerciseBody(e), nil)
	if err != nil {
		return nil, err
	}
	out, err := decode[models.Exercise](body, "exercise")
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteExercise removes one exercise.
func (c *Client) DeleteExercise(ctx context.Context, id int) error {
	_, err := c.Do(ctx, http.MethodDelete, exercisePath(id), nil, nil)
	return err
}

// exerciseBody strips the identifiers the service assigns itself.
func exerciseBody(e models.Exercise) models.Exercise {
	e.ID = 0
	e.RoutineID = 0
	return e
}

func routinePath(id int) string  { return "/rutinas/" + strconv.Itoa(id) }
func exercisePath(id int) string { return "/ejercicios/" + strconv.Itoa(id) }
