// Package editor holds one routine's editable fields and exercise list.
// Local state changes only after the service accepts a mutation.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/claude/rutinas/internal/api"
	"github.com/claude/rutinas/internal/grouping"
	"github.com/claude/rutinas/internal/models"
	"github.com/claude/rutinas/internal/session"
)

var (
	ErrBusy            = errors.New("editor: another operation is in flight")
	ErrClosed          = errors.New("editor: closed")
	ErrNotEditable     = errors.New("editor: save the routine before changing exercises")
	ErrNotConfirmed    = errors.New("editor: removal not confirmed")
	ErrEditorClosed    = errors.New("editor: no exercise is being edited")
	ErrUnknownExercise = errors.New("editor: exercise not in this routine")
)

// Gateway is the subset of the API client the editor calls.
type Gateway interface {
	GetRoutine(ctx context.Context, id int) (*models.Routine, error)
	CreateRoutine(ctx context.Context, in models.RoutineInput) (*models.Routine, error)
	UpdateRoutine(ctx context.Context, id int, in models.RoutineInput) (*models.Routine, error)
	AddExercise(ctx context.Context, routineID int, e models.Exercise) (*models.Exercise, error)
	AddExercises(ctx context.Context, routineID int, es []models.Exercise) ([]models.Exercise, error)
	UpdateExercise(ctx context.Context, id int, e models.Exercise) (*models.Exercise, error)
	DeleteExercise(ctx context.Context, id int) error
}

// Session gates every remote call and announces logouts.
type Session interface {
	Require() error
	Subscribe(fn func(session.State)) (unsubscribe func())
}

// Mode tells whether the routine exists on the service yet.
type Mode int

const (
	Create Mode = iota
	Edit
)

func (m Mode) String() string {
	if m == Edit {
		return "edit"
	}
	return "create"
}

// EditorState is the exercise edit form: Closed or Editing.
type EditorState interface {
	editorState()
}

// Closed means no exercise is being edited.
type Closed struct{}

// Editing carries the draft of the exercise being edited.
type Editing struct {
	Draft models.Draft
}

func (Closed) editorState()  {}
func (Editing) editorState() {}

// State is a snapshot of the editor.
type State struct {
	Mode        Mode
	ID          int
	Name        string
	Description string
	CreatedAt   *models.Timestamp
	Exercises   []models.Exercise
	// NextOrder is the default order offered for the next new exercise.
	NextOrder int
	AddDraft  models.Draft
	Editor    EditorState
	Busy      bool
	Error     string
}

// Option configures an Editor.
type Option func(*Editor)

func WithLogger(l *slog.Logger) Option { return func(e *Editor) { e.log = l } }

// WithOnChange registers fn to receive a snapshot after every change.
func WithOnChange(fn func(State)) Option { return func(e *Editor) { e.onChange = fn } }

// Editor is the routine detail controller. One remote operation runs at a
// time; a second one started meanwhile fails with ErrBusy.
type Editor struct {
	gw       Gateway
	sess     Session
	schema   models.Schema
	log      *slog.Logger
	onChange func(State)
	unsub    func()

	mu     sync.Mutex
	state  State
	closed bool
}

// New returns an editor in Create mode.
func New(gw Gateway, sess Session, opts ...Option) *Editor {
	e := &Editor{
		gw:     gw,
		sess:   sess,
		schema: models.ExerciseSchema,
		log:    slog.New(slog.DiscardHandler),
		state: State{
			Mode:      Create,
			NextOrder: 1,
			AddDraft:  models.NewDraft(1),
			Editor:    Closed{},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	unsub := sess.Subscribe(func(s session.State) {
		if s == session.Unauthenticated {
			e.Close()
		}
	})
	e.mu.Lock()
	closed := e.closed
	if !closed {
		e.unsub = unsub
	}
	e.mu.Unlock()
	if closed {
		unsub()
	}
	return e
}

// State returns a snapshot. Drafts are copied.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Editor) snapshot() State {
	s := e.state
	s.Exercises = append([]models.Exercise(nil), e.state.Exercises...)
	s.AddDraft = e.state.AddDraft.Clone()
	if ed, ok := e.state.Editor.(Editing); ok {
		s.Editor = Editing{Draft: ed.Draft.Clone()}
	}
	return s
}

// View projects the current exercises into day groups.
func (e *Editor) View() []grouping.DayGroup {
	e.mu.Lock()
	list := append([]models.Exercise(nil), e.state.Exercises...)
	e.mu.Unlock()
	return grouping.Project(list)
}

// SetName updates the routine name field.
func (e *Editor) SetName(name string) {
	e.update(func(s *State) { s.Name = name })
}

// SetDescription updates the routine description field.
func (e *Editor) SetDescription(desc string) {
	e.update(func(s *State) { s.Description = desc })
}

// SetAddField types raw into a field of the add form.
func (e *Editor) SetAddField(name, raw string) error {
	var err error
	e.update(func(s *State) { err = e.schema.Set(&s.AddDraft, name, raw) })
	return err
}

// ResetAddDraft clears the add form back to its defaults.
func (e *Editor) ResetAddDraft() {
	e.update(func(s *State) { s.AddDraft = models.NewDraft(s.NextOrder) })
}

// OpenEditor starts editing the exercise with the given id.
func (e *Editor) OpenEditor(id int) error {
	var err error
	e.update(func(s *State) {
		i := indexOf(s.Exercises, id)
		if i < 0 {
			err = ErrUnknownExercise
			return
		}
		s.Editor = Editing{Draft: models.DraftFrom(s.Exercises[i])}
	})
	return err
}

// SetEditField types raw into a field of the open edit form.
func (e *Editor) SetEditField(name, raw string) error {
	var err error
	e.update(func(s *State) {
		ed, ok := s.Editor.(Editing)
		if !ok {
			err = ErrEditorClosed
			return
		}
		d := ed.Draft.Clone()
		if err = e.schema.Set(&d, name, raw); err == nil {
			s.Editor = Editing{Draft: d}
		}
	})
	return err
}

// CloseEditor discards the edit form.
func (e *Editor) CloseEditor() {
	e.update(func(s *State) { s.Editor = Closed{} })
}

// Load fetches a routine and switches to Edit mode.
func (e *Editor) Load(ctx context.Context, id int) error {
	if err := e.begin(); err != nil {
		return err
	}
	r, err := e.gw.GetRoutine(ctx, id)
	return e.finish(err, "Could not load routine.", func(s *State) {
		s.Mode = Edit
		s.ID = r.ID
		s.Name = r.Name
		s.Description = r.DescriptionText()
		s.CreatedAt = r.CreatedAt
		s.Exercises = r.Exercises
		s.NextOrder = models.NextOrder(r.Exercises)
		s.AddDraft = models.NewDraft(s.NextOrder)
		s.Editor = Closed{}
	})
}

// Save creates the routine in Create mode, moving to Edit mode on success,
// or updates its name and description in Edit mode. It returns the
// routine id.
func (e *Editor) Save(ctx context.Context) (int, error) {
	e.mu.Lock()
	mode, id := e.state.Mode, e.state.ID
	name := strings.TrimSpace(e.state.Name)
	desc := strings.TrimSpace(e.state.Description)
	e.mu.Unlock()

	if name == "" {
		err := &models.ValidationError{Fields: map[string]string{models.FieldName: "required"}}
		e.update(func(s *State) { s.Error = err.Error() })
		return 0, err
	}
	in := models.RoutineInput{Name: name}
	if desc != "" || mode == Edit {
		in.Description = &desc
	}

	if err := e.begin(); err != nil {
		return 0, err
	}
	var (
		r   *models.Routine
		err error
	)
	if mode == Create {
		r, err = e.gw.CreateRoutine(ctx, in)
	} else {
		r, err = e.gw.UpdateRoutine(ctx, id, in)
	}
	err = e.finish(err, "Could not save routine.", func(s *State) {
		s.Name = r.Name
		s.Description = r.DescriptionText()
		if s.Mode == Create {
			s.Mode = Edit
			s.ID = r.ID
			s.CreatedAt = r.CreatedAt
			s.Exercises = nil
			s.NextOrder = 1
			s.AddDraft = models.NewDraft(1)
		}
	})
	if err != nil {
		return 0, err
	}
	return r.ID, nil
}

// AddExercise validates the add form and submits it. On success the new
// exercise is appended and the add form resets with the next order.
func (e *Editor) AddExercise(ctx context.Context) (models.Exercise, error) {
	e.mu.Lock()
	mode, id, draft := e.state.Mode, e.state.ID, e.state.AddDraft.Clone()
	e.mu.Unlock()

	if mode != Edit {
		return models.Exercise{}, ErrNotEditable
	}
	if err := e.validate(draft); err != nil {
		return models.Exercise{}, err
	}
	if err := e.begin(); err != nil {
		return models.Exercise{}, err
	}
	created, err := e.gw.AddExercise(ctx, id, draft.Exercise())
	err = e.finish(err, "Could not add exercise.", func(s *State) {
		s.Exercises = append(s.Exercises, *created)
		s.NextOrder = models.NextOrder(s.Exercises)
		s.AddDraft = models.NewDraft(s.NextOrder)
	})
	if err != nil {
		return models.Exercise{}, err
	}
	return *created, nil
}

// AddExercises submits several exercises in one request, bypassing the add
// form. Exercises without an order get consecutive orders from NextOrder.
// Every exercise is validated first; nothing is sent if one fails.
func (e *Editor) AddExercises(ctx context.Context, exercises []models.Exercise) ([]models.Exercise, error) {
	e.mu.Lock()
	mode, id, next := e.state.Mode, e.state.ID, e.state.NextOrder
	e.mu.Unlock()

	if mode != Edit {
		return nil, ErrNotEditable
	}
	if len(exercises) == 0 {
		return nil, nil
	}
	batch := make([]models.Exercise, 0, len(exercises))
	for i, ex := range exercises {
		ex.Day, _ = models.ParseDay(string(ex.Day))
		if ex.Order == 0 {
			ex.Order = next
			next++
		}
		if err := e.validate(models.DraftFrom(ex)); err != nil {
			return nil, fmt.Errorf("exercise %d (%s): %w", i+1, ex.Name, err)
		}
		batch = append(batch, ex)
	}

	if err := e.begin(); err != nil {
		return nil, err
	}
	created, err := e.gw.AddExercises(ctx, id, batch)
	err = e.finish(err, "Could not add exercises.", func(s *State) {
		s.Exercises = append(s.Exercises, created...)
		s.NextOrder = models.NextOrder(s.Exercises)
		s.AddDraft = models.NewDraft(s.NextOrder)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateExercise submits the open edit form and replaces the exercise
// with the same id. The form closes on success.
func (e *Editor) UpdateExercise(ctx context.Context) error {
	e.mu.Lock()
	mode := e.state.Mode
	ed, editing := e.state.Editor.(Editing)
	e.mu.Unlock()

	if mode != Edit {
		return ErrNotEditable
	}
	if !editing {
		return ErrEditorClosed
	}
	draft := ed.Draft.Clone()
	if err := e.validate(draft); err != nil {
		return err
	}
	if err := e.begin(); err != nil {
		return err
	}
	updated, err := e.gw.UpdateExercise(ctx, draft.ID, draft.Exercise())
	return e.finish(err, "Could not update exercise.", func(s *State) {
		if i := indexOf(s.Exercises, updated.ID); i >= 0 {
			s.Exercises[i] = *updated
		}
		s.Editor = Closed{}
	})
}

// RemoveExercise deletes an exercise. confirmed must be true: the caller
// has to have asked the user first.
func (e *Editor) RemoveExercise(ctx context.Context, id int, confirmed bool) error {
	e.mu.Lock()
	mode := e.state.Mode
	known := indexOf(e.state.Exercises, id) >= 0
	e.mu.Unlock()

	switch {
	case mode != Edit:
		return ErrNotEditable
	case !confirmed:
		return ErrNotConfirmed
	case !known:
		return ErrUnknownExercise
	}
	if err := e.begin(); err != nil {
		return err
	}
	err := e.gw.DeleteExercise(ctx, id)
	return e.finish(err, "Could not delete exercise.", func(s *State) {
		if i := indexOf(s.Exercises, id); i >= 0 {
			s.Exercises = append(s.Exercises[:i:i], s.Exercises[i+1:]...)
		}
		s.NextOrder = models.NextOrder(s.Exercises)
		if err := e.schema.Set(&s.AddDraft, models.FieldOrder, strconv.Itoa(s.NextOrder)); err != nil {
			s.AddDraft = models.NewDraft(s.NextOrder)
		}
		if ed, ok := s.Editor.(Editing); ok && ed.Draft.ID == id {
			s.Editor = Closed{}
		}
	})
}

// Close stops the editor. Responses that arrive afterwards are dropped.
func (e *Editor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	unsub := e.unsub
	e.unsub = nil
	e.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (e *Editor) validate(d models.Draft) error {
	err := e.schema.Validate(d)
	if err != nil {
		e.update(func(s *State) { s.Error = err.Error() })
	}
	return err
}

// begin claims the in-flight slot.
func (e *Editor) begin() error {
	if err := e.sess.Require(); err != nil {
		return err
	}
	e.mu.Lock()
	switch {
	case e.closed:
		e.mu.Unlock()
		return ErrClosed
	case e.state.Busy:
		e.mu.Unlock()
		return ErrBusy
	}
	e.state.Busy = true
	snap := e.snapshot()
	e.mu.Unlock()
	e.notify(snap)
	return nil
}

// finish releases the in-flight slot and applies the result. apply runs
// only when err is nil and the editor is still open.
func (e *Editor) finish(err error, fallback string, apply func(*State)) error {
	e.mu.Lock()
	e.state.Busy = false
	if e.closed {
		e.mu.Unlock()
		if err != nil {
			e.log.Debug("dropping failure after close", "error", err)
		}
		return ErrClosed
	}
	if err != nil {
		e.state.Error = api.Message(err, fallback)
	} else {
		e.state.Error = ""
		apply(&e.state)
	}
	snap := e.snapshot()
	e.mu.Unlock()

	e.notify(snap)
	return err
}

func (e *Editor) update(fn func(*State)) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	fn(&e.state)
	snap := e.snapshot()
	e.mu.Unlock()
	e.notify(snap)
}

func (e *Editor) notify(s State) {
	if e.onChange != nil {
		e.onChange(s)
	}
}

func indexOf(list []models.Exercise, id int) int {
	for i, x := range list {
		if x.ID == id {
			return i
		}
	}
	return -1
}
