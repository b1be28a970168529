package mcp

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/claude/rutinas/internal/api"
	"github.com/claude/rutinas/internal/editor"
	"github.com/claude/rutinas/internal/grouping"
	"github.com/claude/rutinas/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

// exerciseFields are the optional exercise arguments, in schema order.
var exerciseFields = []string{
	models.FieldName,
	models.FieldDayOfWeek,
	models.FieldSeries,
	models.FieldRepetitions,
	models.FieldWeight,
	models.FieldOrder,
	models.FieldNotes,
}

// rawArg returns the argument as the text a user would have typed.
func rawArg(req mcp.CallToolRequest, name string) (string, bool) {
	v, ok := req.GetArguments()[name]
	if !ok || v == nil {
		return "", false
	}
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return fmt.Sprint(x), true
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed")
	}
	return result
}

// failure turns a controller error into a tool error carrying the message
// a user would see.
func (h *handlers) failure(tool string, err error, fallback string) *mcp.CallToolResult {
	h.log.Error("mcp "+tool, "error", err)
	return mcp.NewToolResultError(api.Message(err, fallback))
}

// routineView is a routine with its exercises grouped by day.
type routineView struct {
	ID          int                 `json:"id"`
	Name        string              `json:"nombre"`
	Description string              `json:"descripcion"`
	CreatedAt   *models.Timestamp   `json:"fecha_creacion,omitempty"`
	NextOrder   int                 `json:"siguiente_orden"`
	Days        []grouping.DayGroup `json:"dias"`
}

func viewOf(ed *editor.Editor) routineView {
	s := ed.State()
	return routineView{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		NextOrder:   s.NextOrder,
		Days:        ed.View(),
	}
}

// --- Tool definitions ---

var toolSessionStatus = mcp.NewTool("session_status",
	mcp.WithDescription("Report whether the client is logged in, and whether the last session expired."),
)

var toolListRoutines = mcp.NewTool("list_routines",
	mcp.WithDescription("List the user's routines one page at a time."),
	mcp.WithNumber("pagina", mcp.Description("Page number, starting at 1. Defaults to 1.")),
	mcp.WithString("dia", mcp.Description("Only routines with an exercise on this weekday (e.g. Lunes)")),
)

var toolSearchRoutines = mcp.NewTool("search_routines",
	mcp.WithDescription("Find routines whose name contains the term (case-insensitive). Results are not paginated."),
	mcp.WithString("nombre", mcp.Required(), mcp.Description("Part of the routine name")),
)

var toolGetRoutine = mcp.NewTool("get_routine",
	mcp.WithDescription("Get one routine with its exercises grouped by weekday and ordered by orden."),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Routine ID")),
)

var toolCreateRoutine = mcp.NewTool("create_routine",
	mcp.WithDescription("Create an empty routine. Names are unique per user, ignoring case."),
	mcp.WithString("nombre", mcp.Required(), mcp.Description("Routine name")),
	mcp.WithString("descripcion", mcp.Description("Optional description")),
)

var toolUpdateRoutine = mcp.NewTool("update_routine",
	mcp.WithDescription("Rename a routine or change its description. Omitted fields keep their value."),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Routine ID")),
	mcp.WithString("nombre", mcp.Description("New name")),
	mcp.WithString("descripcion", mcp.Description("New description")),
)

var toolDeleteRoutine = mcp.NewTool("delete_routine",
	mcp.WithDescription("Delete a routine and all of its exercises."),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Routine ID")),
)

var toolDuplicateRoutine = mcp.NewTool("duplicate_routine",
	mcp.WithDescription("Copy a routine with all its exercises. The copy is named '<nombre> (Copia N)'."),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Routine ID")),
)

var toolAddExercise = mcp.NewTool("add_exercise",
	mcp.WithDescription("Add an exercise to a routine. Unset fields take the form defaults: Lunes, 3 series, 12 repeticiones, peso 0, orden after the highest existing one."),
	mcp.WithNumber("rutina_id", mcp.Required(), mcp.Description("Routine ID")),
	mcp.WithString(models.FieldName, mcp.Required(), mcp.Description("Exercise name")),
	mcp.WithString(models.FieldDayOfWeek, mcp.Description("Weekday"), mcp.Enum(dayNames()...)),
	mcp.WithNumber(models.FieldSeries, mcp.Description("Sets"), mcp.Min(1)),
	mcp.WithNumber(models.FieldRepetitions, mcp.Description("Repetitions per set"), mcp.Min(1)),
	mcp.WithNumber(models.FieldWeight, mcp.Description("Load in kg; 0 for bodyweight"), mcp.Min(0)),
	mcp.WithNumber(models.FieldOrder, mcp.Description("Position within the day")),
	mcp.WithString(models.FieldNotes, mcp.Description("Free-form notes")),
)

var toolAddExercises = mcp.NewTool("add_exercises",
	mcp.WithDescription("Add several exercises to a routine in one request. Each needs nombre, dia_semana, series and repeticiones; exercises without orden are placed after the highest existing one. Nothing is added if any entry is invalid."),
	mcp.WithNumber("rutina_id", mcp.Required(), mcp.Description("Routine ID")),
	mcp.WithArray("ejercicios", mcp.Required(), mcp.Description("Exercises to add"),
		mcp.Items(map[string]any{
			"type": "object",
			"properties": map[string]any{
				models.FieldName:        map[string]any{"type": "string"},
				models.FieldDayOfWeek:   map[string]any{"type": "string", "enum": dayNames()},
				models.FieldSeries:      map[string]any{"type": "integer", "minimum": 1},
				models.FieldRepetitions: map[string]any{"type": "integer", "minimum": 1},
				models.FieldWeight:      map[string]any{"type": "number", "minimum": 0},
				models.FieldOrder:       map[string]any{"type": "integer"},
				models.FieldNotes:       map[string]any{"type": "string"},
			},
			"required": []string{models.FieldName, models.FieldDayOfWeek, models.FieldSeries, models.FieldRepetitions},
		}),
	),
)

var toolUpdateExercise = mcp.NewTool("update_exercise",
	mcp.WithDescription("Change fields of an exercise. Omitted fields keep their value."),
	mcp.WithNumber("rutina_id", mcp.Required(), mcp.Description("Routine ID the exercise belongs to")),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Exercise ID")),
	mcp.WithString(models.FieldName, mcp.Description("Exercise name")),
	mcp.WithString(models.FieldDayOfWeek, mcp.Description("Weekday"), mcp.Enum(dayNames()...)),
	mcp.WithNumber(models.FieldSeries, mcp.Description("Sets"), mcp.Min(1)),
	mcp.WithNumber(models.FieldRepetitions, mcp.Description("Repetitions per set"), mcp.Min(1)),
	mcp.WithNumber(models.FieldWeight, mcp.Description("Load in kg"), mcp.Min(0)),
	mcp.WithNumber(models.FieldOrder, mcp.Description("Position within the day")),
	mcp.WithString(models.FieldNotes, mcp.Description("Free-form notes")),
)

var toolDeleteExercise = mcp.NewTool("delete_exercise",
	mcp.WithDescription("Remove an exercise from a routine. Ask the user first and pass confirm=true."),
	mcp.WithNumber("rutina_id", mcp.Required(), mcp.Description("Routine ID the exercise belongs to")),
	mcp.WithNumber("id", mcp.Required(), mcp.Description("Exercise ID")),
	mcp.WithBoolean("confirm", mcp.Required(), mcp.Description("Must be true; the user agreed to the removal")),
)

func dayNames() []string {
	out := make([]string, len(models.Days))
	for i, d := range models.Days {
		out[i] = string(d)
	}
	return out
}

// --- Tool handlers ---

func (h *handlers) sessionStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"state":   h.sess.State().String(),
		"expired": h.sess.Expired(),
	}), nil
}

func (h *handlers) listRoutines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page := req.GetInt("pagina", 1)
	var day models.Day
	if raw := req.GetString("dia", ""); raw != "" {
		d, ok := models.ParseDay(raw)
		if !ok {
			return mcp.NewToolResultError(raw + ": " + models.UnknownDayMessage(raw)), nil
		}
		day = d
	}

	c := h.newCollection()
	defer c.Close()

	var err error
	if day != "" {
		err = c.SetDay(ctx, day)
	} else {
		err = c.Refetch(ctx)
	}
	if err != nil {
		return h.failure("list_routines", err, "could not load routines"), nil
	}
	if page != 1 {
		if total := c.State().Page.TotalPages; page < 1 || page > total {
			return mcp.NewToolResultError(fmt.Sprintf("page %d out of range (1-%d)", page, total)), nil
		}
		if err := c.SetPage(ctx, page); err != nil {
			return h.failure("list_routines", err, "could not load routines"), nil
		}
	}

	s := c.State()
	return jsonResult(models.Page{
		Items:      s.Items,
		Number:     s.Page.Number,
		TotalPages: s.Page.TotalPages,
		PageSize:   h.pageSize,
	}), nil
}

func (h *handlers) searchRoutines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	term, err := req.RequireString("nombre")
	if err != nil {
		return mcp.NewToolResultError("nombre parameter is required"), nil
	}

	c := h.newCollection()
	defer c.Close()
	if err := c.Search(ctx, term); err != nil {
		return h.failure("search_routines", err, "search failed"), nil
	}
	return jsonResult(c.State().Items), nil
}

// loadEditor opens the routine named by the argument key.
func (h *handlers) loadEditor(ctx context.Context, req mcp.CallToolRequest, key string) (*editor.Editor, *mcp.CallToolResult) {
	id, err := req.RequireInt(key)
	if err != nil {
		return nil, mcp.NewToolResultError(key + " parameter is required")
	}
	ed := h.newEditor()
	if err := ed.Load(ctx, id); err != nil {
		ed.Close()
		return nil, h.failure("load routine", err, "could not load routine")
	}
	return ed, nil
}

func (h *handlers) getRoutine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ed, fail := h.loadEditor(ctx, req, "id")
	if fail != nil {
		return fail, nil
	}
	defer ed.Close()
	return jsonResult(viewOf(ed)), nil
}

func (h *handlers) createRoutine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("nombre")
	if err != nil {
		return mcp.NewToolResultError("nombre parameter is required"), nil
	}

	ed := h.newEditor()
	defer ed.Close()
	ed.SetName(name)
	ed.SetDescription(req.GetString("descripcion", ""))
	if _, err := ed.Save(ctx); err != nil {
		return h.failure("create_routine", err, "could not create routine"), nil
	}
	return jsonResult(viewOf(ed)), nil
}

func (h *handlers) updateRoutine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ed, fail := h.loadEditor(ctx, req, "id")
	if fail != nil {
		return fail, nil
	}
	defer ed.Close()

	if name, ok := rawArg(req, "nombre"); ok {
		ed.SetName(name)
	}
	if desc, ok := rawArg(req, "descripcion"); ok {
		ed.SetDescription(desc)
	}
	if _, err := ed.Save(ctx); err != nil {
		return h.failure("update_routine", err, "could not update routine"), nil
	}
	return jsonResult(viewOf(ed)), nil
}

func (h *handlers) deleteRoutine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	c := h.newCollection()
	defer c.Close()
	if err := c.Remove(ctx, id); err != nil {
		return h.failure("delete_routine", err, "could not delete routine"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("routine %d deleted", id)), nil
}

func (h *handlers) duplicateRoutine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	c := h.newCollection()
	defer c.Close()
	if err := c.Duplicate(ctx, id); err != nil {
		return h.failure("duplicate_routine", err, "could not copy routine"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("routine %d copied", id)), nil
}

func (h *handlers) addExercise(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ed, fail := h.loadEditor(ctx, req, "rutina_id")
	if fail != nil {
		return fail, nil
	}
	defer ed.Close()

	for _, field := range exerciseFields {
		if raw, ok := rawArg(req, field); ok {
			if err := ed.SetAddField(field, raw); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
	}
	created, err := ed.AddExercise(ctx)
	if err != nil {
		return h.failure("add_exercise", err, "could not add exercise"), nil
	}
	return jsonResult(created), nil
}

func (h *handlers) addExercises(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Exercises []models.Exercise `json:"ejercicios"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError("ejercicios must be a list of exercises: " + err.Error()), nil
	}
	if len(args.Exercises) == 0 {
		return mcp.NewToolResultError("ejercicios parameter is required"), nil
	}
	ed, fail := h.loadEditor(ctx, req, "rutina_id")
	if fail != nil {
		return fail, nil
	}
	defer ed.Close()

	if _, err := ed.AddExercises(ctx, args.Exercises); err != nil {
		return h.failure("add_exercises", err, "could not add exercises"), nil
	}
	return jsonResult(viewOf(ed)), nil
}

func (h *handlers) updateExercise(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	ed, fail := h.loadEditor(ctx, req, "rutina_id")
	if fail != nil {
		return fail, nil
	}
	defer ed.Close()

	if err := ed.OpenEditor(id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("exercise %d is not in this routine", id)), nil
	}
	for _, field := range exerciseFields {
		if raw, ok := rawArg(req, field); ok {
			if err := ed.SetEditField(field, raw); err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
		}
	}
	if err := ed.UpdateExercise(ctx); err != nil {
		return h.failure("update_exercise", err, "could not update exercise"), nil
	}
	return jsonResult(viewOf(ed)), nil
}

func (h *handlers) deleteExercise(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}
	confirm := req.GetBool("confirm", false)
	if !confirm {
		return mcp.NewToolResultError("confirm must be true: ask the user before removing an exercise"), nil
	}
	ed, fail := h.loadEditor(ctx, req, "rutina_id")
	if fail != nil {
		return fail, nil
	}
	defer ed.Close()

	if err := ed.RemoveExercise(ctx, id, confirm); err != nil {
		if errors.Is(err, editor.ErrUnknownExercise) {
			return mcp.NewToolResultError(fmt.Sprintf("exercise %d is not in this routine", id)), nil
		}
		return h.failure("delete_exercise", err, "could not delete exercise"), nil
	}
	return jsonResult(viewOf(ed)), nil
}
