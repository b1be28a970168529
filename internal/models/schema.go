package models

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FieldKind selects how raw form input is coerced.
type FieldKind int

const (
	FieldText FieldKind = iota
	FieldInt
	FieldFloat
	FieldDay
)

// Field describes one exercise form field by its wire name.
type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
	// Min is the smallest accepted numeric value; ignored for text fields.
	Min float64
}

// Schema is an ordered set of field rules shared by the add and edit forms.
type Schema []Field

// Exercise form field names.
const (
	FieldName        = "nombre"
	FieldDayOfWeek   = "dia_semana"
	FieldSeries      = "series"
	FieldRepetitions = "repeticiones"
	FieldWeight      = "peso"
	FieldOrder       = "orden"
	FieldNotes       = "notas"
)

// ExerciseSchema is the field table for exercise drafts.
var ExerciseSchema = Schema{
	{Name: FieldName, Kind: FieldText, Required: true},
	{Name: FieldDayOfWeek, Kind: FieldDay, Required: true},
	{Name: FieldSeries, Kind: FieldInt, Required: true, Min: 1},
	{Name: FieldRepetitions, Kind: FieldInt, Required: true, Min: 1},
	{Name: FieldWeight, Kind: FieldFloat, Min: 0},
	{Name: FieldOrder, Kind: FieldInt, Required: true},
	{Name: FieldNotes, Kind: FieldText},
}

// ErrInvalid is matched by every ValidationError.
var ErrInvalid = errors.New("invalid input")

// ValidationError lists the fields that block submission, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

// Draft is an editable exercise buffer. It keeps the raw text of every field
// alongside the coerced value so a half-typed number survives re-rendering.
type Draft struct {
	ID      int
	value   Exercise
	weight  float64
	raw     map[string]string
	invalid map[string]string
}

// NewDraft returns the blank add-form state with the given default order.
func NewDraft(order int) Draft {
	d := Draft{
		value: Exercise{
			Day:         Monday,
			Series:      3,
			Repetitions: 12,
			Order:       order,
		},
		raw:     map[string]string{},
		invalid: map[string]string{},
	}
	d.raw[FieldDayOfWeek] = string(Monday)
	d.raw[FieldSeries] = "3"
	d.raw[FieldRepetitions] = "12"
	d.raw[FieldWeight] = "0"
	d.raw[FieldOrder] = strconv.Itoa(order)
	return d
}

// DraftFrom seeds a draft with the field values of an existing exercise.
func DraftFrom(e Exercise) Draft {
	d := Draft{
		ID:      e.ID,
		value:   e,
		raw:     map[string]string{},
		invalid: map[string]string{},
	}
	if e.Weight != nil {
		d.weight = *e.Weight
	}
	d.raw[FieldName] = e.Name
	d.raw[FieldDayOfWeek] = string(e.Day)
	d.raw[FieldSeries] = strconv.Itoa(e.Series)
	d.raw[FieldRepetitions] = strconv.Itoa(e.Repetitions)
	d.raw[FieldWeight] = strconv.FormatFloat(d.weight, 'f', -1, 64)
	d.raw[FieldOrder] = strconv.Itoa(e.Order)
	d.raw[FieldNotes] = e.NotesText()
	return d
}

// Text returns the raw input last entered for field.
func (d Draft) Text(field string) string {
	return d.raw[field]
}

// Invalid returns the coercion problem recorded for field, if any.
func (d Draft) Invalid(field string) string {
	return d.invalid[field]
}

// Exercise returns the coerced values as a request body.
func (d Draft) Exercise() Exercise {
	e := d.value
	e.ID = d.ID
	w := d.weight
	e.Weight = &w
	if n := strings.TrimSpace(d.raw[FieldNotes]); n != "" {
		e.Notes = &n
	} else {
		e.Notes = nil
	}
	return e
}

// Lookup returns the rule for name.
func (s Schema) Lookup(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Set stores raw input for a field and coerces it immediately. A value that
// does not parse keeps its raw text and marks the field invalid until the
// next keystroke fixes it.
func (s Schema) Set(d *Draft, name, raw string) error {
	f, ok := s.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}
	if d.raw == nil {
		d.raw = map[string]string{}
	}
	if d.invalid == nil {
		d.invalid = map[string]string{}
	}
	d.raw[name] = raw
	delete(d.invalid, name)

	trimmed := strings.TrimSpace(raw)
	switch f.Kind {
	case FieldText:
		if name == FieldName {
			d.value.Name = trimmed
		}
	case FieldDay:
		day, _ := ParseDay(trimmed)
		d.value.Day = day
	case FieldInt:
		n := 0
		if trimmed != "" {
			v, err := strconv.Atoi(trimmed)
			if err != nil {
				d.invalid[name] = "must be a whole number"
				return nil
			}
			n = v
		}
		switch name {
		case FieldSeries:
			d.value.Series = n
		case FieldRepetitions:
			d.value.Repetitions = n
		case FieldOrder:
			d.value.Order = n
		}
	case FieldFloat:
		v := 0.0
		if trimmed != "" {
			parsed, err := strconv.ParseFloat(trimmed, 64)
			if err != nil {
				d.invalid[name] = "must be a number"
				return nil
			}
			v = parsed
		}
		if name == FieldWeight {
			d.weight = v
		}
	}
	return nil
}

// Validate checks required fields and numeric bounds. It returns a
// *ValidationError listing every offending field, or nil.
func (s Schema) Validate(d Draft) error {
	problems := map[string]string{}
	for name, msg := range d.invalid {
		problems[name] = msg
	}
	e := d.Exercise()
	for _, f := range s {
		if _, bad := problems[f.Name]; bad {
			continue
		}
		raw := strings.TrimSpace(d.raw[f.Name])
		if f.Required && raw == "" {
			problems[f.Name] = "required"
			continue
		}
		switch f.Kind {
		case FieldDay:
			if raw != "" && !e.Day.Valid() {
				problems[f.Name] = UnknownDayMessage(raw)
			}
		case FieldInt, FieldFloat:
			if v := numericValue(e, f.Name); v < f.Min {
				problems[f.Name] = fmt.Sprintf("must be at least %g", f.Min)
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Fields: problems}
}

func numericValue(e Exercise, name string) float64 {
	switch name {
	case FieldSeries:
		return float64(e.Series)
	case FieldRepetitions:
		return float64(e.Repetitions)
	case FieldOrder:
		return float64(e.Order)
	case FieldWeight:
		if e.Weight != nil {
			return *e.Weight
		}
	}
	return 0
}

// Clone returns a copy that shares no maps with d.
func (d Draft) Clone() Draft {
	c := d
	c.raw = make(map[string]string, len(d.raw))
	for k, v := range d.raw {
		c.raw[k] = v
	}
	c.invalid = make(map[string]string, len(d.invalid))
	for k, v := range d.invalid {
		c.invalid[k] = v
	}
	return c
}
