package models

// Exercise is a prescribed movement nested under a routine and tagged to a
// weekday. Order ranks it within its day group only.
type Exercise struct {
	ID          int      `json:"id,omitempty"`
	RoutineID   int      `json:"rutina_id,omitempty"`
	Name        string   `json:"nombre"`
	Day         Day      `json:"dia_semana"`
	Series      int      `json:"series"`
	Repetitions int      `json:"repeticiones"`
	Weight      *float64 `json:"peso"`
	Order       int      `json:"orden"`
	Notes       *string  `json:"notas"`
}

// HasWeight reports whether a non-zero weight was prescribed.
func (e Exercise) HasWeight() bool {
	return e.Weight != nil && *e.Weight != 0
}

// NotesText returns the notes or "" when unset.
func (e Exercise) NotesText() string {
	if e.Notes == nil {
		return ""
	}
	return *e.Notes
}

// NextOrder returns the default order for a new exercise: one past the
// highest existing order, or 1 for an empty collection.
func NextOrder(exercises []Exercise) int {
	if len(exercises) == 0 {
		return 1
	}
	highest := exercises[0].Order
	for _, e := range exercises[1:] {
		if e.Order > highest {
			highest = e.Order
		}
	}
	return highest + 1
}
