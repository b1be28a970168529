package models

import (
	"encoding/json"
	"testing"
)

// TestNextOrder verifies the default order is one past the highest order,
// independent of collection position.
func TestNextOrder(t *testing.T) {
	cases := []struct {
		name  string
		input []Exercise
		want  int
	}{
		{"empty", nil, 1},
		{"unsorted", []Exercise{{ID: 1, Order: 3}, {ID: 2, Order: 1}}, 4},
		{"duplicates", []Exercise{{Order: 2}, {Order: 2}}, 3},
		{"zero orders", []Exercise{{Order: 0}}, 1},
	}
	for _, tc := range cases {
		if got := NextOrder(tc.input); got != tc.want {
			t.Errorf("%s: NextOrder = %d, want %d", tc.name, got, tc.want)
		}
	}
}

// TestHasWeight verifies that nil and zero weights both mean "unspecified".
func TestHasWeight(t *testing.T) {
	zero, five := 0.0, 5.0
	if (Exercise{}).HasWeight() {
		t.Error("nil weight should not count")
	}
	if (Exercise{Weight: &zero}).HasWeight() {
		t.Error("zero weight should not count")
	}
	if !(Exercise{Weight: &five}).HasWeight() {
		t.Error("5kg should count")
	}
}

// TestRoutineDecode verifies the detail payload shape including nested exercises.
func TestRoutineDecode(t *testing.T) {
	body := `{"id":7,"nombre":"Push Day","descripcion":null,"fecha_creacion":"2025-01-02T10:00:00",
		"ejercicios":[{"id":1,"nombre":"Press banca","dia_semana":"Lunes","series":4,"repeticiones":8,"peso":60.5,"orden":1,"notas":null}]}`

	var r Routine
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatal(err)
	}
	if r.ID != 7 || r.Name != "Push Day" {
		t.Errorf("routine = %+v", r)
	}
	if r.CreatedAt == nil || r.CreatedAt.Hour() != 10 {
		t.Errorf("fecha_creacion = %v, want 10:00 UTC", r.CreatedAt)
	}
	if r.DescriptionText() != "" {
		t.Errorf("description = %q, want empty", r.DescriptionText())
	}
	if len(r.Exercises) != 1 || !r.Exercises[0].HasWeight() || *r.Exercises[0].Weight != 60.5 {
		t.Errorf("exercises = %+v", r.Exercises)
	}
}
