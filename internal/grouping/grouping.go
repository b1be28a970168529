// Package grouping projects a flat exercise list into weekday groups.
package grouping

import (
	"sort"

	"github.com/claude/rutinas/internal/models"
)

// DayGroup is the exercises for one weekday, ordered by Order.
type DayGroup struct {
	Day       models.Day        `json:"dia"`
	Exercises []models.Exercise `json:"ejercicios"`
}

// Project groups exercises by day. Groups follow models.Days; days without
// exercises are left out and unrecognized tags come last in first-seen
// order. Within a group, exercises are stably sorted by Order.
func Project(exercises []models.Exercise) []DayGroup {
	byDay := map[models.Day][]models.Exercise{}
	var unknown []models.Day
	for _, e := range exercises {
		if _, seen := byDay[e.Day]; !seen && !e.Day.Valid() {
			unknown = append(unknown, e.Day)
		}
		byDay[e.Day] = append(byDay[e.Day], e)
	}

	order := append(append([]models.Day(nil), models.Days...), unknown...)
	groups := make([]DayGroup, 0, len(byDay))
	for _, d := range order {
		list, ok := byDay[d]
		if !ok {
			continue
		}
		sort.SliceStable(list, func(i, j int) bool { return list[i].Order < list[j].Order })
		groups = append(groups, DayGroup{Day: d, Exercises: list})
	}
	return groups
}

// Flatten concatenates the groups back into one list in display order.
func Flatten(groups []DayGroup) []models.Exercise {
	var out []models.Exercise
	for _, g := range groups {
		out = append(out, g.Exercises...)
	}
	return out
}
