package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Day is a weekday tag as the routine service spells it on the wire.
type Day string

// Canonical day tags accepted by the service.
const (
	Monday    Day = "Lunes"
	Tuesday   Day = "Martes"
	Wednesday Day = "Miercoles"
	Thursday  Day = "Jueves"
	Friday    Day = "Viernes"
	Saturday  Day = "Sabado"
	Sunday    Day = "Domingo"
)

// Days is the canonical weekday sequence used to order day groups.
var Days = []Day{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// dayMap maps lowercased spellings to canonical tags. Covers the accented
// forms older clients sent, English names and three-letter abbreviations.
var dayMap = map[string]Day{
	// Spanish
	"lunes":     Monday,
	"martes":    Tuesday,
	"miercoles": Wednesday,
	"miércoles": Wednesday,
	"jueves":    Thursday,
	"viernes":   Friday,
	"sabado":    Saturday,
	"sábado":    Saturday,
	"domingo":   Sunday,

	// English
	"monday":    Monday,
	"tuesday":   Tuesday,
	"wednesday": Wednesday,
	"thursday":  Thursday,
	"friday":    Friday,
	"saturday":  Saturday,
	"sunday":    Sunday,

	// Abbreviations
	"lun": Monday,
	"mar": Tuesday,
	"mie": Wednesday,
	"mié": Wednesday,
	"jue": Thursday,
	"vie": Friday,
	"sab": Saturday,
	"sáb": Saturday,
	"dom": Sunday,
	"mon": Monday,
	"tue": Tuesday,
	"wed": Wednesday,
	"thu": Thursday,
	"fri": Friday,
	"sat": Saturday,
	"sun": Sunday,
}

// ParseDay maps a possibly-accented or English day name to its canonical
// tag. Returns the canonical day and true if recognized, or the trimmed
// input and false if unknown.
func ParseDay(raw string) (Day, bool) {
	trimmed := strings.TrimSpace(raw)
	if d, ok := dayMap[strings.ToLower(trimmed)]; ok {
		return d, true
	}
	return Day(trimmed), false
}

// SuggestDay returns the canonical day whose spelling is closest to an
// unrecognized input, if one is within two edits.
func SuggestDay(raw string) (Day, bool) {
	in := strings.ToLower(strings.TrimSpace(raw))
	if in == "" {
		return "", false
	}
	best, bestDist := Day(""), 3
	for spelling, d := range dayMap {
		// abbreviations are a couple of edits away from almost anything
		if len([]rune(spelling)) < 4 {
			continue
		}
		dist := levenshtein.ComputeDistance(in, spelling)
		if dist < bestDist || (dist == bestDist && best != "" && d.Index() < best.Index()) {
			best, bestDist = d, dist
		}
	}
	return best, best != ""
}

// UnknownDayMessage describes a rejected day, with a suggestion when one is close.
func UnknownDayMessage(raw string) string {
	if d, ok := SuggestDay(raw); ok {
		return fmt.Sprintf("unknown day, did you mean %s?", d)
	}
	return "unknown day"
}

// Index returns the position of d in Days, or -1 for unknown tags.
func (d Day) Index() int {
	for i, c := range Days {
		if c == d {
			return i
		}
	}
	return -1
}

// Valid reports whether d is one of the seven canonical tags.
func (d Day) Valid() bool {
	return d.Index() >= 0
}

// UnmarshalJSON normalizes accented spellings so "Miércoles" sorts with "Miercoles".
func (d *Day) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decoding day: %w", err)
	}
	*d, _ = ParseDay(s)
	return nil
}
