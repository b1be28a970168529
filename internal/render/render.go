// Package render prints routines and day groups as console tables.
package render

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/claude/rutinas/internal/grouping"
	"github.com/claude/rutinas/internal/models"
	"github.com/claude/rutinas/internal/routines"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

// Console writes tables to W. Colors are off unless EnableColors is set.
type Console struct {
	W            io.Writer
	EnableColors bool
	// Width overrides terminal detection when positive.
	Width int
}

// NewConsole returns a Console for w.
func NewConsole(w io.Writer) *Console {
	return &Console{W: w}
}

func (c *Console) newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(c.W)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.DrawBorder = true
	return tw
}

// Routines prints one page (or search result) of routines.
func (c *Console) Routines(s routines.State) error {
	if len(s.Items) == 0 {
		_, err := fmt.Fprintln(c.W, "No routines.")
		return err
	}

	tw := c.newTable()
	tw.AppendHeader(table.Row{"ID", "Nombre", "Descripción", "Creada"})
	descWidth := c.flexWidth(40)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, WidthMax: descWidth, Transformer: truncTransformer(descWidth)},
	})
	for _, r := range s.Items {
		created := ""
		if r.CreatedAt != nil {
			created = r.CreatedAt.Format("2006-01-02")
		}
		tw.AppendRow(table.Row{r.ID, r.Name, r.DescriptionText(), created})
	}
	tw.Render()

	if s.Paginated {
		if _, err := fmt.Fprintf(c.W, "Page %d of %d\n", s.Page.Number, max(s.Page.TotalPages, 1)); err != nil {
			return fmt.Errorf("writing page footer: %w", err)
		}
	}
	if s.LastError != "" {
		if _, err := fmt.Fprintf(c.W, "Error: %s\n", s.LastError); err != nil {
			return fmt.Errorf("writing error line: %w", err)
		}
	}
	return nil
}

// Routine prints a routine header followed by one table per day group.
func (c *Console) Routine(r models.Routine, groups []grouping.DayGroup) error {
	if _, err := fmt.Fprintf(c.W, "%s (#%d)\n", r.Name, r.ID); err != nil {
		return fmt.Errorf("writing routine header: %w", err)
	}
	if d := r.DescriptionText(); d != "" {
		if _, err := fmt.Fprintln(c.W, d); err != nil {
			return fmt.Errorf("writing description: %w", err)
		}
	}
	if len(groups) == 0 {
		_, err := fmt.Fprintln(c.W, "No exercises.")
		return err
	}

	notesWidth := c.flexWidth(30)
	for _, g := range groups {
		tw := c.newTable()
		tw.SetTitle(c.color(string(g.Day), text.FgCyan))
		tw.AppendHeader(table.Row{"#", "Ejercicio", "Series", "Reps", "Peso", "Notas", "ID"})
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Number: 1, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
			{Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight},
			{Number: 6, WidthMax: notesWidth, Transformer: truncTransformer(notesWidth)},
			{Number: 7, Align: text.AlignRight},
		})
		for _, e := range g.Exercises {
			tw.AppendRow(table.Row{e.Order, e.Name, e.Series, e.Repetitions, weight(e), e.NotesText(), e.ID})
		}
		tw.Render()
	}
	return nil
}

// Days prints the accepted weekday tags in canonical order.
func (c *Console) Days() error {
	tw := c.newTable()
	tw.AppendHeader(table.Row{"#", "Día"})
	for i, d := range models.Days {
		tw.AppendRow(table.Row{i + 1, d})
	}
	tw.Render()
	return nil
}

// weight is blank for exercises without a load.
func weight(e models.Exercise) string {
	if !e.HasWeight() {
		return ""
	}
	return strconv.FormatFloat(*e.Weight, 'f', -1, 64) + " kg"
}

func (c *Console) color(s string, attr text.Color) string {
	if !c.EnableColors {
		return s
	}
	return attr.Sprint(s)
}

// flexWidth gives a free-text column a third of the terminal, never less
// than floor.
func (c *Console) flexWidth(floor int) int {
	width := c.Width
	if width <= 0 {
		width = detectTerminalWidth(c.W)
	}
	if width <= 0 {
		return floor
	}
	return max(width/3, floor)
}

func detectTerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}
	return -1
}

func truncTransformer(limit int) text.Transformer {
	return func(val interface{}) string {
		s := fmt.Sprint(val)
		if utf8.RuneCountInString(s) <= limit {
			return s
		}
		if limit <= 1 {
			return "…"
		}
		runes := []rune(s)
		return string(runes[:limit-1]) + "…"
	}
}
