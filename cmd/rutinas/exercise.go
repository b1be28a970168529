package main

import (
	"fmt"
	"io"
	"os"

	"github.com/claude/rutinas/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// exerciseFlag maps a flag to the form field it types into.
type exerciseFlag struct {
	flag, field, usage string
}

var exerciseFlags = []exerciseFlag{
	{"name", models.FieldName, "exercise name"},
	{"day", models.FieldDayOfWeek, "weekday (see `rutinas days`)"},
	{"series", models.FieldSeries, "number of series"},
	{"reps", models.FieldRepetitions, "repetitions per series"},
	{"weight", models.FieldWeight, "weight in kg, 0 for none"},
	{"order", models.FieldOrder, "position within the day"},
	{"notes", models.FieldNotes, "free-form notes"},
}

func addExerciseFlags(cmd *cobra.Command) {
	for _, f := range exerciseFlags {
		cmd.Flags().String(f.flag, "", f.usage)
	}
}

// applyExerciseFlags types every flag the user set into the form via set.
func applyExerciseFlags(cmd *cobra.Command, set func(field, raw string) error) error {
	for _, f := range exerciseFlags {
		if !cmd.Flags().Changed(f.flag) {
			continue
		}
		raw, _ := cmd.Flags().GetString(f.flag)
		if err := set(f.field, raw); err != nil {
			return fmt.Errorf("--%s: %w", f.flag, err)
		}
	}
	return nil
}

func newExerciseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "exercise",
		Aliases: []string{"ex"},
		Short:   "Add, change or remove exercises of a routine",
	}
	cmd.AddCommand(newExerciseAddCmd(a), newExerciseImportCmd(a), newExerciseUpdateCmd(a), newExerciseDeleteCmd(a))
	return cmd
}

func newExerciseAddCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "add <routine-id>",
		Short: "Add an exercise; order defaults to the next free position",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args[0], "routine id")
			if err != nil {
				return err
			}
			ed := a.editor()
			defer ed.Close()
			if err := ed.Load(cmd.Context(), id); err != nil {
				return err
			}
			if err := applyExerciseFlags(cmd, ed.SetAddField); err != nil {
				return err
			}
			ex, err := ed.AddExercise(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %q (#%d) on %s.\n", ex.Name, ex.ID, ex.Day)
			return a.showEditor(ed)
		},
	}
	addExerciseFlags(c)
	return c
}

// exerciseEntry is one exercise in an import file. JSON files parse too.
type exerciseEntry struct {
	Name        string   `yaml:"nombre"`
	Day         string   `yaml:"dia_semana"`
	Series      int      `yaml:"series"`
	Repetitions int      `yaml:"repeticiones"`
	Weight      *float64 `yaml:"peso"`
	Order       int      `yaml:"orden"`
	Notes       string   `yaml:"notas"`
}

func (e exerciseEntry) exercise() models.Exercise {
	ex := models.Exercise{
		Name:        e.Name,
		Day:         models.Day(e.Day),
		Series:      e.Series,
		Repetitions: e.Repetitions,
		Weight:      e.Weight,
		Order:       e.Order,
	}
	if e.Notes != "" {
		notes := e.Notes
		ex.Notes = &notes
	}
	return ex
}

func readExerciseFile(cmd *cobra.Command, path string) ([]models.Exercise, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading exercise file: %w", err)
	}
	var entries []exerciseEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing exercise file: %w", err)
	}
	out := make([]models.Exercise, len(entries))
	for i, e := range entries {
		out[i] = e.exercise()
	}
	return out, nil
}

func newExerciseImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <routine-id> <file>",
		Short: "Add every exercise listed in a YAML or JSON file (- for stdin) in one request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args[0], "routine id")
			if err != nil {
				return err
			}
			exercises, err := readExerciseFile(cmd, args[1])
			if err != nil {
				return err
			}
			if len(exercises) == 0 {
				return fmt.Errorf("%s lists no exercises", args[1])
			}
			ed := a.editor()
			defer ed.Close()
			if err := ed.Load(cmd.Context(), id); err != nil {
				return err
			}
			created, err := ed.AddExercises(cmd.Context(), exercises)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d exercises.\n", len(created))
			return a.showEditor(ed)
		},
	}
}

func newExerciseUpdateCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "update <routine-id> <exercise-id>",
		Short: "Change fields of an exercise",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rid, err := idArg(args[0], "routine id")
			if err != nil {
				return err
			}
			eid, err := idArg(args[1], "exercise id")
			if err != nil {
				return err
			}
			ed := a.editor()
			defer ed.Close()
			if err := ed.Load(cmd.Context(), rid); err != nil {
				return err
			}
			if err := ed.OpenEditor(eid); err != nil {
				return fmt.Errorf("exercise %d in routine %d: %w", eid, rid, err)
			}
			if err := applyExerciseFlags(cmd, ed.SetEditField); err != nil {
				return err
			}
			if err := ed.UpdateExercise(cmd.Context()); err != nil {
				return err
			}
			return a.showEditor(ed)
		},
	}
	addExerciseFlags(c)
	return c
}

func newExerciseDeleteCmd(a *app) *cobra.Command {
	var yes bool
	c := &cobra.Command{
		Use:   "delete <routine-id> <exercise-id>",
		Short: "Remove an exercise from a routine",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rid, err := idArg(args[0], "routine id")
			if err != nil {
				return err
			}
			eid, err := idArg(args[1], "exercise id")
			if err != nil {
				return err
			}
			ed := a.editor()
			defer ed.Close()
			if err := ed.Load(cmd.Context(), rid); err != nil {
				return err
			}
			ok := yes
			if !ok {
				if ok, err = confirm(cmd, fmt.Sprintf("Delete exercise %d?", eid)); err != nil {
					return err
				}
			}
			if !ok {
				return nil
			}
			if err := ed.RemoveExercise(cmd.Context(), eid, true); err != nil {
				return err
			}
			return a.showEditor(ed)
		},
	}
	c.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return c
}
