package main

import (
	"fmt"
	"strconv"

	"github.com/claude/rutinas/internal/editor"
	"github.com/claude/rutinas/internal/models"
	"github.com/claude/rutinas/internal/routines"
	"github.com/spf13/cobra"
)

func (a *app) collection() *routines.Collection {
	return routines.New(a.gw, a.sess,
		routines.WithPageSize(a.cfg.Service.PageSize),
		routines.WithDebounce(a.cfg.Search.Debounce),
		routines.WithLogger(a.log),
	)
}

func (a *app) editor() *editor.Editor {
	return editor.New(a.gw, a.sess, editor.WithLogger(a.log))
}

func idArg(raw, what string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", what, raw)
	}
	return id, nil
}

func newListCmd(a *app) *cobra.Command {
	var (
		page int
		day  string
	)
	c := &cobra.Command{
		Use:   "list",
		Short: "List routines page by page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			col := a.collection()
			defer col.Close()

			var err error
			if day != "" {
				d, ok := models.ParseDay(day)
				if !ok {
					return fmt.Errorf("%q: %s", day, models.UnknownDayMessage(day))
				}
				err = col.SetDay(cmd.Context(), d)
			} else {
				err = col.Refetch(cmd.Context())
			}
			if err != nil {
				return err
			}
			if page != 1 {
				if total := col.State().Page.TotalPages; page < 1 || page > total {
					return fmt.Errorf("page %d out of range (1-%d)", page, total)
				}
				if err := col.SetPage(cmd.Context(), page); err != nil {
					return err
				}
			}
			return a.out.Routines(col.State())
		},
	}
	c.Flags().IntVar(&page, "page", 1, "page number")
	c.Flags().StringVar(&day, "day", "", "only routines with exercises on this weekday")
	return c
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <term>",
		Short: "Find routines by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			col := a.collection()
			defer col.Close()
			if err := col.Search(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.out.Routines(col.State())
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a routine with its exercises by day",
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
			return a.showEditor(ed)
		},
	}
}

func (a *app) showEditor(ed *editor.Editor) error {
	s := ed.State()
	r := models.Routine{ID: s.ID, Name: s.Name, CreatedAt: s.CreatedAt}
	if s.Description != "" {
		r.Description = &s.Description
	}
	return a.out.Routine(r, ed.View())
}

func newCreateCmd(a *app) *cobra.Command {
	var description string
	c := &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty routine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ed := a.editor()
			defer ed.Close()
			ed.SetName(args[0])
			ed.SetDescription(description)
			id, err := ed.Save(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created routine %d.\n", id)
			return nil
		},
	}
	c.Flags().StringVarP(&description, "description", "d", "", "routine description")
	return c
}

func newUpdateCmd(a *app) *cobra.Command {
	var name, description string
	c := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename a routine or change its description",
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
			if cmd.Flags().Changed("name") {
				ed.SetName(name)
			}
			if cmd.Flags().Changed("description") {
				ed.SetDescription(description)
			}
			if _, err := ed.Save(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated routine %d.\n", id)
			return nil
		},
	}
	c.Flags().StringVarP(&name, "name", "n", "", "new name")
	c.Flags().StringVarP(&description, "description", "d", "", "new description")
	return c
}

func newDeleteCmd(a *app) *cobra.Command {
	var yes bool
	c := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a routine and its exercises",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args[0], "routine id")
			if err != nil {
				return err
			}
			if !yes {
				ok, err := confirm(cmd, fmt.Sprintf("Delete routine %d?", id))
				if err != nil || !ok {
					return err
				}
			}
			col := a.collection()
			defer col.Close()
			if err := col.Remove(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted routine %d.\n", id)
			return nil
		},
	}
	c.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return c
}

func newCopyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <id>",
		Short: "Duplicate a routine and show the refreshed list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := idArg(args[0], "routine id")
			if err != nil {
				return err
			}
			col := a.collection()
			defer col.Close()
			if err := col.Duplicate(cmd.Context(), id); err != nil {
				return err
			}
			return a.out.Routines(col.State())
		},
	}
}

func newDaysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "days",
		Short: "List the accepted weekday names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.out.Days()
		},
	}
}
