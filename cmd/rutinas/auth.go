package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/claude/rutinas/internal/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newLoginCmd(a *app) *cobra.Command {
	var email, password string
	c := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if email == "" {
				if email, err = prompt(cmd, in, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = promptSecret(cmd, in, "Password: "); err != nil {
					return err
				}
			}
			if err := a.sess.Login(cmd.Context(), email, password); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in.")
			return nil
		},
	}
	c.Flags().StringVarP(&email, "email", "e", "", "account email")
	c.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return c
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.sess.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	var p models.Profile
	c := &cobra.Command{
		Use:   "register",
		Short: "Create an account (does not log in)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if p.Name == "" {
				if p.Name, err = prompt(cmd, in, "Name: "); err != nil {
					return err
				}
			}
			if p.Email == "" {
				if p.Email, err = prompt(cmd, in, "Email: "); err != nil {
					return err
				}
			}
			if p.Password == "" {
				if p.Password, err = promptSecret(cmd, in, "Password: "); err != nil {
					return err
				}
			}
			u, err := a.sess.Register(cmd.Context(), p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (#%d). Run `rutinas login` to start.\n", u.Email, u.ID)
			return nil
		},
	}
	c.Flags().StringVarP(&p.Name, "name", "n", "", "display name")
	c.Flags().StringVarP(&p.Email, "email", "e", "", "account email")
	c.Flags().StringVarP(&p.Password, "password", "p", "", "password (prompted when omitted)")
	return c
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state and service address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "service: %s\nsession: %s\n", a.cfg.Service.BaseURL, a.sess.State())
			return nil
		},
	}
}

func prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.ToLower(label), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads without echo when stdin is a terminal.
func promptSecret(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return prompt(cmd, in, label)
	}
	fmt.Fprint(cmd.ErrOrStderr(), label)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// confirm asks a yes/no question; anything but y/yes/s/si is a no.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	answer, err := prompt(cmd, bufio.NewReader(cmd.InOrStdin()), question+" [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes", "s", "si", "sí":
		return true, nil
	}
	return false, nil
}
