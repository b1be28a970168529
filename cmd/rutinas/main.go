package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/claude/rutinas/internal/api"
	"github.com/claude/rutinas/internal/config"
	"github.com/claude/rutinas/internal/credstore"
	"github.com/claude/rutinas/internal/render"
	"github.com/claude/rutinas/internal/session"
	"github.com/spf13/cobra"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	a := &app{}
	root := newRootCmd(a)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.Execute()
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", a.message(err))
		os.Exit(1)
	}
}

// app is the wiring shared by every subcommand. It is filled in by the
// root command's PersistentPreRunE.
type app struct {
	configPath string
	debug      bool

	cfg   *config.Config
	log   *slog.Logger
	store *credstore.SQLiteStore
	gw    *api.Client
	sess  *session.Controller
	out   *render.Console
	ts    *tsnet.Server
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rutinas",
		Short: "Manage workout routines from the terminal",
		Long: strings.TrimSpace(`
Rutinas - client for the routines service

Log in once; the token is kept in a local SQLite file and sent with every
request until you log out or the service rejects it.`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file (default ~/.rutinas/config.yaml)")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	cmd.Version = Version

	cmd.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newRegisterCmd(a),
		newStatusCmd(a),
		newListCmd(a),
		newSearchCmd(a),
		newShowCmd(a),
		newCreateCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newCopyCmd(a),
		newExerciseCmd(a),
		newDaysCmd(a),
		newMCPCmd(a),
	)
	return cmd
}

func defaultConfigPath() string {
	return filepath.Join(config.Default().Store.Dir, "config.yaml")
}

func (a *app) init(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = defaultConfigPath()
	}

	var err error
	if a.configPath != "" {
		a.cfg, err = config.Load(path)
	} else {
		a.cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return err
	}

	level, _ := a.cfg.Log.SlogLevel()
	if a.debug {
		level = slog.LevelDebug
	}
	// stdout carries tables and the MCP stream, so logs go to stderr.
	a.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	a.out = render.NewConsole(cmd.OutOrStdout())
	a.out.EnableColors = cmd.OutOrStdout() == os.Stdout

	a.store, err = credstore.Open(a.cfg.Store.Dir, a.cfg.Store.Slot)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}

	httpClient, err := a.httpClient()
	if err != nil {
		return err
	}
	a.gw = api.New(a.cfg.Service.BaseURL, credstore.TokenSource(a.store),
		api.WithHTTPClient(httpClient),
		api.WithLogger(a.log),
	)
	a.sess = session.New(a.store, a.gw, a.log)
	a.gw.SetUnauthorizedHook(a.sess.Expire)

	a.log.Debug("rutinas ready", "version", Version, "base_url", a.cfg.Service.BaseURL, "session", a.sess.State())
	return nil
}

// httpClient returns a plain client, or one that dials through the tailnet
// when tailscale is enabled.
func (a *app) httpClient() (*http.Client, error) {
	if !a.cfg.Tailscale.Enabled {
		return &http.Client{Timeout: a.cfg.Service.Timeout}, nil
	}

	a.ts = &tsnet.Server{
		Hostname: a.cfg.Tailscale.Hostname,
		Dir:      a.cfg.Tailscale.StateDir,
		Logf: func(format string, args ...any) {
			a.log.Debug(fmt.Sprintf(format, args...), "component", "tsnet")
		},
	}
	if err := a.ts.Start(); err != nil {
		return nil, fmt.Errorf("tsnet start: %w", err)
	}
	a.log.Info("tsnet client started", "hostname", a.cfg.Tailscale.Hostname)

	hc := a.ts.HTTPClient()
	hc.Timeout = a.cfg.Service.Timeout
	return hc, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("closing credential store", "error", err)
		}
	}
	if a.ts != nil {
		a.ts.Close()
	}
}

// message turns err into the line shown to the user.
func (a *app) message(err error) string {
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		return "not logged in; run `rutinas login`"
	case errors.Is(err, session.ErrInvalidCredentials):
		return err.Error()
	case a.sess != nil && a.sess.Expired():
		return "session expired; run `rutinas login` again"
	}
	return api.Message(err, err.Error())
}
