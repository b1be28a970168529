package main

import (
	"os"
	"os/signal"
	"syscall"

	mcpsrv "github.com/claude/rutinas/internal/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the routine tools over MCP on stdin/stdout",
		Long: "Runs a Model Context Protocol server on stdio. Logs go to stderr;\n" +
			"log in with `rutinas login` first, the stored token is reused.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := mcpsrv.New(a.gw, a.sess, a.cfg.Service.PageSize, Version, a.log)
			a.log.Info("mcp server starting", "service", a.cfg.Service.BaseURL, "session", a.sess.State().String())
			stdio := server.NewStdioServer(s)
			return stdio.Listen(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
