// Package mcp exposes the routine controllers as MCP tools so an assistant
// can browse and edit routines on the user's behalf.
package mcp

import (
	"context"
	"log/slog"

	"github.com/claude/rutinas/internal/editor"
	"github.com/claude/rutinas/internal/routines"
	"github.com/claude/rutinas/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Gateway is everything the tools reach through the controllers.
type Gateway interface {
	routines.Gateway
	editor.Gateway
}

// Session is the session controller as seen by the tools.
type Session interface {
	Require() error
	Subscribe(fn func(session.State)) (unsubscribe func())
	State() session.State
	Expired() bool
}

// New creates an MCP server with all tools and resources registered.
func New(gw Gateway, sess Session, pageSize int, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("Rutinas", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("Rutinas training plan client. List, search and edit workout routines and their exercises. Every tool requires a logged-in session; run `rutinas login` first."),
	)

	h := &handlers{gw: gw, sess: sess, pageSize: pageSize, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolSessionStatus, Handler: h.sessionStatus},
		server.ServerTool{Tool: toolListRoutines, Handler: h.authed(h.listRoutines)},
		server.ServerTool{Tool: toolSearchRoutines, Handler: h.authed(h.searchRoutines)},
		server.ServerTool{Tool: toolGetRoutine, Handler: h.authed(h.getRoutine)},
		server.ServerTool{Tool: toolCreateRoutine, Handler: h.authed(h.createRoutine)},
		server.ServerTool{Tool: toolUpdateRoutine, Handler: h.authed(h.updateRoutine)},
		server.ServerTool{Tool: toolDeleteRoutine, Handler: h.authed(h.deleteRoutine)},
		server.ServerTool{Tool: toolDuplicateRoutine, Handler: h.authed(h.duplicateRoutine)},
		server.ServerTool{Tool: toolAddExercise, Handler: h.authed(h.addExercise)},
		server.ServerTool{Tool: toolAddExercises, Handler: h.authed(h.addExercises)},
		server.ServerTool{Tool: toolUpdateExercise, Handler: h.authed(h.updateExercise)},
		server.ServerTool{Tool: toolDeleteExercise, Handler: h.authed(h.deleteExercise)},
	)

	s.AddResources(
		server.ServerResource{Resource: resDays, Handler: h.days},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	gw       Gateway
	sess     Session
	pageSize int
	log      *slog.Logger
}

// authed refuses the call while no session is active.
func (h *handlers) authed(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if err := h.sess.Require(); err != nil {
			return mcp.NewToolResultError("not logged in: run `rutinas login` first"), nil
		}
		return next(ctx, req)
	}
}

func (h *handlers) newCollection() *routines.Collection {
	return routines.New(h.gw, h.sess, routines.WithPageSize(h.pageSize), routines.WithLogger(h.log))
}

func (h *handlers) newEditor() *editor.Editor {
	return editor.New(h.gw, h.sess, editor.WithLogger(h.log))
}

// --- Resource definitions ---

var resDays = mcp.NewResource(
	"rutinas://days",
	"Weekdays",
	mcp.WithResourceDescription("Accepted dia_semana values in display order"),
	mcp.WithMIMEType("application/json"),
)
