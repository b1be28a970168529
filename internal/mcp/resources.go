package mcp

import (
	"context"
	"encoding/json"

	"github.com/claude/rutinas/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

func (h *handlers) days(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(models.Days)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
