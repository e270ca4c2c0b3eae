package tools

import (
	"context"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/doc-commenter/internal/logger"
	"github.com/Epistemic-Technology/doc-commenter/internal/storage"
	"github.com/Epistemic-Technology/doc-commenter/models"
)

type RunListQuery struct {
	Limit int `json:"limit,omitempty"`
}

type RunListResponse struct {
	Runs  []models.RunInfo `json:"runs"`
	Total int              `json:"total"`
}

func RunListTool() *mcp.Tool {
	inputschema, err := jsonschema.For[RunListQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "run-list",
		Description: "List annotation runs performed by this server, newest first. Each run's full report is available as the resource commenter://runs/{run_id}.",
		InputSchema: inputschema,
	}
}

func RunListToolHandler(ctx context.Context, req *mcp.CallToolRequest, query RunListQuery, store storage.Store, log logger.Logger) (*mcp.CallToolResult, *RunListResponse, error) {
	log.Info("run-list tool called")

	runs, err := store.ListRuns(ctx)
	if err != nil {
		log.Error("Failed to list runs: %v", err)
		return nil, nil, fmt.Errorf("failed to list runs: %w", err)
	}
	total := len(runs)
	if query.Limit > 0 && query.Limit < total {
		runs = runs[:query.Limit]
	}
	return nil, &RunListResponse{Runs: runs, Total: total}, nil
}
