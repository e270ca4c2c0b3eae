package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/doc-commenter/internal/storage"
	"github.com/Epistemic-Technology/doc-commenter/models"
)

const scheme = "commenter://"

// RunResourceHandler handles resource requests for annotation run reports
type RunResourceHandler struct {
	store storage.Store
}

// NewRunResourceHandler creates a new run resource handler
func NewRunResourceHandler(store storage.Store) *RunResourceHandler {
	return &RunResourceHandler{store: store}
}

// ListResources returns one resource per stored run, newest first
func (h *RunResourceHandler) ListResources(ctx context.Context) ([]*mcp.Resource, error) {
	runs, err := h.store.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	resources := make([]*mcp.Resource, 0, len(runs))
	for _, run := range runs {
		resources = append(resources, RunResource(run))
	}
	return resources, nil
}

// RunResource describes the report resource of a run
func RunResource(run models.RunInfo) *mcp.Resource {
	return &mcp.Resource{
		URI:         storage.RunURI(run.RunID),
		Name:        fmt.Sprintf("%s (run %s)", filepath.Base(run.DocumentPath), run.RunID),
		Description: fmt.Sprintf("Annotation run on %s: %d entries, %d annotations", run.DocumentPath, run.Entries, run.Applied),
		MIMEType:    "application/json",
	}
}

// ReadResource reads a specific resource by URI
func (h *RunResourceHandler) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	// Parse URI: commenter://runs/run_id/entries/optional_index
	if !strings.HasPrefix(uri, scheme) {
		return nil, fmt.Errorf("invalid URI scheme, expected %s", scheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, scheme), "/")
	if len(parts) < 2 || parts[0] != "runs" || parts[1] == "" {
		return nil, fmt.Errorf("invalid URI, expected %sruns/{runId}", scheme)
	}
	runID := parts[1]

	var (
		value any
		err   error
	)
	switch {
	case len(parts) == 2:
		value, err = h.store.GetRun(ctx, runID)
	case len(parts) == 4 && parts[2] == "entries":
		index, convErr := strconv.Atoi(parts[3])
		if convErr != nil {
			return nil, fmt.Errorf("invalid entry index: %s", parts[3])
		}
		value, err = h.store.GetEntry(ctx, runID, index)
	default:
		return nil, fmt.Errorf("unknown resource: %s", uri)
	}
	if err != nil {
		return nil, err
	}

	content, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(content),
			},
		},
	}, nil
}
