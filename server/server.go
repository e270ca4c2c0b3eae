package server

import (
	"context"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/doc-commenter/internal/logger"
	"github.com/Epistemic-Technology/doc-commenter/internal/storage"
	"github.com/Epistemic-Technology/doc-commenter/resources"
	"github.com/Epistemic-Technology/doc-commenter/tools"
)

// Name and Version identify the server to MCP clients.
var (
	Name    = "doc-commenter"
	Version = "v0.1.0"
)

func CreateServer(log logger.Logger) *mcp.Server {
	return CreateServerWithStore(storage.NewMemoryStore(storage.DefaultCapacity), log)
}

// CreateServerWithStore builds the server around an existing run store.
func CreateServerWithStore(store storage.Store, log logger.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: Name, Version: Version}, nil)

	runResourceHandler := resources.NewRunResourceHandler(store)
	readRun := func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return runResourceHandler.ReadResource(ctx, req.Params.URI)
	}

	published := &runPublisher{uris: make(map[string]bool)}

	// Listings come from the store so they follow its order and eviction.
	server.AddReceivingMiddleware(func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method != "resources/list" {
				return next(ctx, method, req)
			}
			list, err := runResourceHandler.ListResources(ctx)
			if err != nil {
				return nil, err
			}
			return &mcp.ListResourcesResult{Resources: list}, nil
		}
	})

	// Register tools with storage and logger dependencies
	mcp.AddTool(server, tools.AnnotateDocumentTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.AnnotateDocumentQuery) (*mcp.CallToolResult, *tools.AnnotateDocumentResponse, error) {
		result, resp, err := tools.AnnotateDocumentToolHandler(ctx, req, query, store, log)
		if err != nil {
			return result, resp, err
		}
		published.sync(ctx, server, store, readRun, log)
		return result, resp, nil
	})

	mcp.AddTool(server, tools.DocumentInspectTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.DocumentInspectQuery) (*mcp.CallToolResult, *tools.DocumentInspectResponse, error) {
		return tools.DocumentInspectToolHandler(ctx, req, query, log)
	})

	mcp.AddTool(server, tools.RunListTool(), func(ctx context.Context, req *mcp.CallToolRequest, query tools.RunListQuery) (*mcp.CallToolResult, *tools.RunListResponse, error) {
		return tools.RunListToolHandler(ctx, req, query, store, log)
	})

	// Template for run reports
	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "commenter://runs/{runId}",
		Name:        "annotation-run",
		Description: "Report of an annotation run: output path, digests and per-entry results",
		MIMEType:    "application/json",
	}, readRun)

	// Template for individual entry reports
	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "commenter://runs/{runId}/entries/{entry}",
		Name:        "annotation-run-entry",
		Description: "Result of one spec entry of an annotation run (1-indexed)",
		MIMEType:    "application/json",
	}, readRun)

	return server
}

// runPublisher mirrors the stored runs as server resources so clients get
// list-changed notifications when runs are added or evicted.
type runPublisher struct {
	mu   sync.Mutex
	uris map[string]bool
}

func (p *runPublisher) sync(ctx context.Context, server *mcp.Server, store storage.Store, read mcp.ResourceHandler, log logger.Logger) {
	runs, err := store.ListRuns(ctx)
	if err != nil {
		log.Warn("Failed to list runs: %v", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := make(map[string]bool, len(runs))
	for _, run := range runs {
		uri := storage.RunURI(run.RunID)
		current[uri] = true
		if !p.uris[uri] {
			server.AddResource(resources.RunResource(run), read)
		}
	}
	var evicted []string
	for uri := range p.uris {
		if !current[uri] {
			evicted = append(evicted, uri)
		}
	}
	if len(evicted) > 0 {
		server.RemoveResources(evicted...)
		log.Debug("Removed %d evicted run resources", len(evicted))
	}
	p.uris = current
}
