package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/doc-commenter/internal/documents"
	"github.com/Epistemic-Technology/doc-commenter/internal/logger"
	"github.com/Epistemic-Technology/doc-commenter/internal/operations"
	"github.com/Epistemic-Technology/doc-commenter/internal/spec"
	"github.com/Epistemic-Technology/doc-commenter/internal/storage"
	"github.com/Epistemic-Technology/doc-commenter/models"
)

type AnnotateDocumentQuery struct {
	DocumentPath string `json:"document_path"`
	SpecPath     string `json:"spec_path,omitempty"`
	Spec         string `json:"spec,omitempty"` // Inline JSON, used when spec_path is empty
	OutputPath   string `json:"output_path,omitempty"`
	Author       string `json:"author,omitempty"`
}

type AnnotateDocumentResponse struct {
	RunID         string               `json:"run_id"`
	OutputPath    string               `json:"output_path"`
	Applied       int                  `json:"applied"`
	Skipped       int                  `json:"skipped"`
	Entries       []models.EntryReport `json:"entries"`
	ResourcePaths []string             `json:"resource_paths"`
}

func AnnotateDocumentTool() *mcp.Tool {
	inputschema, err := jsonschema.For[AnnotateDocumentQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "annotate-document",
		Description: "Add reviewer comments to a local .docx or .pdf file. The annotation spec is a JSON object or array of objects with a target (text to find, or a page and bounding box for PDFs) and a comment; pass it inline as spec or as a file path in spec_path. Writes <name>-annotated.<ext> next to the input unless output_path is given, and returns a per-entry report.",
		InputSchema: inputschema,
	}
}

func AnnotateDocumentToolHandler(ctx context.Context, req *mcp.CallToolRequest, query AnnotateDocumentQuery, store storage.Store, log logger.Logger) (*mcp.CallToolResult, *AnnotateDocumentResponse, error) {
	log.Info("annotate-document tool called")

	report, err := annotate(ctx, query, log)
	if err != nil {
		log.Error("annotate-document tool failed: %v", err)
		return nil, nil, err
	}

	if err := store.SaveRun(ctx, report); err != nil {
		log.Warn("Failed to store run %s: %v", report.RunID, err)
	}

	return nil, &AnnotateDocumentResponse{
		RunID:         report.RunID,
		OutputPath:    report.OutputPath,
		Applied:       report.Applied,
		Skipped:       report.Skipped,
		Entries:       report.Entries,
		ResourcePaths: storage.CalculateResourcePaths(report),
	}, nil
}

func annotate(ctx context.Context, query AnnotateDocumentQuery, log logger.Logger) (*models.RunReport, error) {
	if query.DocumentPath == "" {
		return nil, errors.New("document_path is required")
	}
	if (query.SpecPath == "") == (query.Spec == "") {
		return nil, errors.New("exactly one of spec_path and spec is required")
	}

	doc, err := documents.ReadDocument(query.DocumentPath)
	if err != nil {
		return nil, err
	}

	opts := spec.Options{DefaultAuthor: query.Author}
	var entries []models.Entry
	if query.SpecPath != "" {
		entries, err = spec.Load(query.SpecPath, doc.Kind, opts)
	} else {
		entries, err = spec.Parse([]byte(query.Spec), doc.Kind, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load annotation spec: %w", err)
	}

	return operations.Annotate(ctx, doc, entries, operations.Options{OutputPath: query.OutputPath}, log)
}
