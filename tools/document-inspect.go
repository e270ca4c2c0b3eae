package tools

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Epistemic-Technology/doc-commenter/internal/documents"
	"github.com/Epistemic-Technology/doc-commenter/internal/logger"
	"github.com/Epistemic-Technology/doc-commenter/internal/operations"
	"github.com/Epistemic-Technology/doc-commenter/models"
)

type DocumentInspectQuery struct {
	DocumentPath string `json:"document_path"`
}

type DocumentInspectResponse struct {
	Path      string            `json:"path"`
	Kind      string            `json:"kind"`
	PageCount int               `json:"page_count,omitempty"`
	Units     []models.TextUnit `json:"units"`
}

func DocumentInspectTool() *mcp.Tool {
	inputschema, err := jsonschema.For[DocumentInspectQuery](nil)
	if err != nil {
		panic(err)
	}
	return &mcp.Tool{
		Name:        "document-inspect",
		Description: "List the text a .docx or .pdf file is matched against when annotating: body paragraphs with their index for DOCX, text lines with page number and bounding box (points, origin top-left) for PDF.",
		InputSchema: inputschema,
	}
}

func DocumentInspectToolHandler(ctx context.Context, req *mcp.CallToolRequest, query DocumentInspectQuery, log logger.Logger) (*mcp.CallToolResult, *DocumentInspectResponse, error) {
	log.Info("document-inspect tool called")

	doc, err := documents.ReadDocument(query.DocumentPath)
	if err != nil {
		log.Error("document-inspect tool failed: %v", err)
		return nil, nil, err
	}
	outline, err := operations.Inspect(doc)
	if err != nil {
		log.Error("document-inspect tool failed: %v", err)
		return nil, nil, err
	}
	log.Info("Inspected %s: %d text units", doc.Path, len(outline.Units))
	return nil, &DocumentInspectResponse{
		Path:      outline.Path,
		Kind:      string(outline.Kind),
		PageCount: outline.PageCount,
		Units:     outline.Units,
	}, nil
}
