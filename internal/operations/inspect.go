package operations

import (
	"fmt"

	"github.com/Epistemic-Technology/doc-commenter/internal/documents"
	"github.com/Epistemic-Technology/doc-commenter/internal/docx"
	"github.com/Epistemic-Technology/doc-commenter/internal/pdf"
	"github.com/Epistemic-Technology/doc-commenter/models"
)

// Inspect returns the text units of a document exactly as the target
// resolver sees them: body paragraphs for DOCX, text lines for PDF.
func Inspect(doc models.DocumentData) (*models.DocumentOutline, error) {
	outline := &models.DocumentOutline{Path: doc.Path, Kind: doc.Kind}

	switch doc.Kind {
	case models.KindDOCX:
		d, err := docx.Open(doc.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to open document: %w", err)
		}
		for _, p := range d.Paragraphs() {
			outline.Units = append(outline.Units, models.TextUnit{Index: p.Index, Text: p.Text})
		}

	case models.KindPDF:
		d, err := pdf.Open(doc.Data)
		if err != nil {
			return nil, err
		}
		lines, err := d.Lines()
		if err != nil {
			return nil, err
		}
		outline.PageCount = d.PageCount()
		for i, line := range lines {
			box := line.Box()
			outline.Units = append(outline.Units, models.TextUnit{Index: i, Page: line.Page, Box: &box, Text: line.Text})
		}

	default:
		return nil, fmt.Errorf("%w: %s", documents.ErrUnsupportedDocument, doc.Kind)
	}
	return outline, nil
}
