package pdf

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/Epistemic-Technology/doc-commenter/models"
)

// Highlight is a highlight annotation read back from a document.
type Highlight struct {
	Page     int
	Rect     models.BBox // top-left origin
	UserRect [4]float64  // as stored, in user space
	Author   string
	Contents string
	HasPopup bool
}

// ListHighlights returns the highlight annotations of every page.
func ListHighlights(data []byte) ([]Highlight, error) {
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), configuration())
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	var out []Highlight
	for pageNum := 1; pageNum <= ctx.PageCount; pageNum++ {
		pageDict, _, inherited, err := ctx.PageDict(pageNum, false)
		if err != nil {
			return nil, fmt.Errorf("failed to load page %d: %w", pageNum, err)
		}
		obj, ok := pageDict.Find("Annots")
		if !ok {
			continue
		}
		annots, err := ctx.DereferenceArray(obj)
		if err != nil {
			return nil, fmt.Errorf("failed to read annotations of page %d: %w", pageNum, err)
		}

		var media *types.Rectangle
		if inherited != nil {
			media = inherited.MediaBox
		}
		for _, a := range annots {
			annot, err := ctx.DereferenceDict(a)
			if err != nil || annot == nil {
				continue
			}
			if subtype := annot.NameEntry("Subtype"); subtype == nil || *subtype != "Highlight" {
				continue
			}
			h := Highlight{Page: pageNum}
			if rect, err := ctx.DereferenceArray(annot["Rect"]); err == nil && len(rect) == 4 {
				h.UserRect = [4]float64{number(rect[0]), number(rect[1]), number(rect[2]), number(rect[3])}
				h.Rect = fromUserSpace(h.UserRect[0], h.UserRect[1], h.UserRect[2], h.UserRect[3], media)
			}
			h.Author = decodeText(annot["T"])
			h.Contents = decodeText(annot["Contents"])
			_, h.HasPopup = annot.Find("Popup")
			out = append(out, h)
		}
	}
	return out, nil
}

func number(o types.Object) float64 {
	switch v := o.(type) {
	case types.Float:
		return float64(v)
	case types.Integer:
		return float64(v)
	}
	return 0
}
