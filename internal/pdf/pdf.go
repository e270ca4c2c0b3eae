// Package pdf finds text on PDF pages and adds highlight annotations with
// reviewer notes.
package pdf

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/Epistemic-Technology/doc-commenter/internal/matcher"
	"github.com/Epistemic-Technology/doc-commenter/models"
)

// ErrPageOutOfRange is returned for page numbers outside 1..PageCount.
var ErrPageOutOfRange = errors.New("page out of range")

// Popup geometry relative to the top-right corner of the highlight.
const (
	popupWidth  = 180
	popupHeight = 120
)

// flagPrint is annotation flag bit 3.
const flagPrint = 4

var highlightColor = []float64{1, 1, 0}

// Option configures a Document.
type Option func(*Document)

// WithClock sets the time source used for annotation dates.
func WithClock(now func() time.Time) Option {
	return func(d *Document) {
		d.now = now
	}
}

// Document is a parsed PDF with highlights queued on its pages.
type Document struct {
	ctx     *model.Context
	data    []byte
	lines   []Line
	scanned bool
	added   int
	now     func() time.Time
}

func configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Open parses and validates a PDF held in memory.
func Open(data []byte, opts ...Option) (*Document, error) {
	if len(data) == 0 {
		return nil, errors.New("empty PDF data")
	}
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), configuration())
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	d := &Document{ctx: ctx, data: data, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// Scanned reports whether the page text has been extracted.
func (d *Document) Scanned() bool {
	return d.scanned
}

// Added returns the number of highlights added so far.
func (d *Document) Added() int {
	return d.added
}

// Lines returns the text lines of the original document. Text is extracted
// on first use and cached, so highlights added later are never matched.
func (d *Document) Lines() ([]Line, error) {
	if d.scanned {
		return d.lines, nil
	}
	lines, err := ExtractLines(d.data)
	if err != nil {
		return nil, err
	}
	d.lines, d.scanned = lines, true
	return lines, nil
}

// Find returns every match of r, in page order and then reading order.
func (d *Document) Find(r *matcher.Rule) ([]models.RegionMatch, error) {
	lines, err := d.Lines()
	if err != nil {
		return nil, err
	}

	var matches []models.RegionMatch
	for _, line := range lines {
		for _, box := range line.Find(r) {
			matches = append(matches, models.RegionMatch{Page: line.Page, Rect: box, Text: line.Text})
		}
	}
	return matches, nil
}

// AddHighlight places a highlight over m.Rect on page m.Page with a popup
// note holding the comment.
func (d *Document) AddHighlight(m models.RegionMatch, c models.Comment) error {
	if m.Page < 1 || m.Page > d.ctx.PageCount {
		return fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, m.Page, d.ctx.PageCount)
	}

	pageDict, pageRef, inherited, err := d.ctx.PageDict(m.Page, false)
	if err != nil {
		return fmt.Errorf("failed to load page %d: %w", m.Page, err)
	}
	if pageDict == nil {
		return fmt.Errorf("%w: page %d missing", ErrPageOutOfRange, m.Page)
	}

	var media *types.Rectangle
	if inherited != nil {
		media = inherited.MediaBox
	}
	llx, lly, urx, ury := toUserSpace(m.Rect.Normalize(), media)

	date := types.StringLiteral(types.DateString(d.now()))
	highlight := types.Dict{
		"Type":         types.Name("Annot"),
		"Subtype":      types.Name("Highlight"),
		"Rect":         types.NewNumberArray(llx, lly, urx, ury),
		"QuadPoints":   types.NewNumberArray(llx, ury, urx, ury, llx, lly, urx, lly),
		"C":            types.NewNumberArray(highlightColor...),
		"Contents":     encodeText(c.Author + ": " + c.Text),
		"T":            encodeText(c.Author),
		"Subj":         encodeText("Highlight"),
		"M":            date,
		"CreationDate": date,
		"NM":           types.StringLiteral(uuid.NewString()),
		"F":            types.Integer(flagPrint),
	}
	if pageRef != nil {
		highlight["P"] = *pageRef
	}
	highlightRef, err := d.ctx.IndRefForNewObject(highlight)
	if err != nil {
		return fmt.Errorf("failed to add highlight: %w", err)
	}

	popup := types.Dict{
		"Type":    types.Name("Annot"),
		"Subtype": types.Name("Popup"),
		"Rect":    types.NewNumberArray(urx, ury-popupHeight, urx+popupWidth, ury),
		"Parent":  *highlightRef,
		"Open":    types.Boolean(false),
	}
	popupRef, err := d.ctx.IndRefForNewObject(popup)
	if err != nil {
		return fmt.Errorf("failed to add popup: %w", err)
	}
	highlight["Popup"] = *popupRef

	var annots types.Array
	if obj, ok := pageDict.Find("Annots"); ok {
		if annots, err = d.ctx.DereferenceArray(obj); err != nil {
			return fmt.Errorf("failed to read annotations of page %d: %w", m.Page, err)
		}
	}
	annots = append(annots, *highlightRef, *popupRef)
	pageDict.Update("Annots", annots)

	d.added++
	return nil
}

// Bytes serializes the document with all added highlights.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := api.WriteContext(d.ctx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// toUserSpace converts a top-left rectangle to PDF user space coordinates.
func toUserSpace(box models.BBox, media *types.Rectangle) (llx, lly, urx, ury float64) {
	x0, top := letterBox[0], letterBox[3]
	if media != nil {
		x0, top = media.LL.X, media.UR.Y
	}
	return x0 + box[0], top - box[3], x0 + box[2], top - box[1]
}

// fromUserSpace is the inverse of toUserSpace.
func fromUserSpace(llx, lly, urx, ury float64, media *types.Rectangle) models.BBox {
	x0, top := letterBox[0], letterBox[3]
	if media != nil {
		x0, top = media.LL.X, media.UR.Y
	}
	return models.BBox{llx - x0, top - ury, urx - x0, top - lly}.Normalize()
}

// encodeText encodes s as a UTF-16BE text string with byte order mark.
func encodeText(s string) types.HexLiteral {
	units := utf16.Encode([]rune(s))
	b := make([]byte, 2+2*len(units))
	b[0], b[1] = 0xFE, 0xFF
	for i, u := range units {
		binary.BigEndian.PutUint16(b[2+2*i:], u)
	}
	return types.HexLiteral(hex.EncodeToString(b))
}

// decodeText decodes a PDF text string, accepting both string forms.
func decodeText(obj types.Object) string {
	var raw []byte
	switch v := obj.(type) {
	case types.HexLiteral:
		b, err := hex.DecodeString(string(v))
		if err != nil {
			return ""
		}
		raw = b
	case types.StringLiteral:
		raw = []byte(v)
	default:
		return ""
	}

	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		units := make([]uint16, 0, (len(raw)-2)/2)
		for i := 2; i+1 < len(raw); i += 2 {
			units = append(units, binary.BigEndian.Uint16(raw[i:]))
		}
		return string(utf16.Decode(units))
	}
	return string(raw)
}
