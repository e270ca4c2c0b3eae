package pdf

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strings"

	lpdf "github.com/ledongthuc/pdf"

	"github.com/Epistemic-Technology/doc-commenter/internal/matcher"
	"github.com/Epistemic-Technology/doc-commenter/models"
)

// Approximate glyph extents relative to the font size, measured from the
// baseline. Font descriptors are not consulted.
const (
	ascent       = 0.8
	descent      = 0.2
	spaceGap     = 0.15
	baselineTol  = 0.5
	defaultAdv   = 0.5
	maxPageDepth = 32
)

var letterBox = models.BBox{0, 0, 612, 792}

type glyph struct {
	text string
	box  models.BBox // top-left origin
}

// Line is a run of glyphs sharing a baseline on one page.
type Line struct {
	Page     int
	Text     string
	Baseline float64 // distance from the top of the page
	glyphs   []glyph
}

// Box returns the union of the glyph boxes of l.
func (l Line) Box() models.BBox {
	if len(l.glyphs) == 0 {
		return models.BBox{}
	}
	box := l.glyphs[0].box
	for _, g := range l.glyphs[1:] {
		box = box.Union(g.box)
	}
	return box
}

// Find returns one rectangle per match of r in the line. Each glyph is
// normalized on its own so that match offsets map back to glyphs.
func (l Line) Find(r *matcher.Rule) []models.BBox {
	var sb strings.Builder
	var owner []int
	for i, g := range l.glyphs {
		n := r.Normalize(g.text)
		sb.WriteString(n)
		for range len(n) {
			owner = append(owner, i)
		}
	}

	var boxes []models.BBox
	for _, sp := range r.FindAll(sb.String()) {
		if sp.End <= sp.Start || sp.End > len(owner) {
			continue
		}
		box := l.glyphs[owner[sp.Start]].box
		for _, gi := range owner[sp.Start:sp.End] {
			box = box.Union(l.glyphs[gi].box)
		}
		boxes = append(boxes, box)
	}
	return boxes
}

// ExtractLines reads the positioned text of every page and groups it into
// lines ordered by page, then top to bottom, then left to right.
func ExtractLines(data []byte) (lines []Line, err error) {
	// The content interpreter panics on some malformed operators.
	defer func() {
		if r := recover(); r != nil {
			lines, err = nil, fmt.Errorf("failed to extract text: %v", r)
		}
	}()

	reader, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF for text extraction: %w", err)
	}

	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		lines = append(lines, pageLines(pageNum, page.Content().Text, mediaBox(page))...)
	}
	return lines, nil
}

// mediaBox returns the media box of page, following the page tree for
// inherited values.
func mediaBox(page lpdf.Page) models.BBox {
	v := page.V
	for range maxPageDepth {
		if v.IsNull() {
			break
		}
		if box := v.Key("MediaBox"); box.Len() == 4 {
			return models.BBox{
				box.Index(0).Float64(), box.Index(1).Float64(),
				box.Index(2).Float64(), box.Index(3).Float64(),
			}.Normalize()
		}
		v = v.Key("Parent")
	}
	return letterBox
}

func pageLines(pageNum int, texts []lpdf.Text, media models.BBox) []Line {
	type pending struct {
		baseline float64
		size     float64
		glyphs   []glyph
	}
	var groups []*pending

	for _, t := range texts {
		if t.S == "" || t.S == "\n" {
			continue
		}
		size := math.Abs(t.FontSize)
		if size == 0 {
			size = 1
		}
		width := t.W
		if width <= 0 {
			width = defaultAdv * size * float64(len([]rune(t.S)))
		}

		x := t.X - media[0]
		baseline := media[3] - t.Y
		g := glyph{
			text: t.S,
			box:  models.BBox{x, baseline - ascent*size, x + width, baseline + descent*size},
		}

		var group *pending
		for _, p := range groups {
			if math.Abs(p.baseline-baseline) <= baselineTol*min(p.size, size) {
				group = p
				break
			}
		}
		if group == nil {
			group = &pending{baseline: baseline, size: size}
			groups = append(groups, group)
		}
		group.glyphs = append(group.glyphs, g)
	}

	lines := make([]Line, 0, len(groups))
	for _, p := range groups {
		slices.SortStableFunc(p.glyphs, func(a, b glyph) int {
			return cmpFloat(a.box[0], b.box[0])
		})
		glyphs := withSpaces(p.glyphs, p.size)

		var sb strings.Builder
		for _, g := range glyphs {
			sb.WriteString(g.text)
		}
		lines = append(lines, Line{Page: pageNum, Text: sb.String(), Baseline: p.baseline, glyphs: glyphs})
	}

	slices.SortStableFunc(lines, func(a, b Line) int {
		if c := cmpFloat(a.Baseline, b.Baseline); c != 0 {
			return c
		}
		return cmpFloat(a.Box()[0], b.Box()[0])
	})
	return lines
}

// withSpaces inserts a space glyph wherever two glyphs are separated by a
// visible gap but the content stream did not draw a space.
func withSpaces(glyphs []glyph, size float64) []glyph {
	out := make([]glyph, 0, len(glyphs))
	for i, g := range glyphs {
		if i > 0 {
			prev := out[len(out)-1]
			gap := g.box[0] - prev.box[2]
			if gap > spaceGap*size && !isSpace(prev.text) && !isSpace(g.text) {
				out = append(out, glyph{
					text: " ",
					box: models.BBox{
						prev.box[2], min(prev.box[1], g.box[1]),
						g.box[0], max(prev.box[3], g.box[3]),
					},
				})
			}
		}
		out = append(out, g)
	}
	return out
}

func isSpace(s string) bool {
	return strings.TrimSpace(s) == ""
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
