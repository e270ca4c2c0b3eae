package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DocumentKind identifies the document model an annotation run works on.
type DocumentKind string

const (
	// KindDOCX is a paragraph-oriented word processing document.
	KindDOCX DocumentKind = "docx"
	// KindPDF is a page-oriented portable document.
	KindPDF DocumentKind = "pdf"
)

type TargetMode string

const (
	ModeText     TargetMode = "text"
	ModePosition TargetMode = "position"
)

type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchRegex MatchType = "regex"
)

// Occurrence selects which of the matches of a target receive the comment.
// The zero value selects the first match.
type Occurrence struct {
	All   bool
	Index int // 1-based; 0 means "first"
}

var (
	OccurrenceFirst = Occurrence{Index: 1}
	OccurrenceAll   = Occurrence{All: true}
)

// Nth returns the 1-based index selected by o. It returns 0 for "all".
func (o Occurrence) Nth() int {
	if o.All {
		return 0
	}
	if o.Index == 0 {
		return 1
	}
	return o.Index
}

func (o Occurrence) String() string {
	switch {
	case o.All:
		return "all"
	case o.Nth() == 1:
		return "first"
	default:
		return strconv.Itoa(o.Index)
	}
}

func (o Occurrence) MarshalJSON() ([]byte, error) {
	if o.All || o.Nth() == 1 {
		return json.Marshal(o.String())
	}
	return json.Marshal(o.Index)
}

type TextTarget struct {
	Text          string     `json:"text"`
	MatchType     MatchType  `json:"match_type"`
	CaseSensitive bool       `json:"case_sensitive"`
	WholeWord     bool       `json:"whole_word"`
	Occurrence    Occurrence `json:"occurrence"`
}

// BBox is a rectangle [x1, y1, x2, y2] in page coordinates with the origin
// in the top-left corner of the page and y growing downwards.
type BBox [4]float64

// Normalize returns b with x1 <= x2 and y1 <= y2.
func (b BBox) Normalize() BBox {
	if b[0] > b[2] {
		b[0], b[2] = b[2], b[0]
	}
	if b[1] > b[3] {
		b[1], b[3] = b[3], b[1]
	}
	return b
}

func (b BBox) Width() float64  { return b[2] - b[0] }
func (b BBox) Height() float64 { return b[3] - b[1] }

// Union returns the smallest box containing both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{min(b[0], o[0]), min(b[1], o[1]), max(b[2], o[2]), max(b[3], o[3])}
}

func (b BBox) String() string {
	return fmt.Sprintf("[%.2f %.2f %.2f %.2f]", b[0], b[1], b[2], b[3])
}

type PositionTarget struct {
	Page int  `json:"page"`
	BBox BBox `json:"bbox"`
}

// Target is either a text rule or a fixed position. Exactly one of Text and
// Position is set, according to Mode.
type Target struct {
	Mode     TargetMode      `json:"mode"`
	Text     *TextTarget     `json:"text,omitempty"`
	Position *PositionTarget `json:"position,omitempty"`
}

type Comment struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// Entry is one rule of an annotation specification.
type Entry struct {
	Target  Target  `json:"target"`
	Comment Comment `json:"comment"`
}

// ParagraphMatch refers to a whole body paragraph (0-based).
type ParagraphMatch struct {
	Paragraph int    `json:"paragraph"`
	Text      string `json:"text,omitempty"`
}

// RegionMatch is a rectangle on a page (1-based).
type RegionMatch struct {
	Page int    `json:"page"`
	Rect BBox   `json:"rect"`
	Text string `json:"text,omitempty"`
}

// DocumentData holds the raw bytes of an input document.
type DocumentData struct {
	Path string
	Data []byte
	Kind DocumentKind
}

// EntryReport describes what happened to one spec entry.
type EntryReport struct {
	Entry      int           `json:"entry"` // 1-based
	Mode       TargetMode    `json:"mode"`
	Target     string        `json:"target"`
	Occurrence string        `json:"occurrence"`
	Matches    int           `json:"matches"`
	Applied    int           `json:"applied"`
	Paragraphs []int         `json:"paragraphs,omitempty"`
	Regions    []RegionMatch `json:"regions,omitempty"`
	Warning    string        `json:"warning,omitempty"`
}

// RunReport is the outcome of one annotation run.
type RunReport struct {
	RunID        string        `json:"run_id"`
	DocumentPath string        `json:"document_path"`
	OutputPath   string        `json:"output_path"`
	Kind         DocumentKind  `json:"kind"`
	InputDigest  string        `json:"input_blake3"`
	OutputDigest string        `json:"output_blake3"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     string        `json:"duration"`
	Applied      int           `json:"applied"`
	Skipped      int           `json:"skipped"`
	Entries      []EntryReport `json:"entries"`
}

// RunInfo is the summary of a stored run.
type RunInfo struct {
	RunID        string       `json:"run_id"`
	DocumentPath string       `json:"document_path"`
	Kind         DocumentKind `json:"kind"`
	StartedAt    string       `json:"started_at"` // RFC 3339
	Applied      int          `json:"applied"`
	Entries      int          `json:"entries"`
}

// TextUnit is one searchable unit of a document: a body paragraph of a DOCX
// or a text line of a PDF page.
type TextUnit struct {
	Index int    `json:"index"`          // 0-based paragraph or line index
	Page  int    `json:"page,omitempty"` // PDF only, 1-based
	Box   *BBox  `json:"bbox,omitempty"` // PDF only
	Text  string `json:"text"`
}

// DocumentOutline lists the text units targets are matched against.
type DocumentOutline struct {
	Path      string       `json:"path"`
	Kind      DocumentKind `json:"kind"`
	PageCount int          `json:"page_count,omitempty"`
	Units     []TextUnit   `json:"units"`
}

// Info summarizes r.
func (r *RunReport) Info() RunInfo {
	return RunInfo{
		RunID:        r.RunID,
		DocumentPath: r.DocumentPath,
		Kind:         r.Kind,
		StartedAt:    r.StartedAt.Format(time.RFC3339),
		Applied:      r.Applied,
		Entries:      len(r.Entries),
	}
}
