// Package spec loads annotation specifications from JSON and validates them
// against the kind of document they will be applied to.
package spec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Epistemic-Technology/doc-commenter/internal/matcher"
	"github.com/Epistemic-Technology/doc-commenter/models"
)

const DefaultAuthor = "Reviewer"

var (
	// ErrMalformed is returned when the input is not valid JSON or is neither
	// an object nor an array of objects.
	ErrMalformed = errors.New("malformed annotation spec")
	// ErrInvalid wraps every ValidationError.
	ErrInvalid = errors.New("invalid annotation spec")
)

// ValidationError describes one problem with one entry.
type ValidationError struct {
	Entry   int // 1-based
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("entry %d: %s: %s", e.Entry, e.Field, e.Message)
	}
	return fmt.Sprintf("entry %d: %s", e.Entry, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalid
}

// Options controls defaults applied while decoding.
type Options struct {
	// DefaultAuthor is used when an entry has no comment author.
	DefaultAuthor string
}

type rawEntry struct {
	Target  rawTarget  `json:"target"`
	Comment rawComment `json:"comment"`
}

type rawTarget struct {
	Mode          string          `json:"mode"`
	Text          string          `json:"text"`
	MatchType     string          `json:"match_type"`
	CaseSensitive *bool           `json:"case_sensitive"`
	WholeWord     *bool           `json:"whole_word"`
	Occurrence    json.RawMessage `json:"occurrence"`
	PDF           *rawPosition    `json:"pdf"`
	Page          *int            `json:"page"`
	BBox          []float64       `json:"bbox"`
}

type rawPosition struct {
	Page *int      `json:"page"`
	BBox []float64 `json:"bbox"`
}

type rawComment struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

// Load reads and validates the spec at path.
func Load(path string, kind models.DocumentKind, opts Options) ([]models.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotation spec: %w", err)
	}
	return Parse(data, kind, opts)
}

// Parse decodes data, which holds either one entry object or an array of
// entries, and validates every entry for a document of the given kind. All
// validation problems are reported together; no entry is returned unless all
// of them are valid.
func Parse(data []byte, kind models.DocumentKind, opts Options) ([]models.Entry, error) {
	items, err := splitEntries(data)
	if err != nil {
		return nil, err
	}

	schema, err := resolvedEntrySchema()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entry schema: %w", err)
	}

	var errs []error
	entries := make([]models.Entry, 0, len(items))
	for i, item := range items {
		var instance any
		if err := json.Unmarshal(item, &instance); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrMalformed, i+1, err)
		}
		if err := schema.Validate(instance); err != nil {
			errs = append(errs, &ValidationError{Entry: i + 1, Message: err.Error()})
			continue
		}

		var raw rawEntry
		if err := json.Unmarshal(item, &raw); err != nil {
			errs = append(errs, &ValidationError{Entry: i + 1, Message: err.Error()})
			continue
		}
		entry, entryErrs := decodeEntry(i+1, raw, kind, opts)
		if len(entryErrs) > 0 {
			errs = append(errs, entryErrs...)
			continue
		}
		entries = append(entries, entry)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return entries, nil
}

func splitEntries(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	switch trimmed[0] {
	case '{':
		var obj json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return []json.RawMessage{obj}, nil
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("%w: JSON must be an object or a list of objects", ErrMalformed)
	}
}

func decodeEntry(n int, raw rawEntry, kind models.DocumentKind, opts Options) (models.Entry, []error) {
	var errs []error
	fail := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Entry: n, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	author := raw.Comment.Author
	if author == "" {
		author = opts.DefaultAuthor
	}
	if author == "" {
		author = DefaultAuthor
	}
	entry := models.Entry{
		Comment: models.Comment{Text: raw.Comment.Text, Author: author},
	}

	mode := models.TargetMode(raw.Target.Mode)
	if mode == "" {
		mode = models.ModeText
	}
	entry.Target.Mode = mode

	switch mode {
	case models.ModePosition:
		if kind != models.KindPDF {
			fail("target.mode", "position targets are only supported for PDF documents")
			return entry, errs
		}
		pos, posErrs := decodePosition(n, raw.Target)
		if len(posErrs) > 0 {
			return entry, posErrs
		}
		entry.Target.Position = pos

	case models.ModeText:
		t := raw.Target
		if strings.TrimSpace(t.Text) == "" {
			fail("target.text", "text is required for text targets")
		}

		matchType := models.MatchType(t.MatchType)
		if matchType == "" {
			matchType = models.MatchExact
		}
		if matchType == models.MatchRegex && kind == models.KindPDF {
			fail("target.match_type", "regex matching is only supported for DOCX documents")
		}

		// Exact matching in paragraph documents is whole-word unless told otherwise.
		wholeWord := matchType == models.MatchExact && kind == models.KindDOCX
		if t.WholeWord != nil {
			wholeWord = *t.WholeWord
			if wholeWord && kind == models.KindPDF {
				fail("target.whole_word", "whole-word matching is only supported for DOCX documents")
			}
			if wholeWord && matchType == models.MatchRegex {
				fail("target.whole_word", "whole_word cannot be combined with regex matching; put boundaries in the pattern")
			}
		}

		occ, err := decodeOccurrence(t.Occurrence)
		if err != nil {
			fail("target.occurrence", "%v", err)
		}

		text := &models.TextTarget{
			Text:       t.Text,
			MatchType:  matchType,
			WholeWord:  wholeWord,
			Occurrence: occ,
		}
		if t.CaseSensitive != nil {
			text.CaseSensitive = *t.CaseSensitive
		}
		entry.Target.Text = text

		if len(errs) == 0 {
			if _, err := matcher.Compile(*text); err != nil {
				fail("target.text", "%v", err)
			}
		}

	default:
		fail("target.mode", "unknown mode %q", mode)
	}

	return entry, errs
}

func decodePosition(n int, t rawTarget) (*models.PositionTarget, []error) {
	page, bbox := t.Page, t.BBox
	if t.PDF != nil {
		if t.PDF.Page != nil {
			page = t.PDF.Page
		}
		if t.PDF.BBox != nil {
			bbox = t.PDF.BBox
		}
	}

	var errs []error
	if page == nil {
		errs = append(errs, &ValidationError{Entry: n, Field: "target.pdf.page", Message: "page is required for position targets"})
	} else if *page < 1 {
		errs = append(errs, &ValidationError{Entry: n, Field: "target.pdf.page", Message: fmt.Sprintf("page must be >= 1, got %d", *page)})
	}

	var box models.BBox
	if len(bbox) != 4 {
		errs = append(errs, &ValidationError{Entry: n, Field: "target.pdf.bbox", Message: "bbox must hold exactly four numbers [x1, y1, x2, y2]"})
	} else {
		copy(box[:], bbox)
		box = box.Normalize()
		if box.Width() <= 0 || box.Height() <= 0 {
			errs = append(errs, &ValidationError{Entry: n, Field: "target.pdf.bbox", Message: "bbox must have a positive area"})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return &models.PositionTarget{Page: *page, BBox: box}, nil
}

// decodeOccurrence accepts "first", "all", a positive integer, or a string
// holding a positive integer.
func decodeOccurrence(raw json.RawMessage) (models.Occurrence, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return models.OccurrenceFirst, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "first":
			return models.OccurrenceFirst, nil
		case "all":
			return models.OccurrenceAll, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return models.Occurrence{}, fmt.Errorf("must be \"first\", \"all\" or a positive integer, got %q", s)
		}
		return indexOccurrence(float64(n))
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return models.Occurrence{}, fmt.Errorf("must be \"first\", \"all\" or a positive integer, got %s", raw)
	}
	return indexOccurrence(f)
}

func indexOccurrence(f float64) (models.Occurrence, error) {
	if f != math.Trunc(f) || f < 1 || f > math.MaxInt32 {
		return models.Occurrence{}, fmt.Errorf("must be a positive integer, got %v", f)
	}
	return models.Occurrence{Index: int(f)}, nil
}
