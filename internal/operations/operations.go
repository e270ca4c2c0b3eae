package operations

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/Epistemic-Technology/doc-commenter/internal/documents"
	"github.com/Epistemic-Technology/doc-commenter/internal/docx"
	"github.com/Epistemic-Technology/doc-commenter/internal/logger"
	"github.com/Epistemic-Technology/doc-commenter/internal/matcher"
	"github.com/Epistemic-Technology/doc-commenter/internal/pdf"
	"github.com/Epistemic-Technology/doc-commenter/models"
)

// Options controls a single annotation run.
type Options struct {
	// OutputPath defaults to <stem>-annotated<ext> next to the input.
	OutputPath string
	// Clock stamps comments and annotations. Defaults to time.Now.
	Clock func() time.Time
}

// Annotate applies every entry to the document and writes the annotated copy.
// Entries are processed in order; each is resolved against the text of the
// original document, narrowed by its occurrence selector and applied. Entries
// without matches are reported and skipped. The output is written only when
// all entries were processed.
//
// Parameters:
//   - ctx: Checked between entries for cancellation
//   - doc: The input document as read by documents.ReadDocument
//   - entries: Validated entries, see spec.Parse
//   - opts: Output path and clock
//   - log: Logger for per-entry progress
//
// Returns:
//   - result: The run report
//   - error: Any I/O, document or cancellation error
func Annotate(ctx context.Context, doc models.DocumentData, entries []models.Entry, opts Options, log logger.Logger) (*models.RunReport, error) {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	output := opts.OutputPath
	if output == "" {
		output = documents.DefaultOutputPath(doc.Path)
	}

	started := clock()
	result := &models.RunReport{
		RunID:        uuid.NewString(),
		DocumentPath: doc.Path,
		OutputPath:   output,
		Kind:         doc.Kind,
		InputDigest:  Digest(doc.Data),
		StartedAt:    started,
	}
	log.Info("Run %s: annotating %s (%s) with %d entries", result.RunID, doc.Path, doc.Kind, len(entries))

	var (
		data    []byte
		reports []models.EntryReport
		err     error
	)
	switch doc.Kind {
	case models.KindDOCX:
		data, reports, err = annotateDOCX(ctx, doc.Data, entries, clock, log)
	case models.KindPDF:
		data, reports, err = annotatePDF(ctx, doc.Data, entries, clock, log)
	default:
		err = fmt.Errorf("%w: %s", documents.ErrUnsupportedDocument, doc.Kind)
	}
	if err != nil {
		return nil, err
	}

	if err := documents.WriteFileAtomic(output, data); err != nil {
		return nil, err
	}

	result.Entries = reports
	result.OutputDigest = Digest(data)
	for _, r := range reports {
		result.Applied += r.Applied
		if r.Applied == 0 {
			result.Skipped++
		}
	}
	result.Duration = clock().Sub(started).String()
	log.Info("Run %s: applied %d annotations, skipped %d entries, wrote %s", result.RunID, result.Applied, result.Skipped, output)
	return result, nil
}

func newReport(i int, e models.Entry) models.EntryReport {
	r := models.EntryReport{Entry: i + 1, Mode: e.Target.Mode}
	switch {
	case e.Target.Text != nil:
		r.Target = fmt.Sprintf("%s %q", e.Target.Text.MatchType, e.Target.Text.Text)
		r.Occurrence = e.Target.Text.Occurrence.String()
	case e.Target.Position != nil:
		r.Target = fmt.Sprintf("page %d %s", e.Target.Position.Page, e.Target.Position.BBox)
		r.Occurrence = models.OccurrenceAll.String()
	}
	return r
}

func noMatchWarning(matches int, occ models.Occurrence) string {
	if matches == 0 {
		return "no matches"
	}
	return fmt.Sprintf("occurrence %s out of range (%d matches)", occ, matches)
}

func annotateDOCX(ctx context.Context, data []byte, entries []models.Entry, clock func() time.Time, log logger.Logger) ([]byte, []models.EntryReport, error) {
	doc, err := docx.Open(data, docx.WithClock(clock))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open document: %w", err)
	}
	units := doc.ParagraphTexts()
	log.Debug("Document has %d body paragraphs", len(units))

	reports := make([]models.EntryReport, 0, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		report := newReport(i, e)

		if e.Target.Text == nil {
			report.Warning = "only text targets apply to DOCX documents"
			log.Warn("Entry %d: %s", report.Entry, report.Warning)
			reports = append(reports, report)
			continue
		}

		rule, err := matcher.Compile(*e.Target.Text)
		if err != nil {
			return nil, nil, fmt.Errorf("entry %d: %w", report.Entry, err)
		}
		found := matcher.Resolve(rule, units)
		selected := matcher.Select(found, e.Target.Text.Occurrence)
		report.Matches = len(found)

		for _, p := range selected {
			if _, err := doc.AddComment(models.ParagraphMatch{Paragraph: p}, e.Comment); err != nil {
				return nil, nil, fmt.Errorf("entry %d: %w", report.Entry, err)
			}
			report.Applied++
			report.Paragraphs = append(report.Paragraphs, p)
		}

		if len(selected) == 0 {
			report.Warning = noMatchWarning(len(found), e.Target.Text.Occurrence)
			log.Warn("Entry %d (%s): %s", report.Entry, report.Target, report.Warning)
		} else {
			log.Info("Entry %d (%s): %d matches, commented paragraphs %v", report.Entry, report.Target, report.Matches, report.Paragraphs)
		}
		reports = append(reports, report)
	}

	out, err := doc.Bytes()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize document: %w", err)
	}
	return out, reports, nil
}

func annotatePDF(ctx context.Context, data []byte, entries []models.Entry, clock func() time.Time, log logger.Logger) ([]byte, []models.EntryReport, error) {
	doc, err := pdf.Open(data, pdf.WithClock(clock))
	if err != nil {
		return nil, nil, err
	}
	log.Debug("Document has %d pages", doc.PageCount())

	reports := make([]models.EntryReport, 0, len(entries))
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		report := newReport(i, e)

		var (
			found []models.RegionMatch
			occ   = models.OccurrenceAll
		)
		switch {
		case e.Target.Position != nil:
			pos := e.Target.Position
			if pos.Page <= doc.PageCount() {
				found = []models.RegionMatch{{Page: pos.Page, Rect: pos.BBox}}
			} else {
				report.Warning = fmt.Sprintf("page %d out of range (document has %d pages)", pos.Page, doc.PageCount())
			}
		case e.Target.Text != nil:
			rule, err := matcher.Compile(*e.Target.Text)
			if err != nil {
				return nil, nil, fmt.Errorf("entry %d: %w", report.Entry, err)
			}
			if found, err = doc.Find(rule); err != nil {
				return nil, nil, err
			}
			occ = e.Target.Text.Occurrence
		}

		selected := matcher.Select(found, occ)
		report.Matches = len(found)
		for _, region := range selected {
			if err := doc.AddHighlight(region, e.Comment); err != nil {
				return nil, nil, fmt.Errorf("entry %d: %w", report.Entry, err)
			}
			report.Applied++
			report.Regions = append(report.Regions, region)
		}

		if len(selected) == 0 {
			if report.Warning == "" {
				report.Warning = noMatchWarning(len(found), occ)
			}
			log.Warn("Entry %d (%s): %s", report.Entry, report.Target, report.Warning)
		} else {
			log.Info("Entry %d (%s): %d matches, %d highlighted", report.Entry, report.Target, report.Matches, report.Applied)
		}
		reports = append(reports, report)
	}

	out, err := doc.Bytes()
	if err != nil {
		return nil, nil, err
	}
	return out, reports, nil
}

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// WriteReport writes r as indented JSON to path.
func WriteReport(path string, r *models.RunReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return documents.WriteFileAtomic(path, append(data, '\n'))
}
