// Package docx reads body paragraphs from word processing packages and
// attaches reviewer comments to them.
//
// The main document part is never re-serialized. Comment range markers are
// spliced into the original bytes at offsets recorded while scanning, so
// every construct the package does not understand survives untouched.
package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/Epistemic-Technology/doc-commenter/models"
)

const (
	documentPart     = "word/document.xml"
	defaultComments  = "word/comments.xml"
	relsPart         = "word/_rels/document.xml.rels"
	contentTypesPart = "[Content_Types].xml"

	relTypeComments       = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/comments"
	relTypeCommentsStrict = "http://purl.oclc.org/ooxml/officeDocument/relationships/comments"
	nsRelationships       = "http://schemas.openxmlformats.org/package/2006/relationships"
	contentTypeComments   = "application/vnd.openxmlformats-officedocument.wordprocessingml.comments+xml"

	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\r\n"
)

var (
	// ErrNotDocx is returned when the package has no main document part.
	ErrNotDocx = errors.New("not a word processing document")
	// ErrNoAnchor is returned when a paragraph cannot carry a comment range.
	ErrNoAnchor = errors.New("paragraph cannot hold a comment")

	commentExpr      = xpath.MustCompile("//*[local-name()='comment']")
	relationshipExpr = xpath.MustCompile("//*[local-name()='Relationship']")
	overrideExpr     = xpath.MustCompile("//*[local-name()='Override']")
	textExpr         = xpath.MustCompile(".//*[local-name()='t']")
	paragraphExpr    = xpath.MustCompile("./*[local-name()='p']")
	rootExpr         = xpath.MustCompile("/*")
)

type part struct {
	header zip.FileHeader
	data   []byte
}

// ExistingComment is a comment already present in the comments part.
type ExistingComment struct {
	ID     int
	Author string
	Date   string
	Text   string
}

type pendingComment struct {
	id        int
	paragraph int
	comment   models.Comment
	date      time.Time
}

// Option configures a Document.
type Option func(*Document)

// WithClock sets the time source used for comment dates.
func WithClock(now func() time.Time) Option {
	return func(d *Document) {
		d.now = now
	}
}

// Document is an opened package with comments queued for writing.
type Document struct {
	parts      []*part
	index      map[string]*part
	scan       *scanResult
	commentsAt string
	existing   []ExistingComment
	pending    []pendingComment
	nextID     int
	now        func() time.Time
}

// Open reads a package from memory.
func Open(data []byte, opts ...Option) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open package: %w", err)
	}

	d := &Document{
		index: make(map[string]*part),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		p := &part{header: f.FileHeader, data: content}
		d.parts = append(d.parts, p)
		d.index[f.Name] = p
	}

	body, ok := d.index[documentPart]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrNotDocx, documentPart)
	}
	if d.scan, err = scanDocument(body.data); err != nil {
		return nil, err
	}

	if d.commentsAt, err = d.locateComments(); err != nil {
		return nil, err
	}
	maxID := d.scan.maxID
	if p, ok := d.index[d.commentsAt]; ok {
		if d.existing, err = readComments(p.data); err != nil {
			return nil, err
		}
		for _, c := range d.existing {
			maxID = max(maxID, c.ID)
		}
	}
	d.nextID = maxID + 1

	return d, nil
}

// Paragraphs returns the body paragraphs in document order.
func (d *Document) Paragraphs() []Paragraph {
	return d.scan.paragraphs
}

// ParagraphTexts returns the text of each body paragraph, indexed like
// Paragraphs.
func (d *Document) ParagraphTexts() []string {
	texts := make([]string, len(d.scan.paragraphs))
	for i, p := range d.scan.paragraphs {
		texts[i] = p.Text
	}
	return texts
}

// Comments returns the comments that were in the package when it was opened.
func (d *Document) Comments() []ExistingComment {
	return d.existing
}

// Pending returns the number of comments queued by AddComment.
func (d *Document) Pending() int {
	return len(d.pending)
}

// AddComment anchors c to the whole paragraph m.Paragraph. The comment is
// written when Bytes is called.
func (d *Document) AddComment(m models.ParagraphMatch, c models.Comment) (int, error) {
	if m.Paragraph < 0 || m.Paragraph >= len(d.scan.paragraphs) {
		return 0, fmt.Errorf("paragraph %d out of range (document has %d)", m.Paragraph, len(d.scan.paragraphs))
	}
	if d.scan.paragraphs[m.Paragraph].anchorEnd < 0 {
		return 0, fmt.Errorf("%w: paragraph %d is empty", ErrNoAnchor, m.Paragraph)
	}

	id := d.nextID
	d.nextID++
	d.pending = append(d.pending, pendingComment{
		id:        id,
		paragraph: m.Paragraph,
		comment:   c,
		date:      d.now().UTC(),
	})
	return id, nil
}

// Bytes serializes the package with all queued comments. Parts other than the
// main document, the comments part, the document relationships and the
// content types are copied unchanged.
func (d *Document) Bytes() ([]byte, error) {
	if len(d.pending) == 0 {
		return d.write(nil)
	}

	replaced := map[string][]byte{
		documentPart: d.spliceDocument(),
	}

	comments, err := d.commentsPart()
	if err != nil {
		return nil, err
	}
	replaced[d.commentsAt] = comments

	rels, err := d.relationshipsPart()
	if err != nil {
		return nil, err
	}
	if rels != nil {
		replaced[relsPart] = rels
	}

	types, err := d.contentTypesPart()
	if err != nil {
		return nil, err
	}
	if types != nil {
		replaced[contentTypesPart] = types
	}

	return d.write(replaced)
}

func (d *Document) write(replaced map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	written := make(map[string]bool, len(d.parts))
	emit := func(header zip.FileHeader, data []byte) error {
		fh := &zip.FileHeader{
			Name:     header.Name,
			Comment:  header.Comment,
			Method:   header.Method,
			Modified: header.Modified,
		}
		w, err := zw.CreateHeader(fh)
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", header.Name, err)
		}
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write %s: %w", header.Name, err)
		}
		written[header.Name] = true
		return nil
	}

	for _, p := range d.parts {
		data := p.data
		if r, ok := replaced[p.header.Name]; ok {
			data = r
		}
		if err := emit(p.header, data); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(replaced))
	for name := range replaced {
		if !written[name] {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		header := zip.FileHeader{Name: name, Method: zip.Deflate, Modified: d.now().UTC()}
		if err := emit(header, replaced[name]); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish package: %w", err)
	}
	return buf.Bytes(), nil
}

type insertion struct {
	offset int64
	text   string
}

// spliceDocument inserts range markers for every pending comment. Insertions
// at the same offset keep the order in which comments were added.
func (d *Document) spliceDocument() []byte {
	src := d.index[documentPart].data
	pfx, decl := markup(d.scan.prefix, d.scan.namespace)

	var inserts []insertion
	for _, c := range d.pending {
		p := d.scan.paragraphs[c.paragraph]
		id := strconv.Itoa(c.id)
		inserts = append(inserts,
			insertion{p.anchorStart, fmt.Sprintf(`<%[1]scommentRangeStart%[3]s %[1]sid="%[2]s"/>`, pfx, id, decl)},
			insertion{p.anchorEnd, fmt.Sprintf(`<%[1]scommentRangeEnd%[3]s %[1]sid="%[2]s"/><%[1]sr%[3]s><%[1]scommentReference %[1]sid="%[2]s"/></%[1]sr>`, pfx, id, decl)},
		)
	}
	slices.SortStableFunc(inserts, func(a, b insertion) int {
		switch {
		case a.offset < b.offset:
			return -1
		case a.offset > b.offset:
			return 1
		}
		return 0
	})

	var out bytes.Buffer
	out.Grow(len(src) + len(inserts)*96)
	var last int64
	for _, ins := range inserts {
		out.Write(src[last:ins.offset])
		out.WriteString(ins.text)
		last = ins.offset
	}
	out.Write(src[last:])
	return out.Bytes()
}

func (d *Document) commentsPart() ([]byte, error) {
	existing, ok := d.index[d.commentsAt]
	if !ok {
		prefix := d.scan.prefix
		if prefix == "" {
			prefix = "w"
		}
		var buf bytes.Buffer
		buf.WriteString(xmlHeader)
		fmt.Fprintf(&buf, `<%[1]s:comments xmlns:%[1]s="%[2]s">`, prefix, d.scan.namespace)
		d.writeComments(&buf, prefix, d.scan.namespace)
		fmt.Fprintf(&buf, `</%s:comments>`, prefix)
		return buf.Bytes(), nil
	}

	root, err := rootElement(existing.data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", d.commentsAt, err)
	}
	ns := root.NamespaceURI
	if ns == "" {
		ns = d.scan.namespace
	}
	var frag bytes.Buffer
	d.writeComments(&frag, root.Prefix, ns)
	out, err := appendToRoot(existing.data, root, frag.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", d.commentsAt, err)
	}
	return out, nil
}

func (d *Document) writeComments(buf *bytes.Buffer, prefix, ns string) {
	pfx, decl := markup(prefix, ns)
	for _, c := range d.pending {
		fmt.Fprintf(buf, `<%[1]scomment%[2]s %[1]sid="%[3]d" %[1]sauthor="%[4]s" %[1]sdate="%[5]s" %[1]sinitials="%[6]s">`,
			pfx, decl, c.id, escape(c.comment.Author), c.date.Format(time.RFC3339), escape(initials(c.comment.Author)))
		for i, line := range strings.Split(c.comment.Text, "\n") {
			fmt.Fprintf(buf, `<%sp>`, pfx)
			if i == 0 {
				fmt.Fprintf(buf, `<%[1]sr><%[1]sannotationRef/></%[1]sr>`, pfx)
			}
			if line != "" {
				fmt.Fprintf(buf, `<%[1]sr><%[1]st xml:space="preserve">%[2]s</%[1]st></%[1]sr>`, pfx, escape(line))
			}
			fmt.Fprintf(buf, `</%sp>`, pfx)
		}
		fmt.Fprintf(buf, `</%scomment>`, pfx)
	}
}

// markup returns the element prefix to write and, when the surrounding part
// binds the namespace as its default, a declaration binding "w" locally.
// Attributes must be qualified, so an empty prefix cannot be used.
func markup(prefix, ns string) (pfx, decl string) {
	if prefix != "" {
		return prefix + ":", ""
	}
	return "w:", fmt.Sprintf(` xmlns:w="%s"`, ns)
}

// locateComments finds the comments part through the document relationships,
// falling back to the conventional name.
func (d *Document) locateComments() (string, error) {
	p, ok := d.index[relsPart]
	if !ok {
		return defaultComments, nil
	}
	doc, err := xmlquery.Parse(bytes.NewReader(p.data))
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", relsPart, err)
	}
	for _, rel := range xmlquery.QuerySelectorAll(doc, relationshipExpr) {
		typ := attr(rel, "Type")
		if typ != relTypeComments && typ != relTypeCommentsStrict {
			continue
		}
		target := attr(rel, "Target")
		if strings.HasPrefix(target, "/") {
			return strings.TrimPrefix(target, "/"), nil
		}
		return "word/" + target, nil
	}
	return defaultComments, nil
}

// relationshipsPart returns the updated relationships, or nil when the
// comments relationship already exists.
func (d *Document) relationshipsPart() ([]byte, error) {
	target := strings.TrimPrefix(d.commentsAt, "word/")
	p, ok := d.index[relsPart]
	if !ok {
		return fmt.Appendf(nil, `%s<Relationships xmlns="%s"><Relationship Id="rId1" Type="%s" Target="%s"/></Relationships>`,
			xmlHeader, nsRelationships, d.commentsRelType(), escape(target)), nil
	}

	doc, err := xmlquery.Parse(bytes.NewReader(p.data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", relsPart, err)
	}
	used := make(map[string]bool)
	for _, rel := range xmlquery.QuerySelectorAll(doc, relationshipExpr) {
		typ := attr(rel, "Type")
		if typ == relTypeComments || typ == relTypeCommentsStrict {
			return nil, nil
		}
		used[attr(rel, "Id")] = true
	}
	id := 1
	for used["rId"+strconv.Itoa(id)] {
		id++
	}

	root, err := rootElement(p.data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", relsPart, err)
	}
	frag := fmt.Sprintf(`<%sRelationship Id="rId%d" Type="%s" Target="%s"/>`, qualify(root.Prefix), id, d.commentsRelType(), escape(target))
	return appendToRoot(p.data, root, []byte(frag))
}

// commentsRelType matches the relationship vocabulary to the document's
// conformance class.
func (d *Document) commentsRelType() string {
	if d.scan.namespace == nsMainStrict {
		return relTypeCommentsStrict
	}
	return relTypeComments
}

// contentTypesPart returns the updated content types, or nil when the
// comments part is already declared.
func (d *Document) contentTypesPart() ([]byte, error) {
	partName := "/" + d.commentsAt
	p, ok := d.index[contentTypesPart]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrNotDocx, contentTypesPart)
	}

	doc, err := xmlquery.Parse(bytes.NewReader(p.data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", contentTypesPart, err)
	}
	for _, o := range xmlquery.QuerySelectorAll(doc, overrideExpr) {
		if strings.EqualFold(attr(o, "PartName"), partName) {
			return nil, nil
		}
	}

	root, err := rootElement(p.data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", contentTypesPart, err)
	}
	frag := fmt.Sprintf(`<%sOverride PartName="%s" ContentType="%s"/>`, qualify(root.Prefix), escape(partName), contentTypeComments)
	return appendToRoot(p.data, root, []byte(frag))
}

func readComments(data []byte) ([]ExistingComment, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse comments: %w", err)
	}

	var out []ExistingComment
	for _, n := range xmlquery.QuerySelectorAll(doc, commentExpr) {
		id, err := strconv.Atoi(attr(n, "id"))
		if err != nil {
			continue
		}
		var paras []string
		for _, p := range xmlquery.QuerySelectorAll(n, paragraphExpr) {
			var sb strings.Builder
			for _, t := range xmlquery.QuerySelectorAll(p, textExpr) {
				sb.WriteString(t.InnerText())
			}
			paras = append(paras, sb.String())
		}
		out = append(out, ExistingComment{
			ID:     id,
			Author: attr(n, "author"),
			Date:   attr(n, "date"),
			Text:   strings.Join(paras, "\n"),
		})
	}
	return out, nil
}

func attr(n *xmlquery.Node, local string) string {
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func rootElement(data []byte) (*xmlquery.Node, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	root := xmlquery.QuerySelector(doc, rootExpr)
	if root == nil {
		return nil, errors.New("no root element")
	}
	return root, nil
}

// appendToRoot inserts frag as the last children of root, expanding a
// self-closing root element when necessary.
func appendToRoot(data []byte, root *xmlquery.Node, frag []byte) ([]byte, error) {
	name := qualify(root.Prefix) + root.Data
	closing := []byte("</" + name)
	if i := bytes.LastIndex(data, closing); i >= 0 {
		out := make([]byte, 0, len(data)+len(frag))
		out = append(out, data[:i]...)
		out = append(out, frag...)
		return append(out, data[i:]...), nil
	}

	i := bytes.LastIndex(data, []byte("/>"))
	if i < 0 {
		return nil, fmt.Errorf("cannot find the end of <%s>", name)
	}
	out := make([]byte, 0, len(data)+len(frag)+len(closing)+1)
	out = append(out, data[:i]...)
	out = append(out, '>')
	out = append(out, frag...)
	out = append(out, closing...)
	out = append(out, '>')
	return append(out, data[i+2:]...), nil
}

func qualify(prefix string) string {
	if prefix == "" {
		return ""
	}
	return prefix + ":"
}

func escape(s string) string {
	var buf bytes.Buffer
	// EscapeText only fails when the writer does.
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// initials takes the first letter of each word of the author name.
func initials(author string) string {
	var sb strings.Builder
	for _, word := range strings.Fields(author) {
		r := []rune(word)
		sb.WriteString(strings.ToUpper(string(r[0])))
	}
	return sb.String()
}
