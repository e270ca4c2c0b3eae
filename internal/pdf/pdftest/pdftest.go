// Package pdftest builds small single-font PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// GlyphWidth is the advance of every character, in thousandths of the font size.
const GlyphWidth = 500

// Text is a string drawn with its baseline starting at (X, Y) in PDF user
// space (origin bottom-left).
type Text struct {
	X, Y float64
	Size float64
	S    string
}

// Page is one page of a generated document.
type Page struct {
	// MediaBox defaults to US letter.
	MediaBox [4]float64
	Texts    []Text
}

// Build returns a PDF with one content stream per page. All text uses a
// WinAnsi Helvetica with fixed glyph widths, so positions are predictable.
func Build(pages ...Page) []byte {
	var objects []string
	add := func(body string) int {
		objects = append(objects, body)
		return len(objects)
	}

	catalog := add("")
	pagesObj := add("")
	font := add(fontDict())

	var kids []string
	for _, p := range pages {
		media := p.MediaBox
		if media == [4]float64{} {
			media = [4]float64{0, 0, 612, 792}
		}
		content := contentStream(p.Texts)
		contentObj := add(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
		pageObj := add(fmt.Sprintf(
			"<< /Type /Page /Parent %d 0 R /MediaBox [%g %g %g %g] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>",
			pagesObj, media[0], media[1], media[2], media[3], font, contentObj))
		kids = append(kids, fmt.Sprintf("%d 0 R", pageObj))
	}
	objects[catalog-1] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj)
	objects[pagesObj-1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(kids))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f\r\n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, catalog, xref)
	return buf.Bytes()
}

func fontDict() string {
	widths := make([]string, 126-32+1)
	for i := range widths {
		widths[i] = fmt.Sprint(GlyphWidth)
	}
	return fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>",
		strings.Join(widths, " "))
}

func contentStream(texts []Text) string {
	var sb strings.Builder
	for _, t := range texts {
		fmt.Fprintf(&sb, "BT /F1 %g Tf %g %g Td (%s) Tj ET\n", t.Size, t.X, t.Y, escape(t.S))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}
