package docx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	nsMain       = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsMainStrict = "http://purl.oclc.org/ooxml/wordprocessingml/main"
)

// Paragraph is a body-level paragraph of the main document part.
type Paragraph struct {
	Index int
	Text  string
	// CommentIDs lists the comment ranges that already start in this paragraph.
	CommentIDs []int

	// Byte offsets into document.xml: where a comment range may start (after
	// the paragraph properties) and where it must end (before </w:p>). A
	// negative anchorEnd marks a self-closing <w:p/>.
	anchorStart int64
	anchorEnd   int64
}

type scanResult struct {
	paragraphs []Paragraph
	prefix     string
	namespace  string
	maxID      int
}

func isWord(name xml.Name, local string) bool {
	return name.Local == local && (name.Space == nsMain || name.Space == nsMainStrict)
}

// tagPrefix extracts the namespace prefix of the element whose start tag is raw.
func tagPrefix(raw []byte) string {
	raw = bytes.TrimPrefix(raw, []byte("<"))
	end := bytes.IndexAny(raw, " \t\r\n/>")
	if end < 0 {
		return ""
	}
	name := raw[:end]
	if i := bytes.IndexByte(name, ':'); i >= 0 {
		return string(name[:i])
	}
	return ""
}

func attrInt(el xml.StartElement, local string) (int, bool) {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			n, err := strconv.Atoi(a.Value)
			return n, err == nil
		}
	}
	return 0, false
}

// scanDocument walks document.xml once and records the text and anchor
// offsets of every paragraph that is a direct child of w:body. encoding/xml is
// used here because the splice needs source byte offsets, which xmlquery does
// not keep.
func scanDocument(data []byte) (*scanResult, error) {
	res := &scanResult{prefix: "w", namespace: nsMain, maxID: -1}
	dec := xml.NewDecoder(bytes.NewReader(data))

	var (
		stack     []xml.Name
		cur       *Paragraph
		pDepth    int
		nestedP   int
		textDepth int
		text      strings.Builder
		seenPara  bool
	)

	for {
		start := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			var parent xml.Name
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			stack = append(stack, t.Name)

			if isWord(t.Name, "commentRangeStart") || isWord(t.Name, "commentReference") {
				if id, ok := attrInt(t, "id"); ok {
					res.maxID = max(res.maxID, id)
					if cur != nil && isWord(t.Name, "commentRangeStart") {
						cur.CommentIDs = append(cur.CommentIDs, id)
					}
				}
			}

			if isWord(t.Name, "p") {
				if cur != nil {
					nestedP++
					continue
				}
				if isWord(parent, "body") {
					if !seenPara {
						res.prefix = tagPrefix(data[start:dec.InputOffset()])
						res.namespace = t.Name.Space
						seenPara = true
					}
					cur = &Paragraph{Index: len(res.paragraphs), anchorStart: dec.InputOffset()}
					pDepth = len(stack)
					text.Reset()
				}
				continue
			}

			if cur == nil || nestedP > 0 {
				continue
			}
			switch {
			case isWord(t.Name, "t"):
				textDepth = len(stack)
			case isWord(t.Name, "tab"):
				text.WriteByte('\t')
			case isWord(t.Name, "br"), isWord(t.Name, "cr"):
				text.WriteByte('\n')
			case isWord(t.Name, "noBreakHyphen"):
				text.WriteByte('-')
			}

		case xml.EndElement:
			depth := len(stack)
			if depth > 0 {
				stack = stack[:depth-1]
			}
			if cur == nil {
				continue
			}
			switch {
			case isWord(t.Name, "p") && nestedP > 0:
				nestedP--
			case isWord(t.Name, "p") && depth == pDepth:
				cur.anchorEnd = start
				if start == dec.InputOffset() {
					cur.anchorEnd = -1
				}
				cur.Text = text.String()
				res.paragraphs = append(res.paragraphs, *cur)
				cur = nil
			case isWord(t.Name, "pPr") && depth == pDepth+1:
				cur.anchorStart = dec.InputOffset()
			case isWord(t.Name, "t") && depth == textDepth:
				textDepth = 0
			}

		case xml.CharData:
			if cur != nil && nestedP == 0 && textDepth > 0 {
				text.Write(t)
			}
		}
	}

	return res, nil
}
