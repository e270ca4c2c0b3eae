// Package matcher resolves text rules against text-bearing units and narrows
// the resulting matches to the requested occurrence.
package matcher

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/Epistemic-Technology/doc-commenter/models"
)

// Span is a half-open byte range [Start, End) within a normalized string.
type Span struct {
	Start int
	End   int
}

// Rule is a compiled text target.
type Rule struct {
	target  models.TextTarget
	needle  string
	pattern *regexp.Regexp
	bounded *regexp2.Regexp
	fold    cases.Caser
}

var ErrEmptyText = errors.New("target text is empty")

// Compile prepares t for matching. Regex patterns are compiled with the
// standard library engine; whole-word exact rules use Unicode-aware
// lookarounds because RE2's \b only knows ASCII word characters.
func Compile(t models.TextTarget) (*Rule, error) {
	if t.Text == "" {
		return nil, ErrEmptyText
	}
	r := &Rule{target: t, fold: cases.Fold()}

	switch t.MatchType {
	case models.MatchRegex:
		if t.WholeWord {
			return nil, errors.New("whole_word cannot be combined with regex matching")
		}
		expr := t.Text
		if !t.CaseSensitive {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", t.Text, err)
		}
		r.pattern = re
	case models.MatchExact, "":
		r.needle = r.Normalize(t.Text)
		if t.WholeWord {
			expr := `(?<!\w)` + regexp2.Escape(r.needle) + `(?!\w)`
			re, err := regexp2.Compile(expr, regexp2.None)
			if err != nil {
				return nil, fmt.Errorf("failed to compile word boundary rule for %q: %w", t.Text, err)
			}
			r.bounded = re
		}
	default:
		return nil, fmt.Errorf("unknown match type %q", t.MatchType)
	}
	return r, nil
}

// Target returns the rule's source target.
func (r *Rule) Target() models.TextTarget {
	return r.target
}

// Normalize maps s into the form FindAll expects: NFC, and case folded for
// case-insensitive exact rules. Regex rules keep their case and rely on the
// (?i) flag instead.
func (r *Rule) Normalize(s string) string {
	s = norm.NFC.String(s)
	if r.pattern == nil && !r.target.CaseSensitive {
		s = r.fold.String(s)
	}
	return s
}

// FindAll returns the non-overlapping matches in s, which must already be
// normalized with Normalize.
func (r *Rule) FindAll(s string) []Span {
	switch {
	case r.pattern != nil:
		var spans []Span
		for _, loc := range r.pattern.FindAllStringIndex(s, -1) {
			spans = append(spans, Span{Start: loc[0], End: loc[1]})
		}
		return spans
	case r.bounded != nil:
		return r.findBounded(s)
	default:
		var spans []Span
		for pos := 0; pos <= len(s); {
			i := strings.Index(s[pos:], r.needle)
			if i < 0 {
				break
			}
			start := pos + i
			spans = append(spans, Span{Start: start, End: start + len(r.needle)})
			pos = start + len(r.needle)
		}
		return spans
	}
}

// regexp2 reports positions in runes.
func (r *Rule) findBounded(s string) []Span {
	offsets := make([]int, 0, len(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(s))

	var spans []Span
	m, err := r.bounded.FindStringMatch(s)
	for err == nil && m != nil {
		spans = append(spans, Span{Start: offsets[m.Index], End: offsets[m.Index+m.Length]})
		m, err = r.bounded.FindNextMatch(m)
	}
	return spans
}

// Matches reports whether the raw text s contains at least one match.
func (r *Rule) Matches(s string) bool {
	return len(r.FindAll(r.Normalize(s))) > 0
}

// Resolve returns, in ascending order, the indices of the units that contain
// at least one match. A unit counts once no matter how many matches it holds.
// Blank units are never matched.
func Resolve(r *Rule, units []string) []int {
	var hits []int
	for i, text := range units {
		if strings.TrimSpace(text) == "" {
			continue
		}
		if r.Matches(text) {
			hits = append(hits, i)
		}
	}
	return hits
}

// Select narrows matches to the requested occurrence. An index beyond the
// end of matches selects nothing.
func Select[T any](matches []T, occ models.Occurrence) []T {
	if occ.All {
		return matches
	}
	n := occ.Nth()
	if n < 1 || n > len(matches) {
		return nil
	}
	return matches[n-1 : n]
}
