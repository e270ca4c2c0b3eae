package matcher

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Epistemic-Technology/doc-commenter/models"
)

func mustCompile(t *testing.T, target models.TextTarget) *Rule {
	t.Helper()
	r, err := Compile(target)
	if err != nil {
		t.Fatalf("Compile(%+v) failed: %v", target, err)
	}
	return r
}

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name     string
		target   models.TextTarget
		text     string
		expected bool
	}{
		{
			name:     "exact case-insensitive, rule upper",
			target:   models.TextTarget{Text: "SUMMARY", MatchType: models.MatchExact},
			text:     "the summary follows",
			expected: true,
		},
		{
			name:     "exact case-insensitive, text upper",
			target:   models.TextTarget{Text: "summary", MatchType: models.MatchExact},
			text:     "THE SUMMARY FOLLOWS",
			expected: true,
		},
		{
			name:     "exact case-sensitive mismatch",
			target:   models.TextTarget{Text: "Summary", MatchType: models.MatchExact, CaseSensitive: true},
			text:     "the summary follows",
			expected: false,
		},
		{
			name:     "whole word rejects prefix",
			target:   models.TextTarget{Text: "cat", MatchType: models.MatchExact, WholeWord: true},
			text:     "category",
			expected: false,
		},
		{
			name:     "whole word accepts word",
			target:   models.TextTarget{Text: "cat", MatchType: models.MatchExact, WholeWord: true},
			text:     "The cat sat.",
			expected: true,
		},
		{
			name:     "whole word at string edges",
			target:   models.TextTarget{Text: "cat", MatchType: models.MatchExact, WholeWord: true},
			text:     "cat",
			expected: true,
		},
		{
			name:     "substring without whole word",
			target:   models.TextTarget{Text: "cat", MatchType: models.MatchExact},
			text:     "category",
			expected: true,
		},
		{
			name:     "whole word is unicode aware",
			target:   models.TextTarget{Text: "café", MatchType: models.MatchExact, WholeWord: true},
			text:     "un cafés noir",
			expected: false,
		},
		{
			name:     "whole word unicode neighbour punctuation",
			target:   models.TextTarget{Text: "café", MatchType: models.MatchExact, WholeWord: true},
			text:     "«café»",
			expected: true,
		},
		{
			name:     "accented letter is a word character",
			target:   models.TextTarget{Text: "caf", MatchType: models.MatchExact, WholeWord: true},
			text:     "café",
			expected: false,
		},
		{
			name:     "case folding beyond ASCII",
			target:   models.TextTarget{Text: "STRASSE", MatchType: models.MatchExact},
			text:     "Hauptstraße 5",
			expected: true,
		},
		{
			name:     "decomposed text matches composed rule",
			target:   models.TextTarget{Text: "caf\u00e9", MatchType: models.MatchExact, CaseSensitive: true},
			text:     "cafe\u0301",
			expected: true,
		},
		{
			name:     "anchored regex case-insensitive",
			target:   models.TextTarget{Text: `^Section \d+`, MatchType: models.MatchRegex},
			text:     "section 1 overview",
			expected: true,
		},
		{
			name:     "anchored regex not at start",
			target:   models.TextTarget{Text: `^Section \d+`, MatchType: models.MatchRegex},
			text:     "A section 1 note",
			expected: false,
		},
		{
			name:     "regex case-sensitive",
			target:   models.TextTarget{Text: `^Section \d+`, MatchType: models.MatchRegex, CaseSensitive: true},
			text:     "section 1 overview",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustCompile(t, tt.target)
			if got := r.Matches(tt.text); got != tt.expected {
				t.Errorf("Matches(%q) = %v, want %v", tt.text, got, tt.expected)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		target models.TextTarget
	}{
		{"empty text", models.TextTarget{MatchType: models.MatchExact}},
		{"regex with whole word", models.TextTarget{Text: "a", MatchType: models.MatchRegex, WholeWord: true}},
		{"bad regex", models.TextTarget{Text: "(", MatchType: models.MatchRegex}},
		{"unknown match type", models.TextTarget{Text: "a", MatchType: "glob"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.target); err == nil {
				t.Errorf("Compile(%+v) succeeded, want error", tt.target)
			}
		})
	}
}

func TestFindAll(t *testing.T) {
	tests := []struct {
		name     string
		target   models.TextTarget
		text     string
		expected []Span
	}{
		{
			name:     "exact non-overlapping",
			target:   models.TextTarget{Text: "aa", MatchType: models.MatchExact},
			text:     "aaaa",
			expected: []Span{{0, 2}, {2, 4}},
		},
		{
			name:     "whole word byte offsets after multibyte runes",
			target:   models.TextTarget{Text: "cat", MatchType: models.MatchExact, WholeWord: true},
			text:     "ça cat cats cat",
			expected: []Span{{4, 7}, {13, 16}},
		},
		{
			name:     "regex spans",
			target:   models.TextTarget{Text: `\d+`, MatchType: models.MatchRegex},
			text:     "a1 b22",
			expected: []Span{{1, 2}, {4, 6}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustCompile(t, tt.target)
			got := r.FindAll(r.Normalize(tt.text))
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("FindAll(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	paragraphs := []string{
		"Intro",
		"Summary text here",
		"",
		"   ",
		"Summary",
		"summary and summary again",
	}

	tests := []struct {
		name     string
		target   models.TextTarget
		expected []int
	}{
		{
			name:     "substring counts once per paragraph",
			target:   models.TextTarget{Text: "summary", MatchType: models.MatchExact},
			expected: []int{1, 4, 5},
		},
		{
			name:     "whole word",
			target:   models.TextTarget{Text: "Summary", MatchType: models.MatchExact, WholeWord: true},
			expected: []int{1, 4, 5},
		},
		{
			name:     "case-sensitive",
			target:   models.TextTarget{Text: "Summary", MatchType: models.MatchExact, CaseSensitive: true},
			expected: []int{1, 4},
		},
		{
			name:     "regex anchored to whole paragraph",
			target:   models.TextTarget{Text: `^summary$`, MatchType: models.MatchRegex},
			expected: []int{4},
		},
		{
			name:     "no match",
			target:   models.TextTarget{Text: "absent", MatchType: models.MatchExact},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(mustCompile(t, tt.target), paragraphs)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	matches := []int{3, 7, 9}

	tests := []struct {
		name     string
		occ      models.Occurrence
		expected []int
	}{
		{"first", models.OccurrenceFirst, []int{3}},
		{"zero value is first", models.Occurrence{}, []int{3}},
		{"all", models.OccurrenceAll, []int{3, 7, 9}},
		{"second", models.Occurrence{Index: 2}, []int{7}},
		{"last", models.Occurrence{Index: 3}, []int{9}},
		{"out of range", models.Occurrence{Index: 5}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(matches, tt.occ)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Select(%v) mismatch (-want +got):\n%s", tt.occ, diff)
			}
		})
	}

	if got := Select([]int(nil), models.OccurrenceFirst); len(got) != 0 {
		t.Errorf("Select(nil, first) = %v, want empty", got)
	}
}
