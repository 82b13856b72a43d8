package match

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func candidates() []Candidate {
	return []Candidate{
		{Index: 0, Text: "New Museum Opens in Tokyo", Href: "/tokyo-museum"},
		{Index: 1, Text: "Museum Opens", Href: "/short"},
		{Index: 2, Text: "New Museum Opens in Tokyo This Spring", Href: "/tokyo-museum-long"},
		{Index: 3, Text: "Unrelated Housing Project", Href: "/housing"},
	}
}

func TestContainmentExactMatch(t *testing.T) {
	t.Parallel()

	m, ok, err := Containment{}.Match(context.Background(), "Unrelated Housing Project", candidates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Link != "/housing" {
		t.Fatalf("expected /housing, got %s", m.Link)
	}
}

func TestContainmentPrefersLongestCandidate(t *testing.T) {
	t.Parallel()

	// Three candidates contain or are contained by the headline; the
	// longest candidate text must win.
	m, ok, err := Containment{}.Match(context.Background(), "New Museum Opens in Tokyo", candidates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected a match")
	}
	if m.Link != "/tokyo-museum-long" {
		t.Fatalf("expected longest candidate, got %s", m.Link)
	}
}

func TestContainmentCaseInsensitive(t *testing.T) {
	t.Parallel()

	_, ok, err := Containment{}.Match(context.Background(), "UNRELATED HOUSING PROJECT", candidates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected case-insensitive match")
	}
}

func TestContainmentNoMatch(t *testing.T) {
	t.Parallel()

	_, ok, err := Containment{}.Match(context.Background(), "Completely Different Headline", candidates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected no match")
	}
}

func TestContainmentEmptyHeadline(t *testing.T) {
	t.Parallel()

	_, ok, err := Containment{}.Match(context.Background(), "   ", candidates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("blank headline must not match")
	}
}

func TestParseIndexResponse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		response string
		idx      int
		ok       bool
	}{
		{"3", 3, true},
		{"  2 ", 2, true},
		{"The answer is 7.", 7, true},
		{"NONE", 0, false},
		{"none", 0, false},
		{"No good match (NONE)", 0, false},
		{"", 0, false},
		{"no digits here", 0, false},
	}

	for _, tc := range cases {
		idx, ok := ParseIndexResponse(tc.response)
		if ok != tc.ok || idx != tc.idx {
			t.Errorf("ParseIndexResponse(%q) = (%d, %v), want (%d, %v)",
				tc.response, idx, ok, tc.idx, tc.ok)
		}
	}
}

// fakePicker returns a canned answer and records the enumeration.
type fakePicker struct {
	answer     string
	err        error
	enumerated string
}

func (f *fakePicker) PickCandidate(_ context.Context, _ string, enumerated string) (string, error) {
	f.enumerated = enumerated
	return f.answer, f.err
}

func TestSemanticPicksAnsweredIndex(t *testing.T) {
	t.Parallel()

	picker := &fakePicker{answer: "3"}
	m, ok, err := NewSemantic(picker, 15).Match(context.Background(), "anything", candidates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || m.Link != "/housing" {
		t.Fatalf("expected /housing, got ok=%v link=%s", ok, m.Link)
	}
}

func TestSemanticNoneAnswer(t *testing.T) {
	t.Parallel()

	picker := &fakePicker{answer: "NONE"}
	_, ok, err := NewSemantic(picker, 15).Match(context.Background(), "anything", candidates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("NONE must read as no match")
	}
}

func TestSemanticOutOfRangeIndex(t *testing.T) {
	t.Parallel()

	picker := &fakePicker{answer: "42"}
	_, ok, err := NewSemantic(picker, 15).Match(context.Background(), "anything", candidates())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("an index outside the offered set must not match")
	}
}

func TestSemanticLimitsOfferedCandidates(t *testing.T) {
	t.Parallel()

	many := make([]Candidate, 20)
	for i := range many {
		many[i] = Candidate{Index: i, Text: "headline", Href: "/x"}
	}

	picker := &fakePicker{answer: "NONE"}
	if _, _, err := NewSemantic(picker, 15).Match(context.Background(), "headline", many); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(picker.enumerated, "[15]") {
		t.Fatal("candidate 15 should not have been offered")
	}
	if !strings.Contains(picker.enumerated, "[14]") {
		t.Fatal("candidate 14 should have been offered")
	}
}

func TestSemanticPickerError(t *testing.T) {
	t.Parallel()

	picker := &fakePicker{err: errors.New("boom")}
	_, _, err := NewSemantic(picker, 15).Match(context.Background(), "anything", candidates())
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestEnumerateCandidatesFormat(t *testing.T) {
	t.Parallel()

	out := EnumerateCandidates([]Candidate{
		{Index: 0, Text: "A", Href: "https://x/a", Excerpt: "first"},
		{Index: 1, Text: "B", Href: "https://x/b", Excerpt: "second"},
	})

	if !strings.Contains(out, "[0] LINK_TEXT: A") {
		t.Fatalf("missing first entry header: %q", out)
	}
	if !strings.Contains(out, "URL: https://x/b") {
		t.Fatalf("missing second entry URL: %q", out)
	}
	if !strings.Contains(out, "EXCERPT: first") {
		t.Fatalf("missing excerpt: %q", out)
	}
}
