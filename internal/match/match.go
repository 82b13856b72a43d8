// Package match resolves a headline string to the best anchor on a
// rendered page. Two interchangeable strategies exist: deterministic
// text containment and AI semantic matching. Callers are
// strategy-agnostic; both return the same Match shape.
package match

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Candidate is one article-like container extracted from the page DOM,
// in DOM order. Text is the longest anchor text inside the container so
// the primary headline link beats caption links in the same card.
type Candidate struct {
	Index    int    `json:"index"`
	Text     string `json:"link_text"`
	Href     string `json:"href"`
	Excerpt  string `json:"description"`
	ImageURL string `json:"image_url"`
}

// Match is a resolved headline.
type Match struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
}

// Matcher finds the candidate best matching the target headline.
// ok=false means "no match", which is a skip, not an error.
type Matcher interface {
	Match(ctx context.Context, headline string, candidates []Candidate) (Match, bool, error)
}

// Containment matches when the normalized headline contains the
// candidate text or vice versa. No external calls; brittle to
// paraphrasing. Among several containment hits the longest candidate
// text wins, earlier DOM position breaking length ties.
type Containment struct{}

var _ Matcher = Containment{}

// Match implements Matcher.
func (Containment) Match(_ context.Context, headline string, candidates []Candidate) (Match, bool, error) {
	target := strings.ToLower(strings.TrimSpace(headline))
	if target == "" {
		return Match{}, false, nil
	}

	best := -1
	for i, cand := range candidates {
		text := strings.ToLower(strings.TrimSpace(cand.Text))
		if text == "" {
			continue
		}
		if !strings.Contains(text, target) && !strings.Contains(target, text) {
			continue
		}
		if best == -1 || len(cand.Text) > len(candidates[best].Text) {
			best = i
		}
	}

	if best == -1 {
		return Match{}, false, nil
	}
	return toMatch(candidates[best]), true, nil
}

// CandidatePicker is the AI round trip behind the semantic strategy:
// given the target headline and an enumerated candidate block, it
// returns the model's raw free-text answer.
type CandidatePicker interface {
	PickCandidate(ctx context.Context, headline, enumerated string) (string, error)
}

// Semantic delegates matching to a language model. The model only ever
// sees an enumerated list; its answer must parse to one of those
// indexes or the NONE sentinel, so it cannot invent a container.
type Semantic struct {
	picker CandidatePicker
	// limit caps how many candidates are presented; guards token cost.
	limit int
}

var _ Matcher = (*Semantic)(nil)

// NewSemantic wires the AI picker. limit defaults to 15.
func NewSemantic(picker CandidatePicker, limit int) *Semantic {
	if limit <= 0 {
		limit = 15
	}
	return &Semantic{picker: picker, limit: limit}
}

// Match implements Matcher.
func (s *Semantic) Match(ctx context.Context, headline string, candidates []Candidate) (Match, bool, error) {
	if len(candidates) == 0 {
		return Match{}, false, nil
	}

	offered := candidates
	if len(offered) > s.limit {
		offered = offered[:s.limit]
	}

	response, err := s.picker.PickCandidate(ctx, headline, EnumerateCandidates(offered))
	if err != nil {
		return Match{}, false, fmt.Errorf("semantic match: %w", err)
	}

	idx, ok := ParseIndexResponse(response)
	if !ok {
		return Match{}, false, nil
	}
	for _, cand := range offered {
		if cand.Index == idx {
			return toMatch(cand), true, nil
		}
	}
	// Model answered with an index outside the offered set.
	return Match{}, false, nil
}

// EnumerateCandidates renders candidates the way the matcher prompt
// expects them: index, anchor text, URL, excerpt.
func EnumerateCandidates(candidates []Candidate) string {
	var b strings.Builder
	for i, cand := range candidates {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] LINK_TEXT: %s\n    URL: %s\n    EXCERPT: %s",
			cand.Index, cand.Text, cand.Href, cand.Excerpt)
	}
	return b.String()
}

var indexExpr = regexp.MustCompile(`\d+`)

// ParseIndexResponse extracts a candidate index from the model's
// free-text answer. "NONE", an empty answer, or anything that does not
// contain an integer all read as no-match.
func ParseIndexResponse(response string) (int, bool) {
	cleaned := strings.ToUpper(strings.TrimSpace(response))
	if cleaned == "" || strings.Contains(cleaned, "NONE") {
		return 0, false
	}
	raw := indexExpr.FindString(cleaned)
	if raw == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return idx, true
}

func toMatch(c Candidate) Match {
	return Match{
		Title:       c.Text,
		Link:        c.Href,
		Description: c.Excerpt,
		ImageURL:    c.ImageURL,
	}
}
