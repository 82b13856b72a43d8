package llm

import (
	"regexp"
	"strings"
	"time"
)

const maxHeadlines = 20

var (
	numberedExpr = regexp.MustCompile(`^\d+[.)]\s+`)
	isoExpr      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

// ParseHeadlines turns a model answer into a clean headline list: one per
// line, list markers stripped, commentary dropped, at most 20 entries.
func ParseHeadlines(response string) []string {
	var headlines []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "here") {
			continue
		}
		line = numberedExpr.ReplaceAllString(line, "")
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "* ")
		line = strings.TrimPrefix(line, "• ")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		headlines = append(headlines, line)
		if len(headlines) == maxHeadlines {
			break
		}
	}
	return headlines
}

// ParseDateResponse reads a YYYY-MM-DD answer; NONE or anything that does
// not contain a valid ISO date yields nil.
func ParseDateResponse(response string) *time.Time {
	text := strings.TrimSpace(response)
	if text == "" || strings.Contains(strings.ToUpper(text), "NONE") {
		return nil
	}
	raw := isoExpr.FindString(text)
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// ParseFilterResponse reads an INCLUDE / EXCLUDE: reason verdict. Unknown
// answers include the article; the filter must not silently drop news.
func ParseFilterResponse(response string) (include bool, reason string) {
	text := strings.TrimSpace(response)
	upper := strings.ToUpper(text)
	if strings.HasPrefix(upper, "EXCLUDE") {
		_, rest, ok := strings.Cut(text, ":")
		if ok {
			return false, strings.TrimSpace(rest)
		}
		return false, ""
	}
	return true, ""
}

// ParseSummaryResponse reads the three labeled lines the summary prompt
// asks for. Missing fields come back empty; callers fall back to the
// original title and description.
func ParseSummaryResponse(response string) (headline, summary, tag string) {
	var current *string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case matchLabel(line, "HEADLINE:", &headline):
			current = &headline
		case matchLabel(line, "SUMMARY:", &summary):
			current = &summary
		case matchLabel(line, "TAG:", &tag):
			current = &tag
		case line != "" && current != nil:
			*current += " " + line
		}
	}
	return strings.TrimSpace(headline), strings.TrimSpace(summary), strings.ToLower(strings.TrimSpace(tag))
}

func matchLabel(line, label string, dst *string) bool {
	if !strings.HasPrefix(strings.ToUpper(line), label) {
		return false
	}
	*dst = strings.TrimSpace(line[len(label):])
	return true
}
