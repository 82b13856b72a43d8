package pagemeta

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

const monthAlternation = `(January|February|March|April|May|June|July|August|September|October|November|December)`

var (
	dayMonthYearExpr = regexp.MustCompile(`(?i)(\d{1,2})\s+` + monthAlternation + `\s+(\d{4})`)
	monthDayYearExpr = regexp.MustCompile(`(?i)` + monthAlternation + `\s+(\d{1,2}),?\s+(\d{4})`)
	isoDateExpr      = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	slashDateExpr    = regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})`)
	dotDateExpr      = regexp.MustCompile(`(\d{4})\.(\d{1,2})\.(\d{1,2})`)
	cjkDateExpr      = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)
)

// ParseDate recognizes the date formats the monitored sites actually
// use and returns the parsed day in UTC. ok=false means no recognizable
// date in the text.
func ParseDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}

	if m := dayMonthYearExpr.FindStringSubmatch(text); m != nil {
		if t, ok := buildDate(m[3], strings.ToLower(m[2]), m[1]); ok {
			return t, true
		}
	}

	if m := monthDayYearExpr.FindStringSubmatch(text); m != nil {
		if t, ok := buildDate(m[3], strings.ToLower(m[1]), m[2]); ok {
			return t, true
		}
	}

	for _, expr := range []*regexp.Regexp{isoDateExpr, slashDateExpr, dotDateExpr, cjkDateExpr} {
		m := expr.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if t, ok := makeDate(year, time.Month(month), day); ok {
			return t, true
		}
	}

	// Already a full timestamp.
	if strings.Contains(text, "T") {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, text); err == nil {
				return t.UTC(), true
			}
		}
	}

	return time.Time{}, false
}

func buildDate(yearStr, monthName, dayStr string) (time.Time, bool) {
	month, ok := monthsByName[monthName]
	if !ok {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(yearStr)
	day, _ := strconv.Atoi(dayStr)
	return makeDate(year, month, day)
}

func makeDate(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	// Reject normalized overflow like Feb 30.
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

// Plausible applies the sanity window: a publication date in the future
// or older than window is treated as a misparse and discarded.
func Plausible(t, now time.Time, window time.Duration) bool {
	if t.After(now) {
		return false
	}
	return now.Sub(t) <= window
}

// WithinAge is the age-cutoff policy. Articles with no date are kept on
// purpose: recall over precision.
func WithinAge(published *time.Time, maxAgeDays int, now time.Time) bool {
	if published == nil {
		return true
	}
	if maxAgeDays <= 0 {
		return true
	}
	return int(now.Sub(*published).Hours()/24) <= maxAgeDays
}
