package domain

import "fmt"

// SkipReason classifies why a candidate headline produced no article.
// Skips are expected outcomes, not errors; they are counted per run.
type SkipReason string

const (
	SkipNone       SkipReason = ""
	SkipUnresolved SkipReason = "no_matching_link"
	SkipTooOld     SkipReason = "too_old"
	SkipNavigation SkipReason = "navigation_failed"
	SkipDisallowed SkipReason = "robots_disallowed"
	SkipInvalid    SkipReason = "invalid_record"
)

// RunStats accumulates counters for a single discovery run of one source.
type RunStats struct {
	SourceID          string
	Extracted         int
	New               int
	Resolved          int
	Dated             int
	Emitted           int
	SkippedOld        int
	SkippedUnresolved int
	Errors            int
}

// Add folds a skip into the counters.
func (s *RunStats) Add(reason SkipReason) {
	switch reason {
	case SkipTooOld:
		s.SkippedOld++
	case SkipUnresolved, SkipDisallowed:
		s.SkippedUnresolved++
	case SkipNavigation, SkipInvalid:
		s.Errors++
	}
}

// Summary renders the one-line human readable run report.
func (s RunStats) Summary() string {
	return fmt.Sprintf(
		"source=%s extracted=%d new=%d resolved=%d dated=%d emitted=%d skipped_old=%d skipped_unresolved=%d errors=%d",
		s.SourceID, s.Extracted, s.New, s.Resolved, s.Dated, s.Emitted,
		s.SkippedOld, s.SkippedUnresolved, s.Errors,
	)
}
