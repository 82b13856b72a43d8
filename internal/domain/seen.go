package domain

import "time"

// SeenStatus tracks the lifecycle of a seen-store record.
type SeenStatus string

const (
	// SeenPlaceholder marks a record created from a headline before its
	// canonical URL is known. The headline text is the identifier.
	SeenPlaceholder SeenStatus = "placeholder"
	// SeenResolved marks a record whose identifier is the canonical URL.
	SeenResolved SeenStatus = "resolved"
)

// SeenRecord is one row of de-duplication memory, scoped per source.
type SeenRecord struct {
	SourceID    string
	Identifier  string
	Headline    string
	Status      SeenStatus
	FirstSeen   time.Time
	LastChecked time.Time
}

// SeenStats is the diagnostic read over the seen store.
type SeenStats struct {
	Count        int64
	OldestSeenAt *time.Time
	NewestSeenAt *time.Time
}
