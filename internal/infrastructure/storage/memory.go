package storage

import (
	"context"
	"sync"
	"time"

	"archwatch/internal/domain"
	"archwatch/internal/ports"
)

// Memory is an in-process seen store with the same contract as Tracker.
// Used when no DATABASE_URL is configured (single dry run) and by tests.
type Memory struct {
	mu   sync.Mutex
	rows map[string]map[string]domain.SeenRecord
}

var _ ports.SeenStore = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]map[string]domain.SeenRecord)}
}

func (m *Memory) source(sourceID string) map[string]domain.SeenRecord {
	if m.rows[sourceID] == nil {
		m.rows[sourceID] = make(map[string]domain.SeenRecord)
	}
	return m.rows[sourceID]
}

// known checks both the identifier key and the headline annotation, so a
// placeholder promoted to its URL still answers "seen" for the headline text.
func known(rows map[string]domain.SeenRecord, identifier string) bool {
	if _, ok := rows[identifier]; ok {
		return true
	}
	for _, rec := range rows {
		if rec.Headline == identifier {
			return true
		}
	}
	return false
}

// IsNew reports whether the identifier is unknown for the source.
func (m *Memory) IsNew(_ context.Context, sourceID, identifier string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !known(m.source(sourceID), identifier), nil
}

// FilterNew returns the unknown subset in input order.
func (m *Memory) FilterNew(_ context.Context, sourceID string, identifiers []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.source(sourceID)
	fresh := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if !known(rows, id) {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

// MarkSeen upserts records; re-marking bumps last_checked only.
func (m *Memory) MarkSeen(_ context.Context, sourceID string, records []domain.SeenRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.source(sourceID)
	now := time.Now().UTC()
	marked := 0
	for _, rec := range records {
		if rec.Identifier == "" {
			continue
		}
		if existing, ok := rows[rec.Identifier]; ok {
			existing.LastChecked = now
			rows[rec.Identifier] = existing
		} else {
			if rec.Status == "" {
				rec.Status = domain.SeenResolved
			}
			rec.SourceID = sourceID
			rec.FirstSeen = now
			rec.LastChecked = now
			rows[rec.Identifier] = rec
		}
		marked++
	}
	return marked, nil
}

// RewriteIdentifier mirrors the Tracker's promotion rules.
func (m *Memory) RewriteIdentifier(_ context.Context, sourceID, oldID, newID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.source(sourceID)
	now := time.Now().UTC()

	if existing, ok := rows[newID]; ok {
		existing.LastChecked = now
		rows[newID] = existing
		if old, ok := rows[oldID]; ok && old.Status == domain.SeenPlaceholder {
			delete(rows, oldID)
		}
		return nil
	}

	if old, ok := rows[oldID]; ok {
		delete(rows, oldID)
		old.Identifier = newID
		if old.Headline == "" {
			old.Headline = oldID
		}
		old.Status = domain.SeenResolved
		old.LastChecked = now
		rows[newID] = old
		return nil
	}

	rows[newID] = domain.SeenRecord{
		SourceID:    sourceID,
		Identifier:  newID,
		Headline:    oldID,
		Status:      domain.SeenResolved,
		FirstSeen:   now,
		LastChecked: now,
	}
	return nil
}

// Stats counts rows; empty sourceID spans all sources.
func (m *Memory) Stats(_ context.Context, sourceID string) (domain.SeenStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats domain.SeenStats
	scan := func(rows map[string]domain.SeenRecord) {
		for _, rec := range rows {
			stats.Count++
			first := rec.FirstSeen
			if stats.OldestSeenAt == nil || first.Before(*stats.OldestSeenAt) {
				t := first
				stats.OldestSeenAt = &t
			}
			if stats.NewestSeenAt == nil || first.After(*stats.NewestSeenAt) {
				t := first
				stats.NewestSeenAt = &t
			}
		}
	}

	if sourceID != "" {
		scan(m.source(sourceID))
	} else {
		for _, rows := range m.rows {
			scan(rows)
		}
	}
	return stats, nil
}

// Clear drops all rows of one source.
func (m *Memory) Clear(_ context.Context, sourceID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.rows[sourceID]))
	delete(m.rows, sourceID)
	return n, nil
}

// Close is a no-op; nothing to release.
func (m *Memory) Close() {}
