package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"archwatch/internal/domain"
	"archwatch/internal/ports"
)

// querier is the subset of pgxpool.Pool the tracker needs; pgxmock
// satisfies it in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Tracker is the Postgres-backed seen-article store.
type Tracker struct {
	db     querier
	logger *slog.Logger
}

var _ ports.SeenStore = (*Tracker)(nil)

// NewTracker connects a pool and initializes the schema. An unreachable
// database here is fatal: discovery must not run without its memory.
func NewTracker(ctx context.Context, dsn string, logger *slog.Logger) (*Tracker, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping seen store: %w", err)
	}

	t := &Tracker{db: pool, logger: logger}
	if err := t.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return t, nil
}

// NewTrackerWithDB wires an existing connection; used by tests.
func NewTrackerWithDB(db querier, logger *slog.Logger) *Tracker {
	return &Tracker{db: db, logger: logger}
}

func (t *Tracker) initSchema(ctx context.Context) error {
	_, err := t.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS seen_articles (
			id BIGSERIAL PRIMARY KEY,
			source_id VARCHAR(100) NOT NULL,
			identifier TEXT NOT NULL,
			headline TEXT,
			status VARCHAR(16) NOT NULL DEFAULT 'resolved',
			first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_checked TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (source_id, identifier)
		)`)
	if err != nil {
		return fmt.Errorf("create seen_articles: %w", err)
	}

	_, err = t.db.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_seen_source_headline
		ON seen_articles (source_id, headline)`)
	if err != nil {
		return fmt.Errorf("create headline index: %w", err)
	}

	return nil
}

// IsNew reports whether the identifier has never been recorded for the
// source. The headline column is consulted as a secondary key so that a
// placeholder promoted to its URL still answers "seen" for the original
// headline text.
func (t *Tracker) IsNew(ctx context.Context, sourceID, identifier string) (bool, error) {
	query, args, err := psql.Select("1").
		From("seen_articles").
		Where(sq.Eq{"source_id": sourceID}).
		Where(sq.Or{sq.Eq{"identifier": identifier}, sq.Eq{"headline": identifier}}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = t.db.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s/%s: %w", sourceID, identifier, err)
	}
	return false, nil
}

// FilterNew returns the identifiers not yet present for the source, in
// input order. One batched lookup, not N round trips.
func (t *Tracker) FilterNew(ctx context.Context, sourceID string, identifiers []string) ([]string, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}

	query, args, err := psql.Select("identifier", "headline").
		From("seen_articles").
		Where(sq.Eq{"source_id": sourceID}).
		Where(sq.Or{
			sq.Expr("identifier = ANY(?)", identifiers),
			sq.Expr("headline = ANY(?)", identifiers),
		}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := t.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query seen: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var id string
		var headline *string
		if err := rows.Scan(&id, &headline); err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		seen[id] = struct{}{}
		if headline != nil {
			seen[*headline] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	fresh := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if _, ok := seen[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	return fresh, nil
}

// MarkSeen upserts records one by one so that a single bad row cannot sink
// the batch; a missed row is only reprocessed on the next run. Per-row
// ON CONFLICT upserts keep concurrent callers from tripping the unique
// constraint.
func (t *Tracker) MarkSeen(ctx context.Context, sourceID string, records []domain.SeenRecord) (int, error) {
	marked := 0
	for _, rec := range records {
		if rec.Identifier == "" {
			continue
		}
		status := rec.Status
		if status == "" {
			status = domain.SeenResolved
		}

		query, args, err := psql.Insert("seen_articles").
			Columns("source_id", "identifier", "headline", "status").
			Values(sourceID, rec.Identifier, nullable(rec.Headline), string(status)).
			Suffix(`ON CONFLICT (source_id, identifier) DO UPDATE SET last_checked = NOW()`).
			ToSql()
		if err != nil {
			return marked, fmt.Errorf("build upsert: %w", err)
		}

		if _, err := t.db.Exec(ctx, query, args...); err != nil {
			t.logger.Warn("mark seen failed, continuing batch",
				"source", sourceID, "identifier", rec.Identifier, "error", err)
			continue
		}
		marked++
	}
	return marked, nil
}

// RewriteIdentifier promotes a placeholder row to the canonical URL.
// When the URL is already tracked for the source, the URL row keeps the
// seen-state and the stale placeholder is deleted, so neither key ever
// reads as "new" again.
func (t *Tracker) RewriteIdentifier(ctx context.Context, sourceID, oldID, newID string) error {
	isNew, err := t.IsNew(ctx, sourceID, newID)
	if err != nil {
		return err
	}

	if !isNew {
		query, args, err := psql.Update("seen_articles").
			Set("last_checked", sq.Expr("NOW()")).
			Where(sq.Eq{"source_id": sourceID}).
			Where(sq.Eq{"identifier": newID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build touch: %w", err)
		}
		if _, err := t.db.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("touch %s/%s: %w", sourceID, newID, err)
		}

		query, args, err = psql.Delete("seen_articles").
			Where(sq.Eq{"source_id": sourceID}).
			Where(sq.Eq{"identifier": oldID}).
			Where(sq.Eq{"status": string(domain.SeenPlaceholder)}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build cleanup: %w", err)
		}
		if _, err := t.db.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("drop placeholder %s/%s: %w", sourceID, oldID, err)
		}
		return nil
	}

	query, args, err := psql.Update("seen_articles").
		Set("identifier", newID).
		Set("headline", sq.Expr("COALESCE(headline, ?)", oldID)).
		Set("status", string(domain.SeenResolved)).
		Set("last_checked", sq.Expr("NOW()")).
		Where(sq.Eq{"source_id": sourceID}).
		Where(sq.Eq{"identifier": oldID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build rewrite: %w", err)
	}

	tag, err := t.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("rewrite %s/%s: %w", sourceID, oldID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// No placeholder existed; record the URL directly.
	query, args, err = psql.Insert("seen_articles").
		Columns("source_id", "identifier", "headline", "status").
		Values(sourceID, newID, nullable(oldID), string(domain.SeenResolved)).
		Suffix(`ON CONFLICT (source_id, identifier) DO UPDATE SET last_checked = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := t.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %s/%s: %w", sourceID, newID, err)
	}
	return nil
}

// Stats returns tracked-row counts; empty sourceID spans all sources.
func (t *Tracker) Stats(ctx context.Context, sourceID string) (domain.SeenStats, error) {
	builder := psql.Select("COUNT(*)", "MIN(first_seen)", "MAX(first_seen)").
		From("seen_articles")
	if sourceID != "" {
		builder = builder.Where(sq.Eq{"source_id": sourceID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return domain.SeenStats{}, fmt.Errorf("build stats: %w", err)
	}

	var stats domain.SeenStats
	var oldest, newest *time.Time
	if err := t.db.QueryRow(ctx, query, args...).Scan(&stats.Count, &oldest, &newest); err != nil {
		return domain.SeenStats{}, fmt.Errorf("query stats: %w", err)
	}
	stats.OldestSeenAt = oldest
	stats.NewestSeenAt = newest
	return stats, nil
}

// Clear wipes all records of one source.
func (t *Tracker) Clear(ctx context.Context, sourceID string) (int64, error) {
	query, args, err := psql.Delete("seen_articles").
		Where(sq.Eq{"source_id": sourceID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	tag, err := t.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", sourceID, err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the pool.
func (t *Tracker) Close() {
	t.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
