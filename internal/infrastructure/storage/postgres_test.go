package storage

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archwatch/internal/domain"
)

func newMockTracker(t *testing.T) (*Tracker, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewTrackerWithDB(mock, slog.Default()), mock
}

func TestTrackerIsNew(t *testing.T) {
	t.Parallel()
	tracker, mock := newMockTracker(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT 1 FROM seen_articles`).
		WithArgs("dezeen", "https://dezeen.com/a", "https://dezeen.com/a").
		WillReturnError(errors.New("no rows in result set"))

	// A lookup against headline as well as identifier: a promoted
	// placeholder answers "seen" for its original headline text.
	mock.ExpectQuery(`SELECT 1 FROM seen_articles`).
		WithArgs("dezeen", "Old Headline", "Old Headline").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))

	fresh, err := tracker.IsNew(ctx, "dezeen", "https://dezeen.com/a")
	require.Error(t, err) // generic errors propagate

	fresh, err = tracker.IsNew(ctx, "dezeen", "Old Headline")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackerIsNewNoRows(t *testing.T) {
	t.Parallel()
	tracker, mock := newMockTracker(t)

	mock.ExpectQuery(`SELECT 1 FROM seen_articles`).
		WithArgs("dezeen", "https://dezeen.com/a", "https://dezeen.com/a").
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))

	fresh, err := tracker.IsNew(context.Background(), "dezeen", "https://dezeen.com/a")
	require.NoError(t, err)
	assert.True(t, fresh)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackerFilterNewChecksBothColumns(t *testing.T) {
	t.Parallel()
	tracker, mock := newMockTracker(t)

	ids := []string{"headline A", "https://x/b", "headline C"}
	headlineC := "headline C"
	rows := pgxmock.NewRows([]string{"identifier", "headline"}).
		AddRow("https://x/b", (*string)(nil)).
		AddRow("https://x/resolved", &headlineC)

	mock.ExpectQuery(`SELECT identifier, headline FROM seen_articles`).
		WithArgs("s", ids, ids).
		WillReturnRows(rows)

	fresh, err := tracker.FilterNew(context.Background(), "s", ids)
	require.NoError(t, err)

	// headline C was promoted to a URL row; its annotation still marks
	// it seen. Only headline A survives, in input order.
	assert.Equal(t, []string{"headline A"}, fresh)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackerFilterNewEmptyInput(t *testing.T) {
	t.Parallel()
	tracker, _ := newMockTracker(t)

	fresh, err := tracker.FilterNew(context.Background(), "s", nil)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestTrackerMarkSeenContinuesPastRowFailure(t *testing.T) {
	t.Parallel()
	tracker, mock := newMockTracker(t)

	mock.ExpectExec(`INSERT INTO seen_articles`).
		WithArgs("s", "https://x/a", nil, "resolved").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectExec(`INSERT INTO seen_articles`).
		WithArgs("s", "https://x/b", nil, "resolved").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	marked, err := tracker.MarkSeen(context.Background(), "s", []domain.SeenRecord{
		{Identifier: "https://x/a"},
		{Identifier: "https://x/b"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackerMarkSeenUpsertsOnConflict(t *testing.T) {
	t.Parallel()
	tracker, mock := newMockTracker(t)

	// Each row carries its own ON CONFLICT clause, so a concurrent
	// writer landing the same (source_id, identifier) first turns this
	// insert into a last_checked bump instead of a unique violation.
	mock.ExpectExec(`INSERT INTO seen_articles .+ ON CONFLICT \(source_id, identifier\) DO UPDATE SET last_checked = NOW\(\)`).
		WithArgs("s", "https://x/a", nil, "resolved").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	marked, err := tracker.MarkSeen(context.Background(), "s", []domain.SeenRecord{
		{Identifier: "https://x/a"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackerMarkSeenSkipsEmptyIdentifier(t *testing.T) {
	t.Parallel()
	tracker, mock := newMockTracker(t)

	marked, err := tracker.MarkSeen(context.Background(), "s", []domain.SeenRecord{{Identifier: ""}})
	require.NoError(t, err)
	assert.Zero(t, marked)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackerRewritePromotesPlaceholder(t *testing.T) {
	t.Parallel()
	tracker, mock := newMockTracker(t)

	headline := "New Museum Opens"
	url := "https://x/museum"

	// The URL is unknown, so the placeholder row is rewritten in place.
	mock.ExpectQuery(`SELECT 1 FROM seen_articles`).
		WithArgs("s", url, url).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
	mock.ExpectExec(`UPDATE seen_articles SET`).
		WithArgs(url, headline, "resolved", "s", headline).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, tracker.RewriteIdentifier(context.Background(), "s", headline, url))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackerRewriteCollisionDropsStalePlaceholder(t *testing.T) {
	t.Parallel()
	tracker, mock := newMockTracker(t)

	headline := "Old Headline"
	url := "https://x/article"

	// The URL already exists: touch it and delete the placeholder.
	mock.ExpectQuery(`SELECT 1 FROM seen_articles`).
		WithArgs("s", url, url).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectExec(`UPDATE seen_articles SET last_checked`).
		WithArgs("s", url).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM seen_articles`).
		WithArgs("s", headline, "placeholder").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, tracker.RewriteIdentifier(context.Background(), "s", headline, url))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackerRewriteWithoutPlaceholderInserts(t *testing.T) {
	t.Parallel()
	tracker, mock := newMockTracker(t)

	headline := "Fresh Headline"
	url := "https://x/fresh"

	mock.ExpectQuery(`SELECT 1 FROM seen_articles`).
		WithArgs("s", url, url).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}))
	mock.ExpectExec(`UPDATE seen_articles SET`).
		WithArgs(url, headline, "resolved", "s", headline).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec(`INSERT INTO seen_articles`).
		WithArgs("s", url, headline, "resolved").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, tracker.RewriteIdentifier(context.Background(), "s", headline, url))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTrackerStats(t *testing.T) {
	t.Parallel()
	tracker, mock := newMockTracker(t)

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("s").
		WillReturnRows(pgxmock.NewRows([]string{"count", "min", "max"}).AddRow(int64(3), nil, nil))

	stats, err := tracker.Stats(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Count)
	assert.Nil(t, stats.OldestSeenAt)

	require.NoError(t, mock.ExpectationsWereMet())
}
