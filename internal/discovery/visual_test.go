package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"archwatch/internal/config"
	"archwatch/internal/domain"
	"archwatch/internal/infrastructure/storage"
	"archwatch/internal/match"
	"archwatch/internal/pagemeta"
	"archwatch/internal/ports"
	"archwatch/internal/scanner"
)

type fakeSession struct {
	current    string
	html       map[string]string
	candidates []match.Candidate
	closed     bool
	navigated  []string
}

func (f *fakeSession) Navigate(_ context.Context, url string) error {
	f.current = url
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeSession) Content(context.Context) (string, error) {
	return f.html[f.current], nil
}

func (f *fakeSession) Evaluate(_ context.Context, _ string, out any) error {
	data, err := json.Marshal(f.candidates)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (f *fakeSession) Screenshot(context.Context) ([]byte, error) {
	return []byte("png-bytes"), nil
}

func (f *fakeSession) Close(context.Context) error {
	f.closed = true
	return nil
}

type fakeFactory struct {
	session *fakeSession
}

func (f *fakeFactory) NewSession(context.Context, string, time.Duration) (ports.BrowserSession, error) {
	return f.session, nil
}

type fakeHeadlines struct {
	headlines []string
}

func (f *fakeHeadlines) ExtractHeadlines(context.Context, []byte, string) ([]string, error) {
	return f.headlines, nil
}

type denyPolicy struct{}

func (denyPolicy) Allowed(context.Context, string, string) bool { return false }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSource() config.SourceConfig {
	return config.SourceConfig{
		ID:                "example",
		Name:              "Example",
		BaseURL:           "https://example.com",
		MaxArticleAgeDays: 3,
	}
}

func articleHTML(published time.Time) string {
	return fmt.Sprintf(
		`<html><body><article><time datetime="%s"></time><p>Body text.</p></article></body></html>`,
		published.Format(time.RFC3339))
}

func newVisual(store ports.SeenStore, session *fakeSession, headlines []string, maxPerRun int) *Visual {
	return NewVisual(VisualDeps{
		Store:     store,
		Browsers:  &fakeFactory{session: session},
		Headlines: &fakeHeadlines{headlines: headlines},
		Matchers:  []match.Matcher{match.Containment{}},
		Metadata:  pagemeta.NewFetcher(nil, 365, testLogger()),
		MaxPerRun: maxPerRun,
		Logger:    testLogger(),
	})
}

func TestScanResolvesNewHeadlines(t *testing.T) {
	t.Parallel()

	recent := time.Now().UTC().Add(-24 * time.Hour)
	session := &fakeSession{
		html: map[string]string{
			"https://example.com/alpha": articleHTML(recent),
			"https://example.com/beta":  articleHTML(recent),
		},
		candidates: []match.Candidate{
			{Index: 0, Text: "Alpha Tower Completed", Href: "https://example.com/alpha", Excerpt: "A tower."},
			{Index: 1, Text: "Beta Museum Wins Award", Href: "https://example.com/beta", ImageURL: "https://example.com/beta.jpg"},
			{Index: 2, Text: "Unrelated Listing", Href: "https://example.com/other"},
		},
	}

	store := storage.NewMemory()
	ctx := context.Background()
	seeded := []domain.SeenRecord{
		{Identifier: "Gamma Pavilion Opens", Status: domain.SeenPlaceholder},
		{Identifier: "Delta Bridge Repaired", Status: domain.SeenPlaceholder},
		{Identifier: "Epsilon Hall Restored", Status: domain.SeenPlaceholder},
	}
	if _, err := store.MarkSeen(ctx, "example", seeded); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	headlines := []string{
		"Alpha Tower Completed",
		"Beta Museum Wins Award",
		"Gamma Pavilion Opens",
		"Delta Bridge Repaired",
		"Epsilon Hall Restored",
	}
	v := newVisual(store, session, headlines, 10)

	articles, run, err := v.Scan(ctx, scanner.Request{Source: testSource(), Now: time.Now()})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2: %+v", len(articles), articles)
	}
	if run.Extracted != 5 || run.New != 2 || run.Emitted != 2 {
		t.Errorf("run counters = %+v", run)
	}

	alpha := articles[0]
	if alpha.Link != "https://example.com/alpha" {
		t.Errorf("link = %q", alpha.Link)
	}
	if alpha.GUID != alpha.Link {
		t.Errorf("guid = %q, want the link", alpha.GUID)
	}
	if !alpha.CustomScraped {
		t.Error("article not marked as scraped")
	}
	if alpha.Published == nil {
		t.Error("published date missing")
	}

	beta := articles[1]
	if beta.HeroImage == nil || beta.HeroImage.URL != "https://example.com/beta.jpg" {
		t.Errorf("hero image = %+v", beta.HeroImage)
	}

	if !session.closed {
		t.Error("session not closed")
	}

	// Every headline must now read as seen, resolved ones under their URL.
	stats, err := store.Stats(ctx, "example")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Count != 5 {
		t.Errorf("store has %d rows, want 5", stats.Count)
	}
	for _, h := range headlines {
		isNew, err := store.IsNew(ctx, "example", h)
		if err != nil {
			t.Fatalf("IsNew(%q): %v", h, err)
		}
		if isNew {
			t.Errorf("headline %q still reads as new", h)
		}
	}
	for _, link := range []string{"https://example.com/alpha", "https://example.com/beta"} {
		isNew, err := store.IsNew(ctx, "example", link)
		if err != nil {
			t.Fatalf("IsNew(%q): %v", link, err)
		}
		if isNew {
			t.Errorf("resolved link %q still reads as new", link)
		}
	}
}

func TestScanPersistsUnresolvedAsPlaceholders(t *testing.T) {
	t.Parallel()

	session := &fakeSession{html: map[string]string{}}
	store := storage.NewMemory()
	v := newVisual(store, session, []string{"Headline With No Link"}, 10)

	ctx := context.Background()
	articles, run, err := v.Scan(ctx, scanner.Request{Source: testSource(), Now: time.Now()})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(articles) != 0 {
		t.Fatalf("got %d articles, want 0", len(articles))
	}
	if run.SkippedUnresolved != 1 {
		t.Errorf("skipped_unresolved = %d, want 1", run.SkippedUnresolved)
	}

	isNew, err := store.IsNew(ctx, "example", "Headline With No Link")
	if err != nil {
		t.Fatalf("IsNew: %v", err)
	}
	if isNew {
		t.Error("unresolved headline was not persisted as placeholder")
	}
}

func TestScanCapsHeadlinesPerRun(t *testing.T) {
	t.Parallel()

	recent := time.Now().UTC().Add(-24 * time.Hour)
	session := &fakeSession{
		html: map[string]string{
			"https://example.com/alpha": articleHTML(recent),
			"https://example.com/beta":  articleHTML(recent),
		},
		candidates: []match.Candidate{
			{Index: 0, Text: "Alpha Tower Completed", Href: "https://example.com/alpha"},
			{Index: 1, Text: "Beta Museum Wins Award", Href: "https://example.com/beta"},
		},
	}
	store := storage.NewMemory()
	v := newVisual(store, session, []string{"Alpha Tower Completed", "Beta Museum Wins Award"}, 1)

	ctx := context.Background()
	articles, _, err := v.Scan(ctx, scanner.Request{Source: testSource(), Now: time.Now()})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1 under cap", len(articles))
	}

	// The capped headline still lands in the store as a placeholder.
	stats, err := store.Stats(ctx, "example")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Count != 2 {
		t.Errorf("store has %d rows, want 2", stats.Count)
	}
}

func TestScanRespectsRobotsPolicy(t *testing.T) {
	t.Parallel()

	session := &fakeSession{}
	v := NewVisual(VisualDeps{
		Store:     storage.NewMemory(),
		Browsers:  &fakeFactory{session: session},
		Headlines: &fakeHeadlines{headlines: []string{"Never Extracted"}},
		Matchers:  []match.Matcher{match.Containment{}},
		Metadata:  pagemeta.NewFetcher(nil, 365, testLogger()),
		Policy:    denyPolicy{},
		Logger:    testLogger(),
	})

	articles, _, err := v.Scan(context.Background(), scanner.Request{Source: testSource(), Now: time.Now()})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if articles != nil {
		t.Fatalf("got %v, want nil for disallowed homepage", articles)
	}
	if len(session.navigated) != 0 {
		t.Error("session navigated despite robots denial")
	}
}

func TestScanSkipsTooOldButRecordsThem(t *testing.T) {
	t.Parallel()

	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	session := &fakeSession{
		html: map[string]string{
			"https://example.com/alpha": articleHTML(old),
		},
		candidates: []match.Candidate{
			{Index: 0, Text: "Alpha Tower Completed", Href: "https://example.com/alpha"},
		},
	}
	store := storage.NewMemory()
	v := newVisual(store, session, []string{"Alpha Tower Completed"}, 10)

	ctx := context.Background()
	articles, run, err := v.Scan(ctx, scanner.Request{Source: testSource(), Now: time.Now()})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(articles) != 0 {
		t.Fatalf("got %d articles, want 0 for a stale article", len(articles))
	}
	if run.SkippedOld != 1 {
		t.Errorf("skipped_old = %d, want 1", run.SkippedOld)
	}

	// Recorded under its resolved URL so the headline never reads new again.
	isNew, err := store.IsNew(ctx, "example", "https://example.com/alpha")
	if err != nil {
		t.Fatalf("IsNew: %v", err)
	}
	if isNew {
		t.Error("stale article was not recorded as seen")
	}
	isNew, err = store.IsNew(ctx, "example", "Alpha Tower Completed")
	if err != nil {
		t.Fatalf("IsNew: %v", err)
	}
	if isNew {
		t.Error("stale headline still reads as new")
	}
}
