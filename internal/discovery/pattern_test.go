package discovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"archwatch/internal/infrastructure/storage"
	"archwatch/internal/pagemeta"
	"archwatch/internal/scanner"
)

const homepageHTML = `<html><body>
<article>
  <h2>Floating Sauna on a Norwegian Fjord</h2>
  <a href="/projects/floating-sauna">Read more</a>
  <p>A timber sauna moored off the coast.</p>
  <img src="/img/sauna.jpg">
  <span>%s</span>
</article>
<article>
  <h2>Brick Extension in Rotterdam</h2>
  <a href="https://example.com/projects/brick-extension">Read more</a>
</article>
<article>
  <h2></h2>
  <a href="/projects/untitled">Read more</a>
</article>
</body></html>`

func TestParseListings(t *testing.T) {
	t.Parallel()

	html := fmt.Sprintf(homepageHTML, "12 March 2025")
	listings, err := parseListings(html, "https://example.com")
	if err != nil {
		t.Fatalf("parseListings: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("got %d listings, want 2 (untitled dropped): %+v", len(listings), listings)
	}

	sauna := listings[0]
	if sauna.title != "Floating Sauna on a Norwegian Fjord" {
		t.Errorf("title = %q", sauna.title)
	}
	if sauna.link != "https://example.com/projects/floating-sauna" {
		t.Errorf("link = %q, want resolved absolute URL", sauna.link)
	}
	if sauna.excerpt != "A timber sauna moored off the coast." {
		t.Errorf("excerpt = %q", sauna.excerpt)
	}
	if sauna.imageURL != "https://example.com/img/sauna.jpg" {
		t.Errorf("image = %q", sauna.imageURL)
	}
	if sauna.published == nil || !sauna.published.Equal(time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("published = %v", sauna.published)
	}

	brick := listings[1]
	if brick.link != "https://example.com/projects/brick-extension" {
		t.Errorf("link = %q", brick.link)
	}
	if brick.published != nil {
		t.Errorf("published = %v, want nil for undated listing", brick.published)
	}
}

func TestPatternScanEmitsAndRecords(t *testing.T) {
	t.Parallel()

	recentDate := time.Now().UTC().Add(-24 * time.Hour).Format("2 January 2006")
	recent := time.Now().UTC().Add(-24 * time.Hour)
	session := &fakeSession{
		html: map[string]string{
			"https://example.com": fmt.Sprintf(homepageHTML, recentDate),
			"https://example.com/projects/brick-extension": articleHTML(recent),
		},
	}

	store := storage.NewMemory()
	p := NewPattern(PatternDeps{
		Store:    store,
		Browsers: &fakeFactory{session: session},
		Metadata: pagemeta.NewFetcher(nil, 365, testLogger()),
		Logger:   testLogger(),
	})

	ctx := context.Background()
	articles, run, err := p.Scan(ctx, scanner.Request{Source: testSource(), Now: time.Now()})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2: %+v", len(articles), articles)
	}
	if run.Emitted != 2 {
		t.Errorf("emitted = %d, want 2", run.Emitted)
	}

	// The dated listing is emitted without visiting its article page.
	for _, url := range session.navigated {
		if url == "https://example.com/projects/floating-sauna" {
			t.Error("visited article page despite listing date")
		}
	}

	for _, a := range articles {
		if !a.CustomScraped {
			t.Errorf("article %s not marked as scraped", a.Link)
		}
		isNew, err := store.IsNew(ctx, "example", a.Link)
		if err != nil {
			t.Fatalf("IsNew: %v", err)
		}
		if isNew {
			t.Errorf("emitted article %s not recorded", a.Link)
		}
	}
	if !session.closed {
		t.Error("session not closed")
	}
}

func TestPatternScanSkipsSeenListings(t *testing.T) {
	t.Parallel()

	recentDate := time.Now().UTC().Add(-24 * time.Hour).Format("2 January 2006")
	recent := time.Now().UTC().Add(-24 * time.Hour)
	session := &fakeSession{
		html: map[string]string{
			"https://example.com": fmt.Sprintf(homepageHTML, recentDate),
			"https://example.com/projects/brick-extension": articleHTML(recent),
		},
	}

	store := storage.NewMemory()
	ctx := context.Background()
	if err := store.RewriteIdentifier(ctx, "example", "Floating Sauna on a Norwegian Fjord", "https://example.com/projects/floating-sauna"); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	p := NewPattern(PatternDeps{
		Store:    store,
		Browsers: &fakeFactory{session: session},
		Metadata: pagemeta.NewFetcher(nil, 365, testLogger()),
		Logger:   testLogger(),
	})

	articles, _, err := p.Scan(ctx, scanner.Request{Source: testSource(), Now: time.Now()})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want only the unseen one", len(articles))
	}
	if articles[0].Link != "https://example.com/projects/brick-extension" {
		t.Errorf("link = %q", articles[0].Link)
	}
}
