package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// HeroImage is the representative image chosen for an article.
type HeroImage struct {
	URL    string
	Width  int
	Height int
	// Origin records which stage produced the reference ("rss" or "scraper").
	Origin string
	// Bytes is populated by the image downloader just before publishing.
	Bytes       []byte
	ContentType string
}

// ArticleRecord is the unit handed from discovery to the downstream stages.
type ArticleRecord struct {
	Title         string
	Link          string
	Description   string
	Published     *time.Time
	GUID          string
	SourceID      string
	SourceName    string
	CustomScraped bool
	HeroImage     *HeroImage

	// Filled by the AI stages of the pipeline.
	Headline string
	Summary  string
	Tag      string
	Content  string
}

// NewArticleRecord validates the invariants every consumer relies on:
// a non-empty title, an absolute link, and a known source.
func NewArticleRecord(title, link, sourceID, sourceName string) (ArticleRecord, error) {
	title = CleanText(title)
	if title == "" {
		return ArticleRecord{}, fmt.Errorf("article has no title")
	}
	u, err := url.Parse(link)
	if err != nil {
		return ArticleRecord{}, fmt.Errorf("parse link %q: %w", link, err)
	}
	if !u.IsAbs() {
		return ArticleRecord{}, fmt.Errorf("link %q is not absolute", link)
	}
	if sourceID == "" || sourceName == "" {
		return ArticleRecord{}, fmt.Errorf("article %q has no source", title)
	}
	return ArticleRecord{
		Title:      title,
		Link:       u.String(),
		GUID:       u.String(),
		SourceID:   sourceID,
		SourceName: sourceName,
	}, nil
}

// AgeDays reports how many whole days ago the article was published,
// or -1 when no date is known.
func (a ArticleRecord) AgeDays(now time.Time) int {
	if a.Published == nil {
		return -1
	}
	return int(now.Sub(*a.Published).Hours() / 24)
}

// CleanText collapses whitespace runs and trims the result.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ResolveURL turns a possibly relative URL into an absolute one against base.
// Protocol-relative URLs get https.
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
