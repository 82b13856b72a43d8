package pagemeta

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"archwatch/internal/domain"
)

const (
	minHeroWidth  = 300
	minHeroHeight = 200
)

// URL markers that identify chrome rather than content when image
// dimensions are unknown.
var nonContentMarkers = []string{"logo", "icon", "avatar", "qr-code", "placeholder"}

// ExtractHero picks the representative image for an article page:
// og:image first, then the Twitter card, then the largest plausible
// in-body image.
func ExtractHero(doc *goquery.Document, baseURL string) *domain.HeroImage {
	if content, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok && content != "" {
		return &domain.HeroImage{URL: domain.ResolveURL(baseURL, content), Origin: "scraper"}
	}

	if content, ok := doc.Find(`meta[name="twitter:image"]`).First().Attr("content"); ok && content != "" {
		return &domain.HeroImage{URL: domain.ResolveURL(baseURL, content), Origin: "scraper"}
	}

	var best *domain.HeroImage
	doc.Find("article img, main img, body img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return true
		}

		width := intAttr(img, "width")
		height := intAttr(img, "height")
		if !AcceptableHero(src, width, height) {
			return true
		}

		candidate := &domain.HeroImage{
			URL:    domain.ResolveURL(baseURL, src),
			Width:  width,
			Height: height,
			Origin: "scraper",
		}
		if best == nil || candidate.Width*candidate.Height > best.Width*best.Height {
			best = candidate
		}
		return true
	})

	return best
}

// AcceptableHero applies the size and URL-marker heuristics. When
// dimensions are known, small images are chrome; when unknown, the URL
// markers have to carry the judgement. A non-content marker rejects the
// image regardless of size.
func AcceptableHero(url string, width, height int) bool {
	lowered := strings.ToLower(url)
	for _, marker := range nonContentMarkers {
		if strings.Contains(lowered, marker) {
			return false
		}
	}

	if width > 0 && width < minHeroWidth {
		return false
	}
	if height > 0 && height < minHeroHeight {
		return false
	}
	return true
}

func intAttr(sel *goquery.Selection, name string) int {
	raw, ok := sel.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
