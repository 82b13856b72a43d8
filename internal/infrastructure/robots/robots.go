package robots

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"archwatch/internal/logging"
)

const fetchTimeout = 10 * time.Second

// Gate answers whether a URL may be scraped, honoring each host's
// robots.txt. Verdict data is cached per host for the process lifetime.
// The gate fails open: an unreachable or unparseable robots.txt never
// blocks discovery.
type Gate struct {
	http   *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	hosts map[string]*robotstxt.RobotsData
}

// NewGate builds a gate with its own HTTP client.
func NewGate(logger *slog.Logger) *Gate {
	return &Gate{
		http:   &http.Client{Timeout: fetchTimeout},
		logger: logging.Component(logger, "robots"),
		hosts:  make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether userAgent may fetch rawURL.
func (g *Gate) Allowed(ctx context.Context, rawURL, userAgent string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	if userAgent == "" {
		userAgent = "archwatch"
	}

	data := g.data(ctx, u)
	if data == nil {
		return true
	}
	return data.TestAgent(u.Path, userAgent)
}

func (g *Gate) data(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host

	g.mu.Lock()
	data, cached := g.hosts[key]
	g.mu.Unlock()
	if cached {
		return data
	}

	data = g.fetch(ctx, key)

	g.mu.Lock()
	g.hosts[key] = data
	g.mu.Unlock()
	return data
}

// fetch returns nil when the verdict should be "allow everything".
func (g *Gate) fetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}

	resp, err := g.http.Do(req)
	if err != nil {
		g.logger.Debug("robots.txt unreachable", "origin", origin, "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		g.logger.Debug("robots.txt unparseable", "origin", origin, "error", fmt.Errorf("parse: %w", err))
		return nil
	}
	return data
}
