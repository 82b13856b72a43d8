package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"archwatch/internal/ports"
)

// Factory opens rendered-page sessions against a Browserless-compatible
// HTTP endpoint. Each session keeps its own current URL; the remote side
// renders the page fresh for every content, script and screenshot call.
type Factory struct {
	endpoint string
	token    string
}

var _ ports.BrowserFactory = (*Factory)(nil)

// NewFactory points at the remote rendering service, e.g.
// http://browserless:3000. An optional token is sent as a query parameter.
func NewFactory(endpoint, token string) *Factory {
	return &Factory{endpoint: endpoint, token: token}
}

// NewSession opens a session with a per-call timeout and optional user
// agent override.
func (f *Factory) NewSession(_ context.Context, userAgent string, timeout time.Duration) (ports.BrowserSession, error) {
	if f.endpoint == "" {
		return nil, fmt.Errorf("browser endpoint is not configured")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Session{
		endpoint:  f.endpoint,
		token:     f.token,
		userAgent: userAgent,
		timeout:   timeout,
		http:      &http.Client{Timeout: timeout + 10*time.Second},
	}, nil
}

// Session drives one page at a time through the rendering service.
type Session struct {
	endpoint  string
	token     string
	userAgent string
	timeout   time.Duration
	http      *http.Client
	current   string
	html      []byte
}

var _ ports.BrowserSession = (*Session)(nil)

type gotoOptions struct {
	WaitUntil string `json:"waitUntil"`
	Timeout   int64  `json:"timeout"`
}

// Navigate renders the target URL once and keeps the HTML for Content,
// so a navigate-then-read sequence costs a single render.
func (s *Session) Navigate(ctx context.Context, url string) error {
	var html []byte
	payload := map[string]any{
		"url":         url,
		"gotoOptions": gotoOptions{WaitUntil: "networkidle2", Timeout: s.timeout.Milliseconds()},
	}
	if err := s.post(ctx, "/content", payload, bytesSink(&html)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	s.current = url
	s.html = html
	return nil
}

// Content returns the rendered HTML of the current page, captured at
// Navigate time.
func (s *Session) Content(ctx context.Context) (string, error) {
	if s.current == "" {
		return "", fmt.Errorf("no page loaded")
	}
	if s.html != nil {
		return string(s.html), nil
	}
	payload := map[string]any{
		"url":         s.current,
		"gotoOptions": gotoOptions{WaitUntil: "networkidle2", Timeout: s.timeout.Milliseconds()},
	}
	var html []byte
	if err := s.post(ctx, "/content", payload, bytesSink(&html)); err != nil {
		return "", fmt.Errorf("content of %s: %w", s.current, err)
	}
	s.html = html
	return string(html), nil
}

// Evaluate runs a JS function body on the current page and decodes its
// JSON return value into out.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	if s.current == "" {
		return fmt.Errorf("no page loaded")
	}
	code := fmt.Sprintf(
		`export default async function ({ page }) { await page.goto(%q, { waitUntil: "networkidle2", timeout: %d }); const data = await page.evaluate(() => { %s }); return { data }; }`,
		s.current, s.timeout.Milliseconds(), script)

	payload := map[string]any{"code": code}
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	if err := s.post(ctx, "/function", payload, jsonSink(&resp)); err != nil {
		return fmt.Errorf("evaluate on %s: %w", s.current, err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("decode evaluate result: %w", err)
	}
	return nil
}

// Screenshot captures a full-page PNG of the current page.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	if s.current == "" {
		return nil, fmt.Errorf("no page loaded")
	}
	payload := map[string]any{
		"url":         s.current,
		"options":     map[string]any{"fullPage": true, "type": "png"},
		"gotoOptions": gotoOptions{WaitUntil: "networkidle2", Timeout: s.timeout.Milliseconds()},
	}
	var shot []byte
	if err := s.post(ctx, "/screenshot", payload, bytesSink(&shot)); err != nil {
		return nil, fmt.Errorf("screenshot of %s: %w", s.current, err)
	}
	return shot, nil
}

// Close releases the session. The rendering service is stateless per
// request, so only local state is dropped.
func (s *Session) Close(_ context.Context) error {
	s.current = ""
	s.html = nil
	return nil
}

// sink decodes a response body; the service returns either raw bytes
// (HTML, screenshots) or JSON documents.
type sink func(body io.Reader) error

func bytesSink(dst *[]byte) sink {
	return func(body io.Reader) error {
		data, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		*dst = data
		return nil
	}
}

func jsonSink(dst any) sink {
	return func(body io.Reader) error {
		if err := json.NewDecoder(body).Decode(dst); err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
		return nil
	}
}

func (s *Session) post(ctx context.Context, path string, payload any, read sink) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	url := s.endpoint + path
	if s.token != "" {
		url += "?token=" + s.token
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}

	if read == nil {
		return nil
	}
	return read(resp.Body)
}
