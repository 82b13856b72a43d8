package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/image/webp"

	"archwatch/internal/logging"
	"archwatch/internal/ports"
)

const (
	downloadTimeout = 15 * time.Second
	maxImageBytes   = 20 << 20
	jpegQuality     = 85
)

// Some hosts refuse requests without a browser user agent.
const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Downloader fetches hero images and normalizes them to JPEG so the
// object store and Telegram only ever see one format.
type Downloader struct {
	http   *http.Client
	logger *slog.Logger
}

var _ ports.ImageFetcher = (*Downloader)(nil)

// NewDownloader builds a downloader with its own HTTP client.
func NewDownloader(logger *slog.Logger) *Downloader {
	return &Downloader{
		http:   &http.Client{Timeout: downloadTimeout},
		logger: logging.Component(logger, "images"),
	}
}

// Fetch downloads the image and converts WebP, PNG and GIF to JPEG.
// JPEGs pass through untouched; unknown formats are returned as-is with
// their reported content type.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image body from %s", url)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}

	converted, err := toJPEG(data, contentType)
	if err != nil {
		d.logger.Warn("image conversion failed, keeping original",
			"url", url, "content_type", contentType, "error", err)
		return data, contentType, nil
	}
	return converted, "image/jpeg", nil
}

// toJPEG decodes the supported source formats and re-encodes as JPEG.
func toJPEG(data []byte, contentType string) ([]byte, error) {
	if contentType == "image/jpeg" || contentType == "image/jpg" {
		return data, nil
	}

	var (
		img image.Image
		err error
	)
	switch contentType {
	case "image/webp":
		img, err = webp.Decode(bytes.NewReader(data))
	case "image/png":
		img, err = png.Decode(bytes.NewReader(data))
	case "image/gif":
		img, err = gif.Decode(bytes.NewReader(data))
	default:
		// Content type missing or wrong; sniff the actual format.
		img, _, err = image.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", contentType, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
