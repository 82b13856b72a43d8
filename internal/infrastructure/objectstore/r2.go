package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"archwatch/internal/config"
	"archwatch/internal/domain"
	"archwatch/internal/logging"
	"archwatch/internal/ports"
)

// R2 publishes candidate articles to an S3-compatible bucket. Objects
// land under a date-based prefix: YYYY/MonthName/Week-N/YYYY-MM-DD/.
type R2 struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

var _ ports.CandidateStore = (*R2)(nil)

// candidatePayload is the JSON document written per article.
type candidatePayload struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	Description string     `json:"description,omitempty"`
	Published   *time.Time `json:"published,omitempty"`
	SourceID    string     `json:"source_id"`
	SourceName  string     `json:"source_name"`
	Headline    string     `json:"ai_headline,omitempty"`
	Summary     string     `json:"ai_summary,omitempty"`
	Tag         string     `json:"tag,omitempty"`
	ImageKey    string     `json:"image_key,omitempty"`
	SavedAt     time.Time  `json:"saved_at"`
}

// NewR2 connects to the bucket and verifies it exists. Callers treat a
// connection error as "publishing disabled", not as fatal.
func NewR2(ctx context.Context, cfg config.ObjectStoreConfig, logger *slog.Logger) (*R2, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	ok, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !ok {
		return nil, fmt.Errorf("bucket %s does not exist", cfg.Bucket)
	}

	return &R2{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logging.Component(logger, "objectstore"),
		now:    time.Now,
	}, nil
}

// SaveCandidate writes the article JSON, and its hero image when bytes
// are attached, under today's prefix. Returns the JSON object key.
func (r *R2) SaveCandidate(ctx context.Context, article domain.ArticleRecord) (string, error) {
	id := uuid.NewString()
	prefix := r.datePrefix(r.now().UTC())

	payload := candidatePayload{
		ID:          id,
		Title:       article.Title,
		Link:        article.Link,
		Description: article.Description,
		Published:   article.Published,
		SourceID:    article.SourceID,
		SourceName:  article.SourceName,
		Headline:    article.Headline,
		Summary:     article.Summary,
		Tag:         article.Tag,
		SavedAt:     r.now().UTC(),
	}

	if article.HeroImage != nil && len(article.HeroImage.Bytes) > 0 {
		imageKey := fmt.Sprintf("%s/images/%s.jpg", prefix, id)
		if err := r.put(ctx, imageKey, article.HeroImage.Bytes, article.HeroImage.ContentType); err != nil {
			// The article still gets published without its image.
			r.logger.Warn("image upload failed", "key", imageKey, "error", err)
		} else {
			payload.ImageKey = imageKey
		}
	}

	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal candidate: %w", err)
	}

	key := fmt.Sprintf("%s/articles/%s.json", prefix, id)
	if err := r.put(ctx, key, body, "application/json"); err != nil {
		return "", err
	}
	r.logger.Info("candidate saved", "key", key, "link", article.Link)
	return key, nil
}

// SaveManifest writes the run summary listing every emitted article.
func (r *R2) SaveManifest(ctx context.Context, articles []domain.ArticleRecord) (string, error) {
	type entry struct {
		Title    string `json:"title"`
		Link     string `json:"link"`
		SourceID string `json:"source_id"`
		Tag      string `json:"tag,omitempty"`
	}

	manifest := struct {
		GeneratedAt time.Time `json:"generated_at"`
		Count       int       `json:"count"`
		Articles    []entry   `json:"articles"`
	}{
		GeneratedAt: r.now().UTC(),
		Count:       len(articles),
		Articles:    make([]entry, 0, len(articles)),
	}
	for _, a := range articles {
		manifest.Articles = append(manifest.Articles, entry{
			Title:    a.Title,
			Link:     a.Link,
			SourceID: a.SourceID,
			Tag:      a.Tag,
		})
	}

	body, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	key := fmt.Sprintf("%s/manifest.json", r.datePrefix(r.now().UTC()))
	if err := r.put(ctx, key, body, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// SaveRunReport writes the per-source scraping counters for the run.
func (r *R2) SaveRunReport(ctx context.Context, reports []domain.RunStats) (string, error) {
	type sourceReport struct {
		SourceID          string `json:"source_id"`
		Extracted         int    `json:"extracted"`
		New               int    `json:"new"`
		Resolved          int    `json:"resolved"`
		Dated             int    `json:"dated"`
		Emitted           int    `json:"emitted"`
		SkippedOld        int    `json:"skipped_old"`
		SkippedUnresolved int    `json:"skipped_unresolved"`
		Errors            int    `json:"errors"`
	}

	report := struct {
		GeneratedAt time.Time      `json:"generated_at"`
		Sources     []sourceReport `json:"sources"`
		Emitted     int            `json:"emitted_total"`
		Errors      int            `json:"errors_total"`
	}{
		GeneratedAt: r.now().UTC(),
		Sources:     make([]sourceReport, 0, len(reports)),
	}
	for _, s := range reports {
		report.Sources = append(report.Sources, sourceReport{
			SourceID:          s.SourceID,
			Extracted:         s.Extracted,
			New:               s.New,
			Resolved:          s.Resolved,
			Dated:             s.Dated,
			Emitted:           s.Emitted,
			SkippedOld:        s.SkippedOld,
			SkippedUnresolved: s.SkippedUnresolved,
			Errors:            s.Errors,
		})
		report.Emitted += s.Emitted
		report.Errors += s.Errors
	}

	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal run report: %w", err)
	}

	key := fmt.Sprintf("%s/scraping_stats.json", r.datePrefix(r.now().UTC()))
	if err := r.put(ctx, key, body, "application/json"); err != nil {
		return "", err
	}
	r.logger.Info("run report saved", "key", key, "sources", len(reports))
	return key, nil
}

func (r *R2) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := r.client.PutObject(ctx, r.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// datePrefix renders YYYY/MonthName/Week-N/YYYY-MM-DD, week counted
// within the month.
func (r *R2) datePrefix(t time.Time) string {
	week := (t.Day()-1)/7 + 1
	p := fmt.Sprintf("%d/%s/Week-%d/%s", t.Year(), t.Month().String(), week, t.Format("2006-01-02"))
	if r.prefix != "" {
		return r.prefix + "/" + p
	}
	return p
}
