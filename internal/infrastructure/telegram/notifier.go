package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"archwatch/internal/domain"
	"archwatch/internal/ports"
)

// Telegram caps messages at 4096 characters; digests are chunked under
// a safety margin.
const maxMessageLen = 3800

// Notifier sends digests to a Telegram channel via bot API.
type Notifier struct {
	botToken  string
	channelID string
	client    *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and channel identifier.
func NewNotifier(botToken, channelID string) *Notifier {
	return &Notifier{
		botToken:  botToken,
		channelID: channelID,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// PublishDigest renders the articles as a Markdown digest and posts it,
// split into multiple messages when it exceeds the Telegram limit.
func (n *Notifier) PublishDigest(ctx context.Context, articles []domain.ArticleRecord) error {
	if len(articles) == 0 {
		return nil
	}

	for _, chunk := range chunkDigest(FormatDigest(articles)) {
		if err := n.send(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// NotifyError posts a status line; used for run failures.
func (n *Notifier) NotifyError(ctx context.Context, message string) error {
	return n.send(ctx, "⚠️ "+message)
}

// FormatDigest renders the Markdown digest body.
func FormatDigest(articles []domain.ArticleRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Architecture digest — %d new*\n", len(articles))

	for _, a := range articles {
		title := a.Headline
		if title == "" {
			title = a.Title
		}
		fmt.Fprintf(&b, "\n*%s*\n", escapeMarkdown(title))
		if a.Summary != "" {
			fmt.Fprintf(&b, "%s\n", escapeMarkdown(a.Summary))
		}
		fmt.Fprintf(&b, "[%s](%s)", escapeMarkdown(a.SourceName), a.Link)
		if a.Tag != "" {
			fmt.Fprintf(&b, " #%s", strings.ReplaceAll(a.Tag, " ", "_"))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// chunkDigest splits on article boundaries, never mid-entry.
func chunkDigest(digest string) []string {
	if len(digest) <= maxMessageLen {
		return []string{digest}
	}

	var chunks []string
	var current strings.Builder
	for _, block := range strings.Split(digest, "\n\n") {
		if current.Len() > 0 && current.Len()+len(block)+2 > maxMessageLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(block)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer("*", "\\*", "_", "\\_", "[", "\\[", "`", "\\`")
	return replacer.Replace(s)
}

func (n *Notifier) send(ctx context.Context, text string) error {
	if n.botToken == "" || n.channelID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.channelID)
	form.Set("text", text)
	form.Set("parse_mode", "Markdown")
	form.Set("disable_web_page_preview", "false")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	return nil
}
