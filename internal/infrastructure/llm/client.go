package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"archwatch/internal/config"
	"archwatch/internal/domain"
	"archwatch/internal/logging"
	"archwatch/internal/match"
	"archwatch/internal/ports"
)

// Client covers every AI operation of the pipeline with one OpenAI
// account: vision headline extraction, semantic link matching, date
// extraction, relevance filtering and summarization.
type Client struct {
	oai         openai.Client
	model       openai.ChatModel
	visionModel openai.ChatModel
	logger      *slog.Logger
}

var (
	_ ports.HeadlineExtractor = (*Client)(nil)
	_ ports.DateExtractor     = (*Client)(nil)
	_ ports.RelevanceFilter   = (*Client)(nil)
	_ ports.Summarizer        = (*Client)(nil)
	_ match.CandidatePicker   = (*Client)(nil)
)

// NewClient builds a client from configuration.
func NewClient(cfg config.OpenAIConfig, logger *slog.Logger) *Client {
	return &Client{
		oai:         openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       openai.ChatModel(cfg.Model),
		visionModel: openai.ChatModel(cfg.VisionModel),
		logger:      logging.Component(logger, "llm"),
	}
}

// ExtractHeadlines reads article headlines off a homepage screenshot, in
// visual order, at most 20.
func (c *Client) ExtractHeadlines(ctx context.Context, screenshot []byte, sourceName string) ([]string, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(screenshot)

	resp, err := c.oai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.visionModel,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(headlineSystemPrompt),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(headlineUserPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("analyze screenshot: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion for %s screenshot", sourceName)
	}

	headlines := ParseHeadlines(resp.Choices[0].Message.Content)
	c.logger.Debug("extracted headlines", "source", sourceName, "count", len(headlines))
	return headlines, nil
}

// PickCandidate asks which enumerated container matches the headline.
// The raw answer goes back to the matcher, which parses index-or-NONE.
func (c *Client) PickCandidate(ctx context.Context, headline, enumerated string) (string, error) {
	resp, err := c.oai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(fmt.Sprintf(matchPrompt, headline, enumerated)),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("pick candidate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion for candidate pick")
	}
	return resp.Choices[0].Message.Content, nil
}

// ExtractDate pulls a publication date out of free article text. A nil
// time with nil error means the model found no date.
func (c *Client) ExtractDate(ctx context.Context, articleText string, today time.Time) (*time.Time, error) {
	resp, err := c.oai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(fmt.Sprintf(dateSystemPrompt, today.Format("2006-01-02"))),
			openai.UserMessage(fmt.Sprintf(dateUserPrompt, articleText)),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("extract date: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}
	return ParseDateResponse(resp.Choices[0].Message.Content), nil
}

// Filter decides whether an article belongs in the digest. A transport or
// parse failure returns the error; the pipeline includes the article in
// that case, so a broken filter never drops news silently.
func (c *Client) Filter(ctx context.Context, article domain.ArticleRecord) (bool, string, error) {
	content := article.Content
	if content == "" {
		content = article.Description
	}
	if len(content) > 1000 {
		content = content[:1000]
	}

	resp, err := c.oai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(filterSystemPrompt),
			openai.UserMessage(fmt.Sprintf(filterUserPrompt, article.Title, article.Link, content)),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return false, "", fmt.Errorf("filter %s: %w", article.Link, err)
	}
	if len(resp.Choices) == 0 {
		return false, "", fmt.Errorf("empty completion for filter")
	}

	include, reason := ParseFilterResponse(resp.Choices[0].Message.Content)
	return include, reason, nil
}

// Summarize writes the editorial headline, summary and tag.
func (c *Client) Summarize(ctx context.Context, article domain.ArticleRecord) (string, string, string, error) {
	resp, err := c.oai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarySystemPrompt),
			openai.UserMessage(fmt.Sprintf(summaryUserPrompt, article.Title, article.Link, article.Description)),
		},
		MaxTokens:   openai.Int(300),
		Temperature: openai.Float(0.3),
	})
	if err != nil {
		return "", "", "", fmt.Errorf("summarize %s: %w", article.Link, err)
	}
	if len(resp.Choices) == 0 {
		return "", "", "", fmt.Errorf("empty completion for summary")
	}

	headline, summary, tag := ParseSummaryResponse(resp.Choices[0].Message.Content)
	return headline, summary, tag, nil
}
