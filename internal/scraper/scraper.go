package scraper

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"

	"slidecast/internal/models"
)

var ErrInvalidURL = fmt.Errorf("invalid url")

// Scraper extracts readable article content from web pages. It is the
// content-source collaborator for URL submissions; the pipeline only ever
// sees the (title, author, text, top image) tuple it produces.
type Scraper struct {
	timeout time.Duration
}

func New(timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Scraper{timeout: timeout}
}

// Extract fetches the page and pulls out the main article content.
func (s *Scraper) Extract(ctx context.Context, rawURL string) (*models.ArticleContent, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	log.Printf("[Scraper] Extracting article from %s", rawURL)

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	article, err := readability.FromURL(rawURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to extract article from %s: %w", rawURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return nil, fmt.Errorf("no readable text found at %s", rawURL)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = rawURL
	}

	log.Printf("[Scraper] Extracted %q (%d chars)", title, len(text))

	return &models.ArticleContent{
		Title:    title,
		Author:   strings.TrimSpace(article.Byline),
		Text:     text,
		TopImage: article.Image,
	}, nil
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return nil
}
