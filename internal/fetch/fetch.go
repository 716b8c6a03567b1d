// Package fetch implements article acquisition for the analysis
// pipeline: a topic-page scraper for news portals and an RSS feed
// source for deployments without a scrapable index.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/seenimoa/newsbrief/internal/infra"
	"github.com/seenimoa/newsbrief/pkg/models"
)

// userAgent is sent on scraping requests; some portals reject the
// default Go client UA.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// TopicScraper fetches articles from a news portal's per-topic index
// page and extracts each linked article's body text.
type TopicScraper struct {
	baseURL  string
	limit    int
	client   *http.Client
	throttle *infra.Throttle
}

// NewTopicScraper creates a scraper against baseURL returning at most
// limit articles per query.
func NewTopicScraper(baseURL string, limit int, timeout time.Duration) *TopicScraper {
	return &TopicScraper{
		baseURL:  strings.TrimRight(baseURL, "/"),
		limit:    limit,
		client:   &http.Client{Timeout: timeout},
		throttle: infra.NewThrottle(2, time.Second), // polite: 2 req/s upstream
	}
}

// Fetch returns up to the configured number of articles for a company
// from the portal's topic index. Articles whose body cannot be
// extracted are skipped rather than failing the batch.
func (s *TopicScraper) Fetch(ctx context.Context, company string) ([]models.Article, error) {
	indexURL := fmt.Sprintf("%s/topic/%s", s.baseURL, url.PathEscape(company))
	doc, err := s.getDocument(ctx, indexURL)
	if err != nil {
		return nil, fmt.Errorf("fetch topic index: %w", err)
	}

	var articles []models.Article
	doc.Find("li.eventTracking").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		link := li.Find("a.thumb")
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return true
		}
		title := strings.TrimSpace(li.AttrOr("title", link.AttrOr("title", "")))
		if title == "" {
			title = strings.TrimSpace(link.Text())
		}

		body, err := s.articleBody(ctx, href)
		if err != nil || body == "" {
			return true // skip unreadable articles
		}

		articles = append(articles, models.Article{
			Title:   title,
			URL:     href,
			RawText: body,
		})
		return len(articles) < s.limit
	})

	return articles, nil
}

// articleBody fetches one article page and merges its leaf paragraph
// text, mirroring how portal pages carry prose in childless <p> tags.
func (s *TopicScraper) articleBody(ctx context.Context, articleURL string) (string, error) {
	doc, err := s.getDocument(ctx, articleURL)
	if err != nil {
		return "", err
	}

	var parts []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if p.Children().Length() > 0 {
			return
		}
		if text := strings.TrimSpace(p.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, " "), nil
}

func (s *TopicScraper) getDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := s.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// FeedFetcher sources articles from RSS feeds, keeping items that
// mention the queried company in their title or description.
type FeedFetcher struct {
	feedURLs []string
	limit    int
	parser   *gofeed.Parser
	throttle *infra.Throttle
}

// NewFeedFetcher creates a feed-backed fetcher returning at most limit
// matching articles per query.
func NewFeedFetcher(feedURLs []string, limit int, timeout time.Duration) *FeedFetcher {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: timeout}
	parser.UserAgent = userAgent
	return &FeedFetcher{
		feedURLs: feedURLs,
		limit:    limit,
		parser:   parser,
		throttle: infra.NewThrottle(2, time.Second),
	}
}

// Fetch scans all configured feeds for items mentioning the company.
// Failing feeds are skipped; the batch fails only if every feed fails.
func (f *FeedFetcher) Fetch(ctx context.Context, company string) ([]models.Article, error) {
	needle := strings.ToLower(company)

	var articles []models.Article
	var lastErr error
	failed := 0

	for _, feedURL := range f.feedURLs {
		if err := f.throttle.Wait(ctx); err != nil {
			return nil, err
		}
		feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			failed++
			lastErr = fmt.Errorf("parse feed %s: %w", feedURL, err)
			continue
		}
		for _, item := range feed.Items {
			if len(articles) >= f.limit {
				return articles, nil
			}
			body := StripHTML(item.Description)
			if !strings.Contains(strings.ToLower(item.Title+" "+body), needle) {
				continue
			}
			a := models.Article{
				Title:   item.Title,
				URL:     item.Link,
				RawText: body,
			}
			if item.PublishedParsed != nil {
				a.PublishedAt = *item.PublishedParsed
			}
			articles = append(articles, a)
		}
	}

	if len(articles) == 0 && failed == len(f.feedURLs) && lastErr != nil {
		return nil, lastErr
	}
	return articles, nil
}

// StripHTML removes markup from a fragment, returning trimmed text.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}
