// Package scraper fetches a company website, discovers its key pages, and
// reduces each page to markdown suitable for LLM analysis.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/revcrew/leadflow/pkg/pipeline"
)

// DefaultMaxPages bounds how many pages one site scrape fetches,
// homepage included.
const DefaultMaxPages = 5

// DefaultMaxPageChars bounds the markdown kept per page.
const DefaultMaxPageChars = 5000

// pagePatterns maps a page type to the href keywords that identify it.
var pagePatterns = map[string][]string{
	"about":    {"about", "about-us", "company", "who-we-are"},
	"products": {"products", "services", "solutions", "features"},
	"pricing":  {"pricing", "plans", "cost"},
	"careers":  {"careers", "jobs", "join-us", "hiring", "work-with-us"},
	"blog":     {"blog", "news", "insights", "resources"},
}

// Config configures the scraper.
type Config struct {
	Timeout      time.Duration
	MaxPages     int
	MaxPageChars int
}

// Scraper fetches and converts website pages.
type Scraper struct {
	httpClient   *http.Client
	converter    *md.Converter
	maxPages     int
	maxPageChars int
	logger       *slog.Logger
}

// New builds a scraper.
func New(cfg Config) *Scraper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return NewWithHTTPClient(cfg, &http.Client{Timeout: timeout})
}

// NewWithHTTPClient builds a scraper around an existing HTTP client.
// Used by tests.
func NewWithHTTPClient(cfg Config, httpClient *http.Client) *Scraper {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	maxChars := cfg.MaxPageChars
	if maxChars <= 0 {
		maxChars = DefaultMaxPageChars
	}
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Scraper{
		httpClient:   httpClient,
		converter:    converter,
		maxPages:     maxPages,
		maxPageChars: maxChars,
		logger:       slog.Default().With("component", "scraper"),
	}
}

// ScrapeSite fetches the homepage at baseURL, discovers key pages from its
// links, and returns page type to markdown. The homepage failing is an
// error; individual discovered pages failing is not.
func (s *Scraper) ScrapeSite(ctx context.Context, baseURL string) (map[string]string, error) {
	home, err := url.Parse(baseURL)
	if err != nil {
		return nil, pipeline.Permanentf("invalid site url %q: %v", baseURL, err)
	}

	homeHTML, err := s.fetch(ctx, home.String())
	if err != nil {
		return nil, err
	}

	pages := map[string]string{
		"homepage": s.toMarkdown(home, homeHTML),
	}

	discovered := discoverPages(home, homeHTML)
	budget := s.maxPages - 1
	for _, entry := range discovered {
		if budget <= 0 {
			break
		}
		budget--
		pageHTML, err := s.fetch(ctx, entry.url)
		if err != nil {
			s.logger.Warn("Skipping unreachable page", "page", entry.kind, "url", entry.url, "error", err)
			continue
		}
		pageURL, _ := url.Parse(entry.url)
		pages[entry.kind] = s.toMarkdown(pageURL, pageHTML)
	}

	s.logger.Info("Site scrape complete", "url", baseURL, "pages", len(pages))
	return pages, nil
}

// Combine flattens scraped pages into one labelled document, homepage
// first, remaining pages in stable order.
func Combine(pages map[string]string) string {
	kinds := make([]string, 0, len(pages))
	for kind := range pages {
		if kind != "homepage" {
			kinds = append(kinds, kind)
		}
	}
	sort.Strings(kinds)
	if _, ok := pages["homepage"]; ok {
		kinds = append([]string{"homepage"}, kinds...)
	}

	var b strings.Builder
	for _, kind := range kinds {
		fmt.Fprintf(&b, "=== %s PAGE ===\n%s\n\n", strings.ToUpper(kind), pages[kind])
	}
	return strings.TrimSpace(b.String())
}

func (s *Scraper) fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request for %s: %w", pageURL, err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", pipeline.Transient("fetching "+pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", pipeline.ClassifyHTTPStatus(resp.StatusCode, "fetching "+pageURL)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", pipeline.Transient("reading "+pageURL, err)
	}
	return string(body), nil
}

// toMarkdown extracts the readable portion of a page and converts it to
// markdown, bounded to the per-page budget. Extraction failures fall back
// to converting the raw page.
func (s *Scraper) toMarkdown(pageURL *url.URL, html string) string {
	content := html
	if article, err := readability.FromReader(strings.NewReader(html), pageURL); err == nil && article.Content != "" {
		content = article.Content
	}

	markdown, err := s.converter.ConvertString(content)
	if err != nil {
		s.logger.Warn("Markdown conversion failed, keeping raw text", "url", pageURL, "error", err)
		markdown = content
	}
	markdown = strings.TrimSpace(markdown)
	if len(markdown) > s.maxPageChars {
		markdown = markdown[:s.maxPageChars]
	}
	return markdown
}

type discoveredPage struct {
	kind string
	url  string
}

// discoverPages scans homepage links for the key page types, first match
// per type wins. Only same-host links qualify.
func discoverPages(home *url.URL, homeHTML string) []discoveredPage {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(homeHTML))
	if err != nil {
		return nil
	}

	found := make(map[string]string)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.ToLower(strings.TrimSpace(href))
		if href == "" || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := home.ResolveReference(ref)
		if resolved.Host != home.Host {
			return
		}
		for kind, keywords := range pagePatterns {
			if _, ok := found[kind]; ok {
				continue
			}
			for _, keyword := range keywords {
				if strings.Contains(href, keyword) {
					found[kind] = resolved.String()
					break
				}
			}
		}
	})

	kinds := make([]string, 0, len(found))
	for kind := range found {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	pages := make([]discoveredPage, 0, len(kinds))
	for _, kind := range kinds {
		pages = append(pages, discoveredPage{kind: kind, url: found[kind]})
	}
	return pages
}
