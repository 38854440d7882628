package enrich

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultBrandfetchBase = "https://api.brandfetch.io"

// maxLogoBytes matches the CRM's photo upload limit.
const maxLogoBytes = 10 << 20

// BrandfetchConfig configures the logo fetcher.
type BrandfetchConfig struct {
	APIKey  string
	BaseURL string // override for tests
	Timeout time.Duration
}

// BrandfetchClient resolves a company's logo image by domain. Every failure
// path returns no logo rather than an error; logo fetching is decoration,
// never a reason to fail a job.
type BrandfetchClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	logger     *slog.Logger
}

// NewBrandfetchClient builds a logo fetcher.
func NewBrandfetchClient(cfg BrandfetchConfig) *BrandfetchClient {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBrandfetchBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BrandfetchClient{
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     cfg.APIKey,
		baseURL:    base,
		logger:     slog.Default().With("component", "brandfetch-client"),
	}
}

// FetchLogo returns the company logo bytes for domain, or nil when no logo
// could be resolved.
func (c *BrandfetchClient) FetchLogo(ctx context.Context, domain string) []byte {
	if c.apiKey == "" {
		c.logger.Warn("Brandfetch API key not set, skipping logo fetch")
		return nil
	}
	domain = CleanDomain(domain)
	if domain == "" {
		return nil
	}

	brand, ok := c.getJSON(ctx, c.baseURL+"/v2/brands/"+domain)
	if !ok {
		return nil
	}

	logoURL := pickLogoURL(brand)
	if logoURL == "" {
		c.logger.Info("No usable logo found", "domain", domain)
		return nil
	}

	img := c.download(ctx, logoURL)
	if img == nil {
		return nil
	}
	c.logger.Info("Fetched company logo", "domain", domain, "size", len(img))
	return img
}

type brandResponse struct {
	Logos []struct {
		Formats []struct {
			Format string `json:"format"`
			Src    string `json:"src"`
		} `json:"formats"`
	} `json:"logos"`
}

// pickLogoURL prefers PNG, falling back to the first available format.
func pickLogoURL(brand brandResponse) string {
	if len(brand.Logos) == 0 {
		return ""
	}
	formats := brand.Logos[0].Formats
	for _, f := range formats {
		if f.Format == "png" {
			return f.Src
		}
	}
	if len(formats) > 0 {
		return formats[0].Src
	}
	return ""
}

func (c *BrandfetchClient) getJSON(ctx context.Context, url string) (brandResponse, bool) {
	var brand brandResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return brand, false
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Brandfetch request failed", "error", err)
		return brand, false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.logger.Info("No brand found", "url", url)
		return brand, false
	}
	if resp.StatusCode >= 400 {
		c.logger.Warn("Brandfetch API error", "status", resp.StatusCode)
		return brand, false
	}
	if err := json.NewDecoder(resp.Body).Decode(&brand); err != nil {
		c.logger.Warn("Unparseable Brandfetch response", "error", err)
		return brand, false
	}
	return brand, true
}

func (c *BrandfetchClient) download(ctx context.Context, url string) []byte {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Logo download failed", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.logger.Warn("Logo download failed", "status", resp.StatusCode)
		return nil
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		c.logger.Warn("Downloaded content is not an image", "content_type", ct)
		return nil
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, maxLogoBytes+1))
	if err != nil {
		c.logger.Warn("Logo download failed", "error", err)
		return nil
	}
	if len(img) > maxLogoBytes {
		c.logger.Warn("Logo exceeds upload size limit", "size", len(img))
		return nil
	}
	return img
}
