package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/schemas"
	"github.com/revcrew/leadflow/pkg/store"
)

// DefaultCacheTTL is how long enrichment responses stay cached.
const DefaultCacheTTL = 7 * 24 * time.Hour

const defaultApolloBase = "https://api.apollo.io"

// ApolloConfig configures the Apollo client.
type ApolloConfig struct {
	APIKey   string
	BaseURL  string // override for tests
	CacheTTL time.Duration
	Timeout  time.Duration
}

// ApolloClient enriches people and companies, caching hits in the K/V
// store so repeat lookups for the same contact cost nothing.
type ApolloClient struct {
	httpClient *http.Client
	kv         *store.Store
	apiKey     string
	baseURL    string
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewApolloClient builds an Apollo client. A missing API key is allowed;
// lookups then return no data.
func NewApolloClient(kv *store.Store, cfg ApolloConfig) *ApolloClient {
	base := cfg.BaseURL
	if base == "" {
		base = defaultApolloBase
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ApolloClient{
		httpClient: &http.Client{Timeout: timeout},
		kv:         kv,
		apiKey:     cfg.APIKey,
		baseURL:    base,
		cacheTTL:   ttl,
		logger:     slog.Default().With("component", "apollo-client"),
	}
}

func personCacheKey(email string) string   { return "apollo:person:" + strings.ToLower(email) }
func companyCacheKey(domain string) string { return "apollo:company:" + strings.ToLower(domain) }

// EnrichPerson looks up contact data by email. Returns nil when the API key
// is unset or the provider has no data.
func (c *ApolloClient) EnrichPerson(ctx context.Context, email string) (*schemas.PersonData, error) {
	if c.apiKey == "" {
		c.logger.Warn("Apollo API key not set, skipping person enrichment")
		return nil, nil
	}

	var cached schemas.PersonData
	if c.readCache(ctx, personCacheKey(email), &cached) {
		c.logger.Info("Apollo person cache hit", "email", email)
		return &cached, nil
	}

	body, err := c.post(ctx, "/v1/people/match", map[string]string{"email": email})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Person struct {
			FirstName    string   `json:"first_name"`
			LastName     string   `json:"last_name"`
			Title        string   `json:"title"`
			Seniority    string   `json:"seniority"`
			Departments  []string `json:"departments"`
			LinkedInURL  string   `json:"linkedin_url"`
			PhoneNumbers []struct {
				SanitizedNumber string `json:"sanitized_number"`
			} `json:"phone_numbers"`
		} `json:"person"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pipeline.Permanent("decoding apollo person response", err)
	}
	if resp.Person.FirstName == "" && resp.Person.LastName == "" && resp.Person.Title == "" {
		c.logger.Info("Apollo person enrichment returned no data", "email", email)
		return nil, nil
	}

	person := &schemas.PersonData{
		Email:       email,
		FirstName:   resp.Person.FirstName,
		LastName:    resp.Person.LastName,
		Title:       resp.Person.Title,
		Seniority:   resp.Person.Seniority,
		LinkedInURL: resp.Person.LinkedInURL,
	}
	if len(resp.Person.Departments) > 0 {
		person.Department = resp.Person.Departments[0]
	}
	for _, p := range resp.Person.PhoneNumbers {
		if p.SanitizedNumber != "" {
			person.PhoneNumbers = append(person.PhoneNumbers, p.SanitizedNumber)
		}
	}

	c.writeCache(ctx, personCacheKey(email), person)
	c.logger.Info("Apollo person enrichment successful", "email", email, "title", person.Title)
	return person, nil
}

// EnrichCompany looks up organization data by domain. A 403 means the API
// tier lacks the endpoint and yields no data rather than an error.
func (c *ApolloClient) EnrichCompany(ctx context.Context, domain string) (*schemas.CompanyData, error) {
	if c.apiKey == "" {
		c.logger.Warn("Apollo API key not set, skipping company enrichment")
		return nil, nil
	}

	var cached schemas.CompanyData
	if c.readCache(ctx, companyCacheKey(domain), &cached) {
		c.logger.Info("Apollo company cache hit", "domain", domain)
		return &cached, nil
	}

	body, err := c.get(ctx, "/api/v1/organizations/enrich?domain="+url.QueryEscape(domain))
	if err != nil {
		var forbidden *forbiddenError
		if errors.As(err, &forbidden) {
			c.logger.Warn("Apollo company enrichment not available on this API tier", "domain", domain)
			return nil, nil
		}
		return nil, err
	}

	var resp struct {
		Organization struct {
			Name                   string  `json:"name"`
			EstimatedNumEmployees  int     `json:"estimated_num_employees"`
			EstimatedAnnualRevenue string  `json:"estimated_annual_revenue"`
			Industry               string  `json:"industry"`
			FoundedYear            int     `json:"founded_year"`
			FundingStage           string  `json:"funding_stage"`
			TotalFunding           float64 `json:"total_funding"`
			Technologies           []struct {
				Name string `json:"name"`
			} `json:"technologies"`
			LinkedInURL string `json:"linkedin_url"`
			City        string `json:"city"`
			State       string `json:"state"`
			Country     string `json:"country"`
		} `json:"organization"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, pipeline.Permanent("decoding apollo company response", err)
	}
	org := resp.Organization
	if org.Name == "" {
		c.logger.Info("Apollo company enrichment returned no data", "domain", domain)
		return nil, nil
	}

	company := &schemas.CompanyData{
		Name:         org.Name,
		Domain:       domain,
		Revenue:      org.EstimatedAnnualRevenue,
		Industry:     org.Industry,
		FundingStage: org.FundingStage,
		LinkedInURL:  org.LinkedInURL,
		City:         org.City,
		State:        org.State,
		Country:      org.Country,
	}
	if org.EstimatedNumEmployees > 0 {
		company.EmployeeCount = strconv.Itoa(org.EstimatedNumEmployees)
	}
	if org.FoundedYear > 0 {
		company.FoundedYear = strconv.Itoa(org.FoundedYear)
	}
	if org.TotalFunding > 0 {
		company.FundingTotal = fmt.Sprintf("$%.1fM", org.TotalFunding/1_000_000)
	}
	for _, tech := range org.Technologies {
		if tech.Name != "" {
			company.Technologies = append(company.Technologies, tech.Name)
		}
	}

	c.writeCache(ctx, companyCacheKey(domain), company)
	c.logger.Info("Apollo company enrichment successful",
		"domain", domain, "employees", company.EmployeeCount, "industry", company.Industry)
	return company, nil
}

// forbiddenError marks a 403 from the organization endpoint.
type forbiddenError struct{ detail string }

func (e *forbiddenError) Error() string { return "apollo returned 403: " + e.detail }

func (c *ApolloClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding apollo request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("building apollo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *ApolloClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("building apollo request: %w", err)
	}
	return c.do(req)
}

func (c *ApolloClient) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pipeline.Transient("calling apollo", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, pipeline.Transient("reading apollo response", err)
	}
	if resp.StatusCode == http.StatusForbidden {
		return nil, &forbiddenError{detail: string(body)}
	}
	if resp.StatusCode >= 400 {
		return nil, pipeline.ClassifyHTTPStatus(resp.StatusCode, "apollo "+req.URL.Path)
	}
	return body, nil
}

func (c *ApolloClient) readCache(ctx context.Context, key string, out any) bool {
	cached, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.Warn("Enrichment cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal([]byte(cached), out); err != nil {
		c.logger.Warn("Discarding unparseable enrichment cache entry", "key", key, "error", err)
		return false
	}
	return true
}

func (c *ApolloClient) writeCache(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, key, string(raw), c.cacheTTL); err != nil {
		c.logger.Warn("Enrichment cache write failed", "key", key, "error", err)
	}
}

