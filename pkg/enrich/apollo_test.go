package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revcrew/leadflow/pkg/pipeline"
	"github.com/revcrew/leadflow/pkg/store"
)

func newTestStore(t *testing.T) (*store.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	kv := store.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = kv.Close() })
	return kv, mr
}

func apolloPersonResponse() map[string]any {
	return map[string]any{
		"person": map[string]any{
			"first_name":   "Alice",
			"last_name":    "Nguyen",
			"title":        "Head of Design",
			"seniority":    "director",
			"departments":  []string{"design"},
			"linkedin_url": "https://linkedin.com/in/alice",
			"phone_numbers": []map[string]any{
				{"sanitized_number": "+15551234567"},
			},
		},
	}
}

func TestEnrichPersonCachesResult(t *testing.T) {
	kv, mr := newTestStore(t)

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "api-key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "/v1/people/match", r.URL.Path)
		_ = json.NewEncoder(w).Encode(apolloPersonResponse())
	}))
	defer srv.Close()

	c := NewApolloClient(kv, ApolloConfig{APIKey: "api-key", BaseURL: srv.URL})
	ctx := context.Background()

	person, err := c.EnrichPerson(ctx, "Alice@Acme.example")
	require.NoError(t, err)
	require.NotNil(t, person)
	assert.Equal(t, "Head of Design", person.Title)
	assert.Equal(t, "design", person.Department)
	assert.Equal(t, []string{"+15551234567"}, person.PhoneNumbers)

	// Cached under the lowercased email with the configured TTL.
	assert.InDelta(t, DefaultCacheTTL.Seconds(), mr.TTL("apollo:person:alice@acme.example").Seconds(), 5)

	// Second lookup is a cache hit.
	person2, err := c.EnrichPerson(ctx, "Alice@Acme.example")
	require.NoError(t, err)
	require.NotNil(t, person2)
	assert.Equal(t, person.Title, person2.Title)
	assert.Equal(t, int64(1), calls.Load())
}

func TestEnrichPersonNoData(t *testing.T) {
	kv, _ := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"person": map[string]any{}})
	}))
	defer srv.Close()

	c := NewApolloClient(kv, ApolloConfig{APIKey: "k", BaseURL: srv.URL})
	person, err := c.EnrichPerson(context.Background(), "ghost@acme.example")
	require.NoError(t, err)
	assert.Nil(t, person)
}

func TestEnrichPersonWithoutAPIKey(t *testing.T) {
	kv, _ := newTestStore(t)
	c := NewApolloClient(kv, ApolloConfig{})
	person, err := c.EnrichPerson(context.Background(), "a@b.example")
	require.NoError(t, err)
	assert.Nil(t, person)
}

func TestEnrichPersonRateLimitIsTransient(t *testing.T) {
	kv, _ := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewApolloClient(kv, ApolloConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := c.EnrichPerson(context.Background(), "a@b.example")
	require.Error(t, err)
	assert.True(t, pipeline.IsTransient(err))
}

func TestEnrichCompanyParsesOrganization(t *testing.T) {
	kv, _ := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/organizations/enrich", r.URL.Path)
		assert.Equal(t, "acme.example", r.URL.Query().Get("domain"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"organization": map[string]any{
				"name":                     "Acme",
				"estimated_num_employees":  120,
				"estimated_annual_revenue": "$10M-$50M",
				"industry":                 "design software",
				"founded_year":             2014,
				"funding_stage":            "Series B",
				"total_funding":            12500000,
				"technologies": []map[string]any{
					{"name": "AWS"}, {"name": "Stripe"},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewApolloClient(kv, ApolloConfig{APIKey: "k", BaseURL: srv.URL})
	company, err := c.EnrichCompany(context.Background(), "acme.example")
	require.NoError(t, err)
	require.NotNil(t, company)
	assert.Equal(t, "Acme", company.Name)
	assert.Equal(t, "120", company.EmployeeCount)
	assert.Equal(t, "2014", company.FoundedYear)
	assert.Equal(t, "$12.5M", company.FundingTotal)
	assert.Equal(t, []string{"AWS", "Stripe"}, company.Technologies)
}

func TestEnrichCompanyForbiddenTierReturnsNoData(t *testing.T) {
	kv, _ := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "upgrade required"})
	}))
	defer srv.Close()

	c := NewApolloClient(kv, ApolloConfig{APIKey: "k", BaseURL: srv.URL})
	company, err := c.EnrichCompany(context.Background(), "acme.example")
	require.NoError(t, err)
	assert.Nil(t, company)
}

func TestCacheTTLOverride(t *testing.T) {
	kv, mr := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(apolloPersonResponse())
	}))
	defer srv.Close()

	c := NewApolloClient(kv, ApolloConfig{APIKey: "k", BaseURL: srv.URL, CacheTTL: time.Hour})
	_, err := c.EnrichPerson(context.Background(), "a@b.example")
	require.NoError(t, err)
	assert.InDelta(t, time.Hour.Seconds(), mr.TTL("apollo:person:a@b.example").Seconds(), 5)
}

func TestDomainHelpers(t *testing.T) {
	assert.Equal(t, "acme.example", DomainFromEmail("Alice@Acme.Example"))
	assert.Equal(t, "", DomainFromEmail("not-an-email"))
	assert.True(t, IsPersonalDomain("gmail.com"))
	assert.True(t, IsPersonalDomain("Outlook.com"))
	assert.False(t, IsPersonalDomain("acme.example"))
	assert.Equal(t, "acme.example", CleanDomain("https://www.Acme.example/"))
}
