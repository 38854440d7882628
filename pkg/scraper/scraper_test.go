package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revcrew/leadflow/pkg/pipeline"
)

const homepageHTML = `<!DOCTYPE html>
<html><head><title>Acme</title></head>
<body>
<nav><a href="/about-us">About</a> <a href="/pricing">Pricing</a></nav>
<main>
<h1>Acme Design Review</h1>
<p>Acme helps creative teams collect feedback and approve artwork faster.
Our platform replaces endless email threads with a single review link.</p>
<p>Trusted by hundreds of agencies worldwide for packaging and campaign
approvals, from first draft through final sign-off.</p>
<a href="mailto:hello@acme.example">Contact</a>
<a href="https://twitter.com/acme">Twitter</a>
</main>
</body></html>`

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(homepageHTML))
	})
	mux.HandleFunc("/about-us", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><main><h1>About Acme</h1>
<p>Founded in 2014, offices in Sydney and Austin. We are hiring across
engineering and design as we expand into enterprise accounts.</p></main></body></html>`))
	})
	mux.HandleFunc("/pricing", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><main><h1>Pricing</h1>
<p>Pro plan at $49 per seat per month, annual billing available.</p></main></body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestScrapeSiteDiscoversKeyPages(t *testing.T) {
	srv := newSite(t)
	s := NewWithHTTPClient(Config{}, srv.Client())

	pages, err := s.ScrapeSite(context.Background(), srv.URL)
	require.NoError(t, err)

	require.Contains(t, pages, "homepage")
	require.Contains(t, pages, "about")
	require.Contains(t, pages, "pricing")
	assert.Contains(t, pages["homepage"], "collect feedback")
	assert.Contains(t, pages["about"], "Sydney")
	assert.Contains(t, pages["pricing"], "$49")
}

func TestScrapeSiteSkipsUnreachablePages(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><main><p>Homepage body with enough words to keep.</p></main>
<a href="/careers">Careers</a></body></html>`))
	})
	mux.HandleFunc("/careers", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := NewWithHTTPClient(Config{}, srv.Client())
	pages, err := s.ScrapeSite(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, pages, "homepage")
	assert.NotContains(t, pages, "careers")
}

func TestScrapeSiteHomepageErrorIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewWithHTTPClient(Config{}, srv.Client())
	_, err := s.ScrapeSite(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, pipeline.IsTransient(err))
}

func TestScrapeSiteRespectsPageBudget(t *testing.T) {
	srv := newSite(t)
	s := NewWithHTTPClient(Config{MaxPages: 2}, srv.Client())

	pages, err := s.ScrapeSite(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
	assert.Contains(t, pages, "homepage")
}

func TestScrapeSiteTruncatesPerPage(t *testing.T) {
	long := strings.Repeat("All work and no play makes a dull page. ", 500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><main><p>" + long + "</p></main></body></html>"))
	}))
	defer srv.Close()

	s := NewWithHTTPClient(Config{MaxPageChars: 300}, srv.Client())
	pages, err := s.ScrapeSite(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(pages["homepage"]), 300)
}

func TestCombineOrdersHomepageFirst(t *testing.T) {
	out := Combine(map[string]string{
		"pricing":  "pricing text",
		"homepage": "home text",
		"about":    "about text",
	})
	homeIdx := strings.Index(out, "=== HOMEPAGE PAGE ===")
	aboutIdx := strings.Index(out, "=== ABOUT PAGE ===")
	pricingIdx := strings.Index(out, "=== PRICING PAGE ===")
	require.NotEqual(t, -1, homeIdx)
	assert.Less(t, homeIdx, aboutIdx)
	assert.Less(t, aboutIdx, pricingIdx)
}
