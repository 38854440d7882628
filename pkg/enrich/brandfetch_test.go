package enrich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchLogoPrefersPNG(t *testing.T) {
	logo := []byte{0x89, 'P', 'N', 'G'}
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/v2/brands/acme.example", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer bf-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"logos": []map[string]any{
				{"formats": []map[string]any{
					{"format": "svg", "src": srv.URL + "/img/logo.svg"},
					{"format": "png", "src": srv.URL + "/img/logo.png"},
				}},
			},
		})
	})
	mux.HandleFunc("/img/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(logo)
	})

	c := NewBrandfetchClient(BrandfetchConfig{APIKey: "bf-key", BaseURL: srv.URL})
	got := c.FetchLogo(context.Background(), "https://www.acme.example/")
	assert.Equal(t, logo, got)
}

func TestFetchLogoUnknownBrand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewBrandfetchClient(BrandfetchConfig{APIKey: "k", BaseURL: srv.URL})
	assert.Nil(t, c.FetchLogo(context.Background(), "nobody.example"))
}

func TestFetchLogoRejectsNonImage(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/v2/brands/acme.example", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"logos": []map[string]any{
				{"formats": []map[string]any{{"format": "png", "src": srv.URL + "/img"}}},
			},
		})
	})
	mux.HandleFunc("/img", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not a logo</html>"))
	})

	c := NewBrandfetchClient(BrandfetchConfig{APIKey: "k", BaseURL: srv.URL})
	assert.Nil(t, c.FetchLogo(context.Background(), "acme.example"))
}

func TestFetchLogoWithoutAPIKey(t *testing.T) {
	c := NewBrandfetchClient(BrandfetchConfig{})
	assert.Nil(t, c.FetchLogo(context.Background(), "acme.example"))
}
