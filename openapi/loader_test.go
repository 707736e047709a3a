package openapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoadToolset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/openapi.json":
			_, _ = w.Write([]byte(petDoc))
		case "/broken.json":
			_, _ = w.Write([]byte(`{"openapi": "3.0.2",`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	normalizer := Normalizer{BaseURL: srv.URL, AllowedScheme: "api_key"}
	ctx := context.Background()

	t.Run("fetched and normalized", func(t *testing.T) {
		ts, err := LoadToolset(ctx, LoadOptions{
			SpecURL:    srv.URL + "/openapi.json",
			Normalizer: normalizer,
			Fetcher:    NewFetcher(time.Second),
		})
		require.NoError(t, err)
		assert.Positive(t, ts.Len())

		doc, report, err := LoadDocument(ctx, LoadOptions{SpecURL: srv.URL + "/openapi.json", Normalizer: normalizer})
		require.NoError(t, err)
		assert.Equal(t, []string{srv.URL + "/api/v3"}, doc.Servers())
		assert.Equal(t, srv.URL+"/api/v3", report.RewrittenServers["/api/v3"])
	})

	t.Run("fetch failure yields empty toolset", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		ts, err := LoadToolset(ctx, LoadOptions{
			SpecURL:    srv.URL + "/missing.json",
			Normalizer: normalizer,
			Logger:     zap.New(core),
		})
		require.NoError(t, err)
		require.NotNil(t, ts)
		assert.Equal(t, 0, ts.Len())
		assert.Equal(t, 1, logs.FilterMessage("OpenAPI document unavailable, continuing without tools").Len())
	})

	t.Run("malformed document is an error", func(t *testing.T) {
		_, err := LoadToolset(ctx, LoadOptions{
			SpecURL:    srv.URL + "/broken.json",
			Normalizer: normalizer,
		})
		assert.ErrorIs(t, err, ErrMalformedDocument)
	})

	t.Run("nothing configured", func(t *testing.T) {
		ts, err := LoadToolset(ctx, LoadOptions{Normalizer: normalizer})
		require.NoError(t, err)
		assert.Equal(t, 0, ts.Len())
	})
}

func TestLoadDocumentFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openapi.json")
	require.NoError(t, os.WriteFile(path, []byte(petDoc), 0o600))

	doc, _, err := LoadDocument(context.Background(), LoadOptions{
		SpecFile:   path,
		SpecURL:    "http://127.0.0.1:1/ignored.json",
		Normalizer: Normalizer{BaseURL: "https://pets.example.com/"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://pets.example.com/api/v3"}, doc.Servers())

	_, _, err = LoadDocument(context.Background(), LoadOptions{SpecFile: filepath.Join(t.TempDir(), "nope.json")})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoDocument)
}

func TestLogReport(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	doc := mustParse(t, `{"info":{"title":"t","version":"1"},"servers":[{"url":"https://x"}]}`)

	LogReport(zap.New(core), doc, Report{
		DefaultedServer: "https://x/api/v3",
		Skipped:         []Target{{Path: "/a", Method: "get"}},
		CaseMismatches:  []string{"API_KEY"},
	})

	assert.Equal(t, 1, logs.FilterMessage("normalized OpenAPI document").Len())
	assert.Equal(t, 1, logs.FilterMessage("security target not in document").Len())
	warn := logs.FilterLevelExact(zap.WarnLevel).All()
	require.Len(t, warn, 1)
	assert.Equal(t, "API_KEY", warn[0].ContextMap()["scheme"])
}
