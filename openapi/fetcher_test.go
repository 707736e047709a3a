package openapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "object", input: `{"openapi":"3.0.2","info":{"title":"t"}}`},
		{name: "no version", input: `{"paths":{}}`},
		{name: "invalid json", input: `{"openapi":`, wantErr: true},
		{name: "array", input: `[1,2]`, wantErr: true},
		{name: "empty", input: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := ParseDocument([]byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedDocument)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, doc)
		})
	}
}

func TestParseDocumentKeepsNumbers(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"x":12345678901234567890}`))
	require.NoError(t, err)

	b, err := doc.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":12345678901234567890}`, string(b))
}

func TestDocumentAccessors(t *testing.T) {
	doc, err := ParseDocument([]byte(petDoc))
	require.NoError(t, err)

	assert.Equal(t, "3.0.2", doc.Version())
	assert.Equal(t, "Swagger Petstore", doc.Title())
	assert.Equal(t, []string{"/api/v3"}, doc.Servers())

	_, ok := doc.Operation("/pet/{petId}", "get")
	assert.True(t, ok)
	_, ok = doc.Operation("/pet/{petId}", "patch")
	assert.False(t, ok)

	var empty Document
	assert.Nil(t, empty.Clone())
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/openapi.json":
			assert.Equal(t, http.MethodGet, r.Method)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(petDoc))
		case "/slow":
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	t.Run("success", func(t *testing.T) {
		data, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL+"/openapi.json")
		require.NoError(t, err)
		assert.JSONEq(t, petDoc, string(data))
	})

	t.Run("non-2xx", func(t *testing.T) {
		_, err := NewFetcher(time.Second).Fetch(context.Background(), srv.URL+"/missing")
		assert.ErrorIs(t, err, ErrNoDocument)
	})

	t.Run("timeout", func(t *testing.T) {
		_, err := NewFetcher(50*time.Millisecond).Fetch(context.Background(), srv.URL+"/slow")
		assert.ErrorIs(t, err, ErrNoDocument)
	})

	t.Run("transport error", func(t *testing.T) {
		_, err := NewFetcher(time.Second).Fetch(context.Background(), "http://127.0.0.1:1/openapi.json")
		assert.ErrorIs(t, err, ErrNoDocument)
	})

	t.Run("oversized document", func(t *testing.T) {
		f := NewFetcher(time.Second)
		f.MaxSize = 64
		_, err := f.Fetch(context.Background(), srv.URL+"/openapi.json")
		assert.ErrorIs(t, err, ErrNoDocument)
		assert.ErrorContains(t, err, "exceeds 64 bytes")

		f.MaxSize = int64(len(petDoc))
		data, err := f.Fetch(context.Background(), srv.URL+"/openapi.json")
		require.NoError(t, err)
		assert.Len(t, data, len(petDoc))
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := NewFetcher(0).Fetch(context.Background(), "://nope")
		assert.ErrorIs(t, err, ErrNoDocument)
	})
}
