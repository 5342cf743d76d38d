package ocr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTextSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/extract", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"full_text":"  iPhone 13\nModel A2633  ","model":"trocr-large"}`))
	}))
	defer srv.Close()

	client := NewClient(ClientOpts{BaseURL: srv.URL, APIKey: "test-key"})

	res, err := client.ExtractText(context.Background(), []byte("fake-image"))
	require.NoError(t, err)
	assert.True(t, res.HasText)
	assert.Equal(t, "iPhone 13\nModel A2633", res.FullText)
	assert.Equal(t, "trocr-large", res.Model)
}

func TestExtractTextEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"full_text":""}`))
	}))
	defer srv.Close()

	client := NewClient(ClientOpts{BaseURL: srv.URL})

	res, err := client.ExtractText(context.Background(), []byte("fake-image"))
	require.NoError(t, err)
	assert.False(t, res.HasText)
	assert.Empty(t, res.FullText)
	assert.Equal(t, defaultModelTag, res.Model)
}

func TestExtractTextServerErrorDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(ClientOpts{BaseURL: srv.URL, Retries: 1})

	res, err := client.ExtractText(context.Background(), []byte("fake-image"))
	require.NoError(t, err)
	assert.False(t, res.HasText)
	assert.Equal(t, defaultModelTag, res.Model)
}

func TestExtractTextTransportErrorDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := NewClient(ClientOpts{BaseURL: srv.URL, Retries: 1})

	res, err := client.ExtractText(context.Background(), []byte("fake-image"))
	require.NoError(t, err)
	assert.False(t, res.HasText)
}

func TestExtractTextRetriesTransientFailures(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"full_text":"Galaxy S21"}`))
	}))
	defer srv.Close()

	client := NewClient(ClientOpts{BaseURL: srv.URL, Retries: 2})

	res, err := client.ExtractText(context.Background(), []byte("fake-image"))
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.True(t, res.HasText)
	assert.Equal(t, "Galaxy S21", res.FullText)
}
