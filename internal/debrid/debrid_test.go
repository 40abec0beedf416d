package debrid_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelvault/reelvault/internal/debrid"
)

func TestNew(t *testing.T) {
	t.Run("missing api key fails construction", func(t *testing.T) {
		_, err := debrid.New("", "")
		assert.ErrorIs(t, err, debrid.ErrNotConfigured)
	})

	t.Run("empty endpoint falls back to default", func(t *testing.T) {
		c, err := debrid.New("", "key")
		require.NoError(t, err)
		assert.NotNil(t, c)
	})
}

func TestClient_Unlock(t *testing.T) {
	t.Run("successful exchange", func(t *testing.T) {
		var gotAuth, gotURL string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")

			var req struct {
				URL string `json:"url"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			gotURL = req.URL

			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":   "OK",
				"url":      "https://cdn.example.com/dl/abc",
				"filename": "movie.mkv",
			})
		}))
		defer srv.Close()

		c, err := debrid.New(srv.URL, "secret-key")
		require.NoError(t, err)

		res, err := c.Unlock(context.Background(), "https://1fichier.com/?abc123")
		require.NoError(t, err)

		assert.Equal(t, "https://cdn.example.com/dl/abc", res.URL)
		assert.Equal(t, "movie.mkv", res.FileName)
		assert.Equal(t, "Bearer secret-key", gotAuth)
		assert.Equal(t, "https://1fichier.com/?abc123", gotURL)
	})

	t.Run("ancillary parameters are stripped", func(t *testing.T) {
		var gotURL string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				URL string `json:"url"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			gotURL = req.URL
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "OK", "url": "https://cdn/x"})
		}))
		defer srv.Close()

		c, err := debrid.New(srv.URL, "key")
		require.NoError(t, err)

		_, err = c.Unlock(context.Background(), "https://1fichier.com/?abc123&af=456&e=1")
		require.NoError(t, err)
		assert.Equal(t, "https://1fichier.com/?abc123", gotURL)
	})

	t.Run("non-OK status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":  "KO",
				"message": "Resource not found",
			})
		}))
		defer srv.Close()

		c, err := debrid.New(srv.URL, "key")
		require.NoError(t, err)

		_, err = c.Unlock(context.Background(), "https://1fichier.com/?gone")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "KO")
		assert.Contains(t, err.Error(), "Resource not found")
	})

	t.Run("http error status is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer srv.Close()

		c, err := debrid.New(srv.URL, "key")
		require.NoError(t, err)

		_, err = c.Unlock(context.Background(), "https://1fichier.com/?abc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("malformed response body is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))
		defer srv.Close()

		c, err := debrid.New(srv.URL, "key")
		require.NoError(t, err)

		_, err = c.Unlock(context.Background(), "https://1fichier.com/?abc")
		assert.Error(t, err)
	})
}
