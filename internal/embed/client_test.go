package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semtree/internal/tree"
)

func newEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/batch_embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts []string `json:"texts"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vectors := make([][]float32, len(req.Texts))
		for i, text := range req.Texts {
			// Deterministic per text: length and first byte.
			first := float32(0)
			if len(text) > 0 {
				first = float32(text[0])
			}
			vectors[i] = []float32{float32(len(text)), first}
		}
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "test-model",
			"vectors": vectors,
			"dim":     2,
		})
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClientEmbed(t *testing.T) {
	server := newEmbedServer(t)
	client := NewClient(server.URL)

	fp, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, fp, 2)

	// Vectors come back normalized to unit length.
	var norm float64
	for _, v := range fp {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}

func TestClientBatchEmbed(t *testing.T) {
	server := newEmbedServer(t)
	client := NewClient(server.URL)

	t.Run("MultipleTexts", func(t *testing.T) {
		fps, err := client.BatchEmbed(context.Background(), []string{"one", "two", "three"})
		require.NoError(t, err)
		assert.Len(t, fps, 3)
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		_, err := client.BatchEmbed(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("Deterministic", func(t *testing.T) {
		a, err := client.Embed(context.Background(), "same text")
		require.NoError(t, err)
		b, err := client.Embed(context.Background(), "same text")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestClientHealth(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		server := newEmbedServer(t)
		assert.NoError(t, NewClient(server.URL).Health(context.Background()))
	})

	t.Run("NotReady", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"status": "loading"})
		}))
		defer server.Close()
		assert.Error(t, NewClient(server.URL).Health(context.Background()))
	})

	t.Run("ServerError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()
		assert.Error(t, NewClient(server.URL).Health(context.Background()))
	})
}

func TestClientServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	t.Run("UnitLength", func(t *testing.T) {
		fp := Normalize(tree.Fingerprint{3, 4})
		assert.InDelta(t, 0.6, float64(fp[0]), 1e-6)
		assert.InDelta(t, 0.8, float64(fp[1]), 1e-6)
	})

	t.Run("ZeroVector", func(t *testing.T) {
		fp := Normalize(tree.Fingerprint{0, 0})
		assert.Equal(t, tree.Fingerprint{0, 0}, fp)
	})
}
