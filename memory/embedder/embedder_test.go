package embedder_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory/embedder"
	"github.com/becomeliminal/nim-memory/memory/embedder/cache"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
)

func TestNew_Mock(t *testing.T) {
	e, err := embedder.New(embedder.Config{})
	require.NoError(t, err)
	assert.IsType(t, &mock.Embedder{}, e)
	assert.Equal(t, 384, e.Dimensions())

	e, err = embedder.New(embedder.Config{Provider: "MOCK", Dimensions: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, e.Dimensions())
}

func TestNew_WithCache(t *testing.T) {
	e, err := embedder.New(embedder.Config{Provider: "mock", CacheSize: 8})
	require.NoError(t, err)
	assert.IsType(t, &cache.Embedder{}, e)
	assert.NoError(t, embedder.Close(e))
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  embedder.Config
		want string
	}{
		{"unknown provider", embedder.Config{Provider: "word2vec"}, "unsupported embedding provider"},
		{"ollama without model", embedder.Config{Provider: "ollama"}, "requires a model"},
		{"onnx without build tag", embedder.Config{Provider: "onnx"}, "-tags onnx"},
		{"openai without key", embedder.Config{Provider: "openai", APIKeyEnv: "NIM_MEMORY_TEST_MISSING_KEY"}, "NIM_MEMORY_TEST_MISSING_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := embedder.New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNew_Ollama(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req["model"]
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.6, 0.8}})
	}))
	defer srv.Close()

	e, err := embedder.New(embedder.Config{
		Provider:   "ollama",
		Model:      "nomic-embed-text",
		BaseURL:    srv.URL + "/api",
		Dimensions: 2,
	})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, vec, 1e-6)
	assert.Equal(t, "nomic-embed-text", gotModel)
	assert.Equal(t, 2, e.Dimensions())
}

func TestNew_OpenAICompatible(t *testing.T) {
	t.Setenv("NIM_MEMORY_TEST_KEY", "secret")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1, 0, 0}}},
		})
	}))
	defer srv.Close()

	e, err := embedder.New(embedder.Config{
		Provider:  "openai",
		Model:     "local-embed",
		BaseURL:   srv.URL + "/v1",
		APIKeyEnv: "NIM_MEMORY_TEST_KEY",
	})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, vec)
}

func TestFunc(t *testing.T) {
	f := embedder.NewFunc(func(ctx context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text))}, nil
	}, 1)

	vec, err := f.Embed(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, vec)
	assert.Equal(t, 1, f.Dimensions())
	assert.NoError(t, embedder.Close(f))
}
