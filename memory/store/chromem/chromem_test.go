package chromem_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/store/chromem"
)

func TestStore_CollectionIsShared(t *testing.T) {
	ctx := context.Background()
	s, err := chromem.New(mock.New(), chromem.Options{})
	require.NoError(t, err)
	defer s.Close()

	a, err := s.Collection(ctx, "notes")
	require.NoError(t, err)
	b, err := s.Collection(ctx, "notes")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = s.Collection(ctx, "")
	assert.ErrorIs(t, err, memory.ErrInvalidInput)
}

func TestCollection_QueryClampsToCount(t *testing.T) {
	ctx := context.Background()
	s, err := chromem.New(mock.New(), chromem.Options{})
	require.NoError(t, err)
	col, err := s.Collection(ctx, "notes")
	require.NoError(t, err)

	empty, err := col.Query(ctx, "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, col.Upsert(ctx, memory.StoredDocument{ID: "a", Content: "blue sky"}))
	require.NoError(t, col.Upsert(ctx, memory.StoredDocument{ID: "b", Content: "green grass"}))

	matches, err := col.Query(ctx, "blue sky", 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ID)
	assert.InDelta(t, 0, matches[0].Distance, 1e-5)
	assert.LessOrEqual(t, matches[0].Distance, matches[1].Distance)
}

func TestCollection_GetMissing(t *testing.T) {
	ctx := context.Background()
	s, err := chromem.New(mock.New(), chromem.Options{})
	require.NoError(t, err)
	col, err := s.Collection(ctx, "notes")
	require.NoError(t, err)

	_, err = col.Get(ctx, "nope")
	assert.ErrorIs(t, err, memory.ErrNotFound)

	require.NoError(t, col.Delete(ctx, "nope"))
	require.NoError(t, col.Delete(ctx, ""))
}

func TestCollection_ResetKeepsCollectionUsable(t *testing.T) {
	ctx := context.Background()
	s, err := chromem.New(mock.New(), chromem.Options{Path: t.TempDir(), Compress: true})
	require.NoError(t, err)
	col, err := s.Collection(ctx, "notes")
	require.NoError(t, err)

	require.NoError(t, col.Upsert(ctx, memory.StoredDocument{ID: "a", Content: "one"}))
	require.NoError(t, col.Reset(ctx))

	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, col.Upsert(ctx, memory.StoredDocument{ID: "b", Content: "two"}))
	doc, err := col.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "two", doc.Content)
}

func TestEmbeddingFunc_Normalizes(t *testing.T) {
	fn := chromem.EmbeddingFunc(fixedEmbedder{vec: []float32{3, 4}})
	vec, err := fn(context.Background(), "x")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1, math.Sqrt(norm), 1e-6)
	assert.InDelta(t, 0.6, vec[0], 1e-6)
}

func TestNew_NilEmbedder(t *testing.T) {
	_, err := chromem.New(nil, chromem.Options{})
	assert.ErrorIs(t, err, memory.ErrInvalidInput)
}

type fixedEmbedder struct {
	vec []float32
}

func (f fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

func (f fixedEmbedder) Dimensions() int { return len(f.vec) }
