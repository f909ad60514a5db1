package bolt_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/becomeliminal/nim-memory/memory/store/bolt"
)

func openCollection(t *testing.T, path string, e memory.Embedder, name string) (*bolt.Store, memory.Collection) {
	t.Helper()
	s, err := bolt.Open(path, e)
	require.NoError(t, err)
	col, err := s.Collection(context.Background(), name)
	require.NoError(t, err)
	return s, col
}

func TestStore_UpsertGetDelete(t *testing.T) {
	ctx := context.Background()
	s, col := openCollection(t, filepath.Join(t.TempDir(), "db"), mock.New(), "notes")
	defer s.Close()

	require.NoError(t, col.Upsert(ctx, memory.StoredDocument{
		ID:       "a",
		Content:  "alpha",
		Metadata: map[string]string{"k": "v"},
	}))

	doc, err := col.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", doc.Content)
	assert.Equal(t, map[string]string{"k": "v"}, doc.Metadata)

	require.NoError(t, col.Delete(ctx, "a"))
	require.NoError(t, col.Delete(ctx, "a"))

	_, err = col.Get(ctx, "a")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestStore_QueryOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	s, col := openCollection(t, filepath.Join(t.TempDir(), "db"), mock.New(), "notes")
	defer s.Close()

	for id, text := range map[string]string{
		"exact":   "red apples and green pears",
		"partial": "red apples and green grapes",
		"other":   "the train leaves at noon",
	} {
		require.NoError(t, col.Upsert(ctx, memory.StoredDocument{ID: id, Content: text}))
	}

	matches, err := col.Query(ctx, "red apples and green pears", 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "exact", matches[0].ID)
	assert.InDelta(t, 0, matches[0].Distance, 1e-5)
	assert.Equal(t, "partial", matches[1].ID)
	assert.LessOrEqual(t, matches[1].Distance, matches[2].Distance)

	top, err := col.Query(ctx, "red apples", 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)

	_, err = col.Query(ctx, "red apples", 0)
	assert.ErrorIs(t, err, memory.ErrInvalidInput)
}

func TestStore_CountAndReset(t *testing.T) {
	ctx := context.Background()
	s, col := openCollection(t, filepath.Join(t.TempDir(), "db"), mock.New(), "notes")
	defer s.Close()

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, col.Upsert(ctx, memory.StoredDocument{ID: id, Content: "doc " + id}))
	}
	n, err := col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, col.Reset(ctx))
	n, err = col.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	matches, err := col.Query(ctx, "doc", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")

	s, col := openCollection(t, path, mock.NewWithDimensions(8), "notes")
	require.NoError(t, col.Upsert(ctx, memory.StoredDocument{ID: "a", Content: "eight dims"}))
	require.NoError(t, s.Close())

	s, err := bolt.Open(path, mock.NewWithDimensions(16))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Collection(ctx, "notes")
	assert.ErrorIs(t, err, memory.ErrInvalidInput)

	// Other collections are unaffected.
	_, err = s.Collection(ctx, "fresh")
	assert.NoError(t, err)
}

func TestStore_EmptyCollectionName(t *testing.T) {
	s, err := bolt.Open(filepath.Join(t.TempDir(), "db"), mock.New())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Collection(context.Background(), "")
	assert.ErrorIs(t, err, memory.ErrInvalidInput)
}

func TestOpen_NilEmbedder(t *testing.T) {
	_, err := bolt.Open(filepath.Join(t.TempDir(), "db"), nil)
	assert.ErrorIs(t, err, memory.ErrInvalidInput)
}
