package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/nim-memory/config"
	"github.com/becomeliminal/nim-memory/memory"
)

// boltConfig writes a config using a bolt file in a temp directory, so
// state survives between command invocations.
func boltConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Store.Backend = "bolt"
	cfg.Store.Path = filepath.Join(dir, "memory.db")
	path := filepath.Join(dir, "nim-memory.yaml")
	require.NoError(t, cfg.Save(path))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAddGetSearchDelete(t *testing.T) {
	cfg := boltConfig(t)

	out, err := run(t, "-c", cfg, "add", "The user prefers oat milk", "--id", "milk",
		"--meta", "topic=preferences", "--meta", "rating=4", "--tag", "coffee,dairy")
	require.NoError(t, err)
	assert.Equal(t, "milk\n", out)

	out, err = run(t, "-c", cfg, "add", "Standup is at nine", "--id", "standup",
		"--json-meta", `{"team": "core", "when": "09:00"}`)
	require.NoError(t, err)
	assert.Equal(t, "standup\n", out)

	out, err = run(t, "-c", cfg, "get", "milk")
	require.NoError(t, err)
	var doc memory.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "The user prefers oat milk", doc.Text)
	assert.True(t, memory.Int(4).Equal(doc.Metadata["rating"]))
	assert.True(t, memory.Sequence(memory.String("coffee"), memory.String("dairy")).Equal(doc.Metadata["tags"]))

	out, err = run(t, "-c", cfg, "search", "-q", "oat milk", "-k", "1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "1. [milk] distance="), out)
	assert.Contains(t, out, "topic=preferences")

	out, err = run(t, "-c", cfg, "search", "-q", "standup", "--json")
	require.NoError(t, err)
	var results memory.SearchResults
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Equal(t, 2, results.Len())
	assert.Equal(t, "standup", results.IDs[0])

	out, err = run(t, "-c", cfg, "delete", "milk", "missing")
	require.NoError(t, err)
	assert.Equal(t, "deleted milk\ndeleted missing\n", out)

	_, err = run(t, "-c", cfg, "get", "milk")
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestCollectionFlag(t *testing.T) {
	cfg := boltConfig(t)

	_, err := run(t, "-c", cfg, "--collection", "work", "add", "Ship the release", "--id", "r1")
	require.NoError(t, err)

	_, err = run(t, "-c", cfg, "get", "r1")
	assert.ErrorIs(t, err, memory.ErrNotFound)

	_, err = run(t, "-c", cfg, "--collection", "work", "get", "r1")
	assert.NoError(t, err)
}

func TestSearch_RequiresQuery(t *testing.T) {
	_, err := run(t, "-c", boltConfig(t), "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is required")
}

func TestSearch_NoResults(t *testing.T) {
	out, err := run(t, "-c", boltConfig(t), "search", "-q", "anything")
	require.NoError(t, err)
	assert.Equal(t, "No results.\n", out)
}

func TestAdd_InvalidMeta(t *testing.T) {
	_, err := run(t, "-c", boltConfig(t), "add", "text", "--meta", "novalue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected key=value")

	_, err = run(t, "-c", boltConfig(t), "add", "text", "--json-meta", "[1]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--json-meta")
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: postgres\n"), 0o644))

	_, err := run(t, "-c", path, "search", "-q", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.backend")
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "nim-memory.yaml")

	out, err := run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = run(t, "config", "init", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	_, err = run(t, "config", "init", path, "--force")
	require.NoError(t, err)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), loaded)

	out, err = run(t, "-c", boltConfig(t), "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: bolt")
	assert.Contains(t, out, "default_k: 5")
}

func TestIngest(t *testing.T) {
	cfg := boltConfig(t)
	base := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(base, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	write("notes/a.md", "Alpha notes about gardening")
	write("notes/sub/b.md", "Beta notes about cooking")
	write("notes/draft/c.md", "Draft that should be skipped")
	write("notes/empty.md", "   \n")
	write("notes/big.md", strings.Repeat("x", 200))
	write("notes/readme.txt", "not markdown")
	write("notes/latin1.md", "caf\xe9 notes")

	out, err := run(t, "-c", cfg, "ingest", filepath.Join(base, "notes", "**", "*.md"),
		"--base", base, "--exclude", "**/draft/**", "--max-bytes", "100", "--no-progress")
	require.NoError(t, err)
	assert.Contains(t, out, "Files stored:  2")
	assert.Contains(t, out, "Files skipped: 3")
	assert.Contains(t, out, "not valid UTF-8")

	out, err = run(t, "-c", cfg, "get", "notes/sub/b.md")
	require.NoError(t, err)
	var doc memory.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "Beta notes about cooking", doc.Text)
	assert.True(t, memory.String("md").Equal(doc.Metadata["ext"]))
	assert.True(t, memory.String("notes/sub/b.md").Equal(doc.Metadata["path"]))
	assert.True(t, memory.Int(24).Equal(doc.Metadata["size"]))

	_, err = run(t, "-c", cfg, "get", "notes/draft/c.md")
	assert.ErrorIs(t, err, memory.ErrNotFound)

	// Re-ingesting replaces instead of duplicating.
	_, err = run(t, "-c", cfg, "ingest", filepath.Join(base, "notes", "**", "*.md"),
		"--base", base, "--exclude", "**/draft/**", "--max-bytes", "100", "--no-progress")
	require.NoError(t, err)
	out, err = run(t, "-c", cfg, "search", "-q", "notes", "-k", "10", "--json")
	require.NoError(t, err)
	var results memory.SearchResults
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.Equal(t, 2, results.Len())
}

func TestIngest_NoMatches(t *testing.T) {
	out, err := run(t, "-c", boltConfig(t), "ingest", filepath.Join(t.TempDir(), "*.md"))
	require.NoError(t, err)
	assert.Equal(t, "No files matched.\n", out)
}

func TestBuildMetadata(t *testing.T) {
	md, err := buildMetadata([]string{"n=42", "f=0.5", "b=True", "s=hello", "eq=a=b"}, []string{"x"}, `{"n": "overridden", "keep": [1]}`)
	require.NoError(t, err)

	assert.True(t, memory.String("overridden").Equal(md["n"]))
	assert.True(t, memory.Float(0.5).Equal(md["f"]))
	assert.True(t, memory.Bool(true).Equal(md["b"]))
	assert.True(t, memory.String("hello").Equal(md["s"]))
	assert.True(t, memory.String("a=b").Equal(md["eq"]))
	assert.True(t, memory.Sequence(memory.Int(1)).Equal(md["keep"]))
	assert.True(t, memory.Sequence(memory.String("x")).Equal(md["tags"]))

	md, err = buildMetadata(nil, []string{"from-flag"}, `{"tags": ["from-json"]}`)
	require.NoError(t, err)
	assert.True(t, memory.Sequence(memory.String("from-json")).Equal(md["tags"]))

	md, err = buildMetadata(nil, nil, "null")
	require.NoError(t, err)
	assert.NotNil(t, md)
	assert.Empty(t, md)
}

func TestDocumentID(t *testing.T) {
	base := t.TempDir()

	id, err := documentID(filepath.Join(base, "a", "b.md"), base)
	require.NoError(t, err)
	assert.Equal(t, "a/b.md", id)

	outside := filepath.Join(t.TempDir(), "c.md")
	id, err = documentID(outside, base)
	require.NoError(t, err)
	assert.Equal(t, filepath.ToSlash(filepath.Clean(outside)), id)
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	for _, rel := range []string{"x/1.txt", "x/2.txt", "y/3.txt"} {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("data"), 0o644))
	}

	files, err := collectFiles([]string{
		filepath.Join(dir, "**", "*.txt"),
		filepath.Join(dir, "x", "*.txt"),
	}, []string{"**/y/**"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "x", "1.txt"),
		filepath.Join(dir, "x", "2.txt"),
	}, files)

	_, err = collectFiles([]string{filepath.Join(dir, "[")}, nil)
	assert.Error(t, err)
}

func TestTruncateLine(t *testing.T) {
	assert.Equal(t, "a b", truncateLine("a\nb", 10))

	got := truncateLine(strings.Repeat("日", 4), 4)
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "日...", got)
}
