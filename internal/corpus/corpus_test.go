package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func writeTestShard(t *testing.T, dir, name string, entries map[string]Entry) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := WriteShard(path, entries); err != nil {
		t.Fatalf("writing shard %s: %v", name, err)
	}
	return path
}

func TestLoadMergesShards(t *testing.T) {
	dir := t.TempDir()
	writeTestShard(t, dir, "books_chunk_0.gob", map[string]Entry{
		"isbn-1": {ID: "isbn-1", Title: "First", Embedding: []float32{1, 0}},
		"isbn-2": {ID: "isbn-2", Title: "Second", Embedding: []float32{0, 1}},
	})
	writeTestShard(t, dir, "books_chunk_1.gob", map[string]Entry{
		"isbn-3": {ID: "isbn-3", Title: "Third", Embedding: []float32{1, 1}},
	})

	paths, err := ShardPaths(dir)
	if err != nil {
		t.Fatalf("ShardPaths: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected 2 shard paths, got %d", len(paths))
	}

	c, err := Load(paths, zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 3 {
		t.Errorf("Len = %d, want 3", c.Len())
	}
	if _, ok := c.Get("isbn-2"); !ok {
		t.Error("isbn-2 missing after merge")
	}
}

func TestLoadLastShardWinsOnCollision(t *testing.T) {
	dir := t.TempDir()
	writeTestShard(t, dir, "books_chunk_0.gob", map[string]Entry{
		"isbn-1": {ID: "isbn-1", Title: "Old Title"},
	})
	writeTestShard(t, dir, "books_chunk_1.gob", map[string]Entry{
		"isbn-1": {ID: "isbn-1", Title: "New Title"},
	})

	paths, _ := ShardPaths(dir)
	c, err := Load(paths, zap.NewNop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	e, _ := c.Get("isbn-1")
	if e.Title != "New Title" {
		t.Errorf("collision resolved to %q, want last-shard value %q", e.Title, "New Title")
	}
}

func TestLoadSkipsUnreadableShard(t *testing.T) {
	dir := t.TempDir()
	writeTestShard(t, dir, "books_chunk_0.gob", map[string]Entry{
		"isbn-1": {ID: "isbn-1", Title: "Good"},
	})
	bad := filepath.Join(dir, "books_chunk_1.gob")
	if err := os.WriteFile(bad, []byte("not gob data"), 0644); err != nil {
		t.Fatal(err)
	}

	paths, _ := ShardPaths(dir)
	c, err := Load(paths, zap.NewNop())
	if err != nil {
		t.Fatalf("Load should tolerate one bad shard: %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, want 1", c.Len())
	}
}

func TestLoadFailsWhenNoShardUsable(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "books_chunk_0.gob")
	if err := os.WriteFile(bad, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	paths, _ := ShardPaths(dir)
	if _, err := Load(paths, zap.NewNop()); err != ErrNoShards {
		t.Errorf("expected ErrNoShards, got %v", err)
	}
}

func TestEachIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	writeTestShard(t, dir, "books_chunk_0.gob", map[string]Entry{
		"c": {ID: "c"}, "a": {ID: "a"}, "b": {ID: "b"},
	})

	paths, _ := ShardPaths(dir)
	c, err := Load(paths, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	var first []string
	c.Each(func(e Entry) { first = append(first, e.ID) })
	for i := 0; i < 10; i++ {
		var got []string
		c.Each(func(e Entry) { got = append(got, e.ID) })
		for j := range got {
			if got[j] != first[j] {
				t.Fatalf("scan order changed between runs: %v vs %v", got, first)
			}
		}
	}
}
