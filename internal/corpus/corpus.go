// Package corpus loads the sharded book-embedding corpus into an
// immutable in-memory handle shared by all concurrent pipeline jobs.
package corpus

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ShardPattern matches corpus shard files inside a corpus directory.
const ShardPattern = "books_chunk_*.gob"

// ErrNoShards indicates that no shard could be loaded at all. A partially
// unreadable corpus is tolerated; a fully unreadable one aborts the run.
var ErrNoShards = errors.New("no usable corpus shards")

// Entry is one book with its precomputed description embedding.
type Entry struct {
	ID        string    `json:"id"` // ISBN, stable across runs
	Title     string    `json:"title"`
	Authors   []string  `json:"authors"`
	Contents  string    `json:"contents"`
	Thumbnail string    `json:"thumbnail"`
	Embedding []float32 `json:"embedding"`
}

// Corpus is the merged, read-only book corpus. After Load returns no
// writer exists, so concurrent reads need no locking.
type Corpus struct {
	entries map[string]Entry
	order   []string // entry IDs sorted for a deterministic scan order
}

// New builds a Corpus directly from an entry mapping. Load is the usual
// entry point; New serves the shard builder and fixture construction.
func New(entries map[string]Entry) *Corpus {
	order := make([]string, 0, len(entries))
	for id := range entries {
		order = append(order, id)
	}
	sort.Strings(order)
	return &Corpus{entries: entries, order: order}
}

// ShardPaths lists the shard files under dir in lexical order.
func ShardPaths(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, ShardPattern))
	if err != nil {
		return nil, fmt.Errorf("listing corpus shards: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Load reads every shard file in parallel and merges them into one Corpus,
// last shard winning on ID collision. A shard that fails to decode is
// logged and skipped; Load fails only when not a single shard is usable.
func Load(paths []string, logger *zap.Logger) (*Corpus, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	type shardResult struct {
		index   int
		entries map[string]Entry
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []shardResult
	)

	for i, path := range paths {
		wg.Add(1)
		go func(index int, path string) {
			defer wg.Done()
			entries, err := readShard(path)
			if err != nil {
				logger.Warn("skipping unreadable corpus shard",
					zap.String("path", path), zap.Error(err))
				return
			}
			mu.Lock()
			results = append(results, shardResult{index: index, entries: entries})
			mu.Unlock()
		}(i, path)
	}
	wg.Wait()

	if len(results) == 0 {
		return nil, ErrNoShards
	}

	// Merge in shard order so collisions resolve last-shard-wins
	// regardless of goroutine completion order.
	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	merged := make(map[string]Entry)
	for _, r := range results {
		for id, entry := range r.entries {
			merged[id] = entry
		}
	}

	order := make([]string, 0, len(merged))
	for id := range merged {
		order = append(order, id)
	}
	sort.Strings(order)

	logger.Info("corpus loaded",
		zap.Int("shards", len(results)),
		zap.Int("shards_skipped", len(paths)-len(results)),
		zap.Int("entries", len(merged)))

	return &Corpus{entries: merged, order: order}, nil
}

// readShard decodes one gob shard into its ID-to-entry mapping.
func readShard(path string) (map[string]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening shard: %w", err)
	}
	defer f.Close()

	var entries map[string]Entry
	if err := gob.NewDecoder(f).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding shard: %w", err)
	}
	return entries, nil
}

// Get returns the entry for the given book ID.
func (c *Corpus) Get(id string) (Entry, bool) {
	e, ok := c.entries[id]
	return e, ok
}

// Len returns the number of entries in the corpus.
func (c *Corpus) Len() int {
	return len(c.entries)
}

// Dimensions returns the embedding width, taken from the first entry
// that has one; zero for an unembedded corpus.
func (c *Corpus) Dimensions() int {
	for _, id := range c.order {
		if n := len(c.entries[id].Embedding); n > 0 {
			return n
		}
	}
	return 0
}

// Each calls fn for every entry in a deterministic (ID-sorted) order.
// The scan order defines insertion order for similarity tie-breaking.
func (c *Corpus) Each(fn func(Entry)) {
	for _, id := range c.order {
		fn(c.entries[id])
	}
}

// WriteShard encodes entries as a gob shard file. Used by the corpus
// builder and by tests constructing fixture corpora.
func WriteShard(path string, entries map[string]Entry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating shard: %w", err)
	}

	if err := gob.NewEncoder(f).Encode(entries); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encoding shard: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing shard: %w", err)
	}
	return nil
}
