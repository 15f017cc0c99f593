package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/beaverzip/appraise/internal/solar"
)

// DefaultShardSize is the number of books per shard file.
const DefaultShardSize = 1000

// BookInput is one book from the raw dump, before embedding.
type BookInput struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Contents  string   `json:"contents"`
	Thumbnail string   `json:"thumbnail"`
}

// ReadBooks parses a JSON dump of books.
func ReadBooks(path string) ([]BookInput, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading book dump: %w", err)
	}
	var books []BookInput
	if err := json.Unmarshal(raw, &books); err != nil {
		return nil, fmt.Errorf("parsing book dump: %w", err)
	}
	return books, nil
}

// BuildResult summarizes one builder pass.
type BuildResult struct {
	Embedded int // books embedded and written this pass
	Resumed  int // books already present in existing shards
	Failed   int // books whose embedding failed and were skipped
	Shards   int // shard files written this pass
}

// Builder embeds book descriptions and writes them out as gob shards.
// A rerun is resumable: books already present in the directory's shards
// are not re-embedded.
type Builder struct {
	client    solar.Client
	shardSize int
	logger    *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithShardSize overrides the books-per-shard count.
func WithShardSize(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.shardSize = n
		}
	}
}

// WithBuilderLogger sets the builder logger.
func WithBuilderLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

// NewBuilder creates a corpus builder embedding through client.
func NewBuilder(client solar.Client, opts ...BuilderOption) *Builder {
	b := &Builder{
		client:    client,
		shardSize: DefaultShardSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build embeds every book not already sharded under dir and appends new
// shard files. Individual embedding failures skip that book; Build only
// fails on I/O errors or context cancellation.
func (b *Builder) Build(ctx context.Context, books []BookInput, dir string) (BuildResult, error) {
	var result BuildResult

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return result, fmt.Errorf("creating corpus directory: %w", err)
	}

	existing, next, err := existingIDs(dir)
	if err != nil {
		return result, err
	}

	// Deterministic shard layout across reruns of the same dump.
	sorted := append([]BookInput(nil), books...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	pending := make(map[string]Entry, b.shardSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		path := filepath.Join(dir, fmt.Sprintf("books_chunk_%04d.gob", next))
		if err := WriteShard(path, pending); err != nil {
			return err
		}
		b.logger.Info("corpus shard written",
			zap.String("path", path), zap.Int("entries", len(pending)))
		next++
		result.Shards++
		pending = make(map[string]Entry, b.shardSize)
		return nil
	}

	for _, book := range sorted {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if existing[book.ID] {
			result.Resumed++
			continue
		}

		vec, err := b.client.EmbedPassage(ctx, book.Contents)
		if err != nil {
			b.logger.Warn("embedding failed, skipping book",
				zap.String("book", book.ID), zap.Error(err))
			result.Failed++
			continue
		}

		pending[book.ID] = Entry{
			ID:        book.ID,
			Title:     book.Title,
			Authors:   book.Authors,
			Contents:  book.Contents,
			Thumbnail: book.Thumbnail,
			Embedding: vec,
		}
		result.Embedded++

		if len(pending) >= b.shardSize {
			if err := flush(); err != nil {
				return result, err
			}
		}
	}

	if err := flush(); err != nil {
		return result, err
	}
	return result, nil
}

// existingIDs collects the book IDs already sharded under dir and the
// next free shard index.
func existingIDs(dir string) (map[string]bool, int, error) {
	paths, err := ShardPaths(dir)
	if err != nil {
		return nil, 0, err
	}

	ids := make(map[string]bool)
	for _, path := range paths {
		entries, err := readShard(path)
		if err != nil {
			return nil, 0, fmt.Errorf("reading existing shard %s: %w", path, err)
		}
		for id := range entries {
			ids[id] = true
		}
	}
	return ids, len(paths), nil
}
