package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beaverzip/appraise/internal/corpus"
	"github.com/beaverzip/appraise/internal/pipeline"
	"github.com/beaverzip/appraise/internal/retry"
	"github.com/beaverzip/appraise/internal/solar"
)

var (
	corpusBooksPath string
	corpusShardSize int
)

func init() {
	rootCmd.AddCommand(corpusCmd)
	corpusCmd.AddCommand(corpusBuildCmd)
	corpusCmd.AddCommand(corpusInfoCmd)

	corpusBuildCmd.Flags().StringVar(&corpusBooksPath, "books", "", "JSON dump of books to embed (required)")
	corpusBuildCmd.Flags().IntVar(&corpusShardSize, "shard-size", corpus.DefaultShardSize, "Books per shard file")
	corpusBuildCmd.MarkFlagRequired("books")
}

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the book-embedding corpus",
	Long:  `Commands for building and inspecting the sharded book corpus.`,
}

// CorpusBuildResult is the response for corpus build.
type CorpusBuildResult struct {
	Status   string `json:"status"`
	Embedded int    `json:"embedded"`
	Resumed  int    `json:"resumed"`
	Failed   int    `json:"failed"`
	Shards   int    `json:"shards_written"`
	Dir      string `json:"dir"`
}

var corpusBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Embed a book dump into corpus shards",
	Long: `Embed every book description from a JSON dump and write the
results as gob shard files. Reruns are resumable: books already present
in existing shards are not re-embedded.`,
	RunE: runCorpusBuild,
}

func runCorpusBuild(cmd *cobra.Command, args []string) error {
	if cfg.UpstageAPIKey == "" {
		exitWithError(ExitConfigError, "upstage_api_key must be set")
	}

	books, err := corpus.ReadBooks(corpusBooksPath)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}

	client := solar.NewClient(cfg.UpstageAPIKey,
		solar.WithBaseURL(cfg.SolarBaseURL),
		solar.WithRateLimit(cfg.SolarRateLimit))
	gated := pipeline.NewGatedClient(client, int64(cfg.APIConcurrency), retry.Default)

	builder := corpus.NewBuilder(gated,
		corpus.WithShardSize(corpusShardSize),
		corpus.WithBuilderLogger(logger))

	result, err := builder.Build(cmd.Context(), books, cfg.CorpusDir)
	if err != nil {
		exitWithError(ExitError, "building corpus: %v", err)
	}

	if humanOutput {
		fmt.Printf("Corpus build complete:\n")
		fmt.Printf("  Books embedded: %d\n", result.Embedded)
		fmt.Printf("  Already present: %d\n", result.Resumed)
		fmt.Printf("  Failed: %d\n", result.Failed)
		fmt.Printf("  Shards written: %d\n", result.Shards)
	} else {
		outputJSON(CorpusBuildResult{
			Status:   "complete",
			Embedded: result.Embedded,
			Resumed:  result.Resumed,
			Failed:   result.Failed,
			Shards:   result.Shards,
			Dir:      cfg.CorpusDir,
		})
	}
	return nil
}

// CorpusInfoResult is the response for corpus info.
type CorpusInfoResult struct {
	Dir     string `json:"dir"`
	Shards  int    `json:"shards"`
	Entries int    `json:"entries"`
}

var corpusInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show corpus shard and entry counts",
	RunE:  runCorpusInfo,
}

func runCorpusInfo(cmd *cobra.Command, args []string) error {
	paths, err := corpus.ShardPaths(cfg.CorpusDir)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if len(paths) == 0 {
		exitWithError(ExitDataError, "no corpus shards in %s", cfg.CorpusDir)
	}

	c, err := corpus.Load(paths, logger)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}

	if humanOutput {
		fmt.Printf("Corpus: %s\n", cfg.CorpusDir)
		fmt.Printf("  Shards: %d\n", len(paths))
		fmt.Printf("  Books: %d\n", c.Len())
	} else {
		outputJSON(CorpusInfoResult{Dir: cfg.CorpusDir, Shards: len(paths), Entries: c.Len()})
	}
	return nil
}
