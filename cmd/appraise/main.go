// Package main provides the appraise CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/beaverzip/appraise/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

var (
	configPath string
	verbose    bool
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "appraise",
	Short: "Batch performance-appraisal report pipeline",
	Long: `appraise turns peer-review survey data into per-employee PDF
appraisal reports with book recommendations, and emails them out.

Scores and free-text feedback are read from the survey SQLite database,
each employee's weakest competency drives a semantic search over the
book corpus, and the rendered reports are delivered over Mailjet.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default $APPRAISE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.Version = Version
}

// setup loads .env, the layered config, and the logger before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	// A missing .env is fine; explicit env and config files still apply.
	_ = godotenv.Load()

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	logger, err = newLogger(level)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	cobra.OnFinalize(func() { _ = logger.Sync() })
	return nil
}

// newLogger builds a production zap logger at the configured level,
// writing to stderr so command output on stdout stays parseable.
func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg.Build()
}
