package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	mailjet "github.com/mailjet/mailjet-apiv3-go/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beaverzip/appraise/internal/corpus"
	"github.com/beaverzip/appraise/internal/feedback"
	"github.com/beaverzip/appraise/internal/mailer"
	"github.com/beaverzip/appraise/internal/pipeline"
	"github.com/beaverzip/appraise/internal/recommend"
	"github.com/beaverzip/appraise/internal/report"
	"github.com/beaverzip/appraise/internal/retry"
	"github.com/beaverzip/appraise/internal/solar"
	"github.com/beaverzip/appraise/internal/store"
)

var (
	runOutDir    string
	runSkipEmail bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runOutDir, "out", "", "Report output directory (default from config)")
	runCmd.Flags().BoolVar(&runSkipEmail, "skip-email", false, "Render reports without emailing them")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate and deliver appraisal reports for every employee",
	Long: `Run the full pipeline: aggregate peer feedback, derive each
employee's weakest competency, search the book corpus, render the PDF
reports, and email them out with an admin summary. Use --skip-email to
only render; 'appraise dispatch' can deliver the run later.`,
	RunE: runRun,
}

// RunResult is the response for the run command.
type RunResult struct {
	RunID          string            `json:"run_id"`
	Employees      int               `json:"employees"`
	Reports        int               `json:"reports"`
	Failed         int               `json:"failed"`
	Failures       map[string]string `json:"failures,omitempty"`
	EmailsSent     int               `json:"emails_sent,omitempty"`
	EmailsSkipped  []string          `json:"emails_skipped,omitempty"`
	DurationSecond float64           `json:"duration_seconds"`
	OutputDir      string            `json:"output_dir"`
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateRun(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	if !runSkipEmail {
		if err := cfg.ValidateDispatch(); err != nil {
			exitWithError(ExitConfigError, "%v", err)
		}
	}
	ctx := cmd.Context()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	defer st.Close()
	records, tags := loadSurvey(ctx, st)

	c := loadCorpus()

	outDir := runOutDir
	if outDir == "" {
		outDir = cfg.OutputDir
	}
	renderer, err := report.NewRenderer(outDir, report.WithLogger(logger))
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	client := solar.NewClient(cfg.UpstageAPIKey,
		solar.WithBaseURL(cfg.SolarBaseURL),
		solar.WithRateLimit(cfg.SolarRateLimit))
	gated := pipeline.NewGatedClient(client, int64(cfg.APIConcurrency), retry.Default)

	engine := recommend.NewEngine(gated, tags,
		recommend.WithTopK(cfg.TopK),
		recommend.WithLogger(logger))

	runner := pipeline.NewRunner(engine, renderer,
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithRunnerLogger(logger))

	summary := runner.Run(ctx, records, c)

	if err := st.RecordRun(ctx, summary); err != nil {
		logger.Warn("recording run history failed", zap.Error(err))
	}

	result := RunResult{
		RunID:          summary.RunID,
		Employees:      summary.Total,
		Reports:        summary.Succeeded,
		Failed:         summary.Failed,
		DurationSecond: summary.Elapsed.Seconds(),
		OutputDir:      outDir,
	}
	if len(summary.Failures) > 0 {
		result.Failures = make(map[string]string, len(summary.Failures))
		for id, ferr := range summary.Failures {
			result.Failures[id] = ferr.Error()
		}
	}

	if !runSkipEmail {
		rep := dispatchReports(ctx, records, summary)
		result.EmailsSent = rep.Sent
		result.EmailsSkipped = rep.Skipped
	}

	if humanOutput {
		fmt.Printf("Run %s complete:\n", result.RunID)
		fmt.Printf("  Reports generated: %d/%d\n", result.Reports, result.Employees)
		if result.Failed > 0 {
			fmt.Printf("  Failed: %d\n", result.Failed)
			for _, id := range sortedFailureIDs(result.Failures) {
				fmt.Printf("    %s: %s\n", id, result.Failures[id])
			}
		}
		if !runSkipEmail {
			fmt.Printf("  Emails sent: %d\n", result.EmailsSent)
		}
		fmt.Printf("  Output: %s\n", result.OutputDir)
		fmt.Printf("  Time elapsed: %s\n", formatDuration(summary.Elapsed))
	} else {
		outputJSON(result)
	}

	if summary.Failed > 0 {
		os.Exit(ExitPartial)
	}
	return nil
}

// loadSurvey aggregates the employee records from an open store.
func loadSurvey(ctx context.Context, st *store.Store) ([]feedback.EmployeeRecord, map[string]recommend.QuestionTag) {
	users, err := st.Users(ctx)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	scores, teamAvg, err := st.Scores(ctx)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	texts, err := st.Responses(ctx)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}
	tags, err := st.Questions(ctx)
	if err != nil {
		exitWithError(ExitDataError, "%v", err)
	}

	records := feedback.Aggregate(users, scores, teamAvg, texts)
	if len(records) == 0 {
		exitWithError(ExitDataError, "no employees with scores in %s", cfg.DatabasePath)
	}
	return records, tags
}

// loadCorpus loads the book shards, failing only when none are usable.
func loadCorpus() *corpus.Corpus {
	paths, err := corpus.ShardPaths(cfg.CorpusDir)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	c, err := corpus.Load(paths, logger)
	if err != nil {
		if errors.Is(err, corpus.ErrNoShards) {
			exitWithError(ExitDataError,
				"no usable corpus shards in %s; run 'appraise corpus build' first", cfg.CorpusDir)
		}
		exitWithError(ExitError, "%v", err)
	}
	return c
}

// dispatchReports emails the rendered reports and the admin summary.
func dispatchReports(ctx context.Context, records []feedback.EmployeeRecord, summary pipeline.Summary) mailer.Report {
	mj := mailjet.NewMailjetClient(cfg.MailjetAPIKey, cfg.MailjetSecretKey)
	dispatcher := mailer.NewDispatcher(mj, cfg.SenderEmail, cfg.SenderName,
		mailer.WithLogger(logger))

	rep := dispatcher.Dispatch(ctx, records, summary)
	if err := dispatcher.SendAdminSummary(ctx, cfg.AdminEmail, summary, rep); err != nil {
		logger.Warn("sending admin summary failed", zap.Error(err))
	}
	return rep
}

func sortedFailureIDs(failures map[string]string) []string {
	ids := make([]string, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
