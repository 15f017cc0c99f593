package main

import (
	"fmt"

	mailjet "github.com/mailjet/mailjet-apiv3-go/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beaverzip/appraise/internal/mailer"
	"github.com/beaverzip/appraise/internal/pipeline"
	"github.com/beaverzip/appraise/internal/store"
)

var dispatchRunID string

func init() {
	rootCmd.AddCommand(dispatchCmd)
	dispatchCmd.Flags().StringVar(&dispatchRunID, "run", "", "Run whose artifacts to send (default latest)")
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Resend the reports of a recorded run",
	Long: `Email the artifacts of an already-recorded run without
regenerating them. Useful after fixing delivery credentials or when a
previous run skipped email.`,
	RunE: runDispatch,
}

// DispatchResult is the response for the dispatch command.
type DispatchResult struct {
	RunID   string   `json:"run_id"`
	Sent    int      `json:"sent"`
	Skipped []string `json:"skipped,omitempty"`
	Failed  int      `json:"failed"`
}

func runDispatch(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateDispatch(); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	ctx := cmd.Context()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	defer st.Close()

	runID := dispatchRunID
	if runID == "" {
		runID, err = st.LatestRunID(ctx)
		if err != nil {
			exitWithError(ExitError, "%v", err)
		}
		if runID == "" {
			exitWithError(ExitDataError, "no recorded runs in %s", cfg.DatabasePath)
		}
	}

	artifacts, err := st.Artifacts(ctx, runID)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	if len(artifacts) == 0 {
		exitWithError(ExitDataError, "run %s has no recorded artifacts", runID)
	}

	records, _ := loadSurvey(ctx, st)

	summary := pipeline.Summary{
		RunID:     runID,
		Total:     len(artifacts),
		Succeeded: len(artifacts),
		Artifacts: artifacts,
		Failures:  map[string]error{},
	}

	mj := mailjet.NewMailjetClient(cfg.MailjetAPIKey, cfg.MailjetSecretKey)
	dispatcher := mailer.NewDispatcher(mj, cfg.SenderEmail, cfg.SenderName,
		mailer.WithLogger(logger))

	rep := dispatcher.Dispatch(ctx, records, summary)
	if err := dispatcher.SendAdminSummary(ctx, cfg.AdminEmail, summary, rep); err != nil {
		logger.Warn("sending admin summary failed", zap.Error(err))
	}

	if humanOutput {
		fmt.Printf("Dispatch for run %s:\n", runID)
		fmt.Printf("  Emails sent: %d\n", rep.Sent)
		if len(rep.Failures) > 0 {
			fmt.Printf("  Failed: %d\n", len(rep.Failures))
		}
		if len(rep.Skipped) > 0 {
			fmt.Printf("  Skipped: %d\n", len(rep.Skipped))
		}
	} else {
		outputJSON(DispatchResult{
			RunID:   runID,
			Sent:    rep.Sent,
			Skipped: rep.Skipped,
			Failed:  len(rep.Failures),
		})
	}
	return nil
}
