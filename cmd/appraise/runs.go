package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/beaverzip/appraise/internal/store"
)

var runsLimit int

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list")
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded batch runs",
	RunE:  runRuns,
}

// RunsResult is the response for the runs command.
type RunsResult struct {
	Runs []RunEntry `json:"runs"`
}

// RunEntry is one run in the history listing.
type RunEntry struct {
	RunID     string  `json:"run_id"`
	StartedAt string  `json:"started_at"`
	Total     int     `json:"total"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	Seconds   float64 `json:"duration_seconds"`
}

func runRuns(cmd *cobra.Command, args []string) error {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}
	defer st.Close()

	runs, err := st.Runs(cmd.Context(), runsLimit)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		if len(runs) == 0 {
			fmt.Println("No recorded runs.")
			return nil
		}
		for _, r := range runs {
			fmt.Printf("%s  %s  %d/%d reports  %s\n",
				r.RunID, r.StartedAt, r.Succeeded, r.Total,
				formatDuration(time.Duration(r.ElapsedMS)*time.Millisecond))
		}
		return nil
	}

	result := RunsResult{Runs: make([]RunEntry, 0, len(runs))}
	for _, r := range runs {
		result.Runs = append(result.Runs, RunEntry{
			RunID:     r.RunID,
			StartedAt: r.StartedAt,
			Total:     r.Total,
			Succeeded: r.Succeeded,
			Failed:    r.Failed,
			Seconds:   float64(r.ElapsedMS) / 1000,
		})
	}
	return outputJSON(result)
}
