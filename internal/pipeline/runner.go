package pipeline

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beaverzip/appraise/internal/corpus"
	"github.com/beaverzip/appraise/internal/feedback"
	"github.com/beaverzip/appraise/internal/recommend"
	"github.com/beaverzip/appraise/internal/report"
)

// MaxWorkers caps the render pool; beyond this the PDF library's CPU
// use dominates and extra workers only add contention.
const MaxWorkers = 8

// Recommender produces book recommendations and the summarized report
// commentary for one employee.
type Recommender interface {
	Recommend(ctx context.Context, rec feedback.EmployeeRecord, c *corpus.Corpus) ([]recommend.Recommendation, error)
	Summarize(ctx context.Context, rec feedback.EmployeeRecord) recommend.Commentary
}

// Renderer writes one employee's report file.
type Renderer interface {
	Render(ctx context.Context, rec feedback.EmployeeRecord, commentary recommend.Commentary, recs []recommend.Recommendation) (report.Artifact, error)
}

// Status is a job's position in the pipeline.
type Status string

const (
	StatusPending      Status = "pending"
	StatusRecommending Status = "recommending"
	StatusRendering    Status = "rendering"
	StatusDone         Status = "done"
	StatusFailed       Status = "failed"
)

// JobResult is the terminal state of one employee's job.
type JobResult struct {
	EmployeeID      string
	Status          Status
	Artifact        report.Artifact
	Commentary      recommend.Commentary
	Recommendations []recommend.Recommendation
	Err             error
}

// Summary aggregates one full batch run. A failed job never removes
// other employees' artifacts from the summary.
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	Artifacts []report.Artifact
	Failures  map[string]error
	Results   map[string]JobResult
	Elapsed   time.Duration
}

// Runner drives the per-employee jobs over a fixed worker pool.
type Runner struct {
	recommender Recommender
	renderer    Renderer
	workers     int
	logger      *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithWorkers overrides the worker-pool size.
func WithWorkers(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// DefaultWorkers sizes the pool to the machine, capped at MaxWorkers.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > MaxWorkers {
		n = MaxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// NewRunner builds a runner.
func NewRunner(recommender Recommender, renderer Renderer, opts ...RunnerOption) *Runner {
	r := &Runner{
		recommender: recommender,
		renderer:    renderer,
		workers:     DefaultWorkers(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every employee record and returns the batch summary.
// Individual job failures are recorded, not propagated; Run itself only
// reflects context cancellation through the per-job errors.
func (r *Runner) Run(ctx context.Context, records []feedback.EmployeeRecord, c *corpus.Corpus) Summary {
	start := time.Now()
	runID := uuid.NewString()

	r.logger.Info("batch run starting",
		zap.String("run_id", runID),
		zap.Int("employees", len(records)),
		zap.Int("workers", r.workers))

	jobs := make(chan feedback.EmployeeRecord)
	results := make(chan JobResult)

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				results <- r.process(ctx, rec, c)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, rec := range records {
			select {
			case jobs <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	summary := Summary{
		RunID:    runID,
		Total:    len(records),
		Failures: make(map[string]error),
		Results:  make(map[string]JobResult, len(records)),
	}
	for res := range results {
		summary.Results[res.EmployeeID] = res
		if res.Err != nil {
			summary.Failed++
			summary.Failures[res.EmployeeID] = res.Err
			continue
		}
		summary.Succeeded++
		summary.Artifacts = append(summary.Artifacts, res.Artifact)
	}

	sort.Slice(summary.Artifacts, func(i, j int) bool {
		return summary.Artifacts[i].EmployeeID < summary.Artifacts[j].EmployeeID
	})

	summary.Elapsed = time.Since(start)
	r.logger.Info("batch run finished",
		zap.String("run_id", runID),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", summary.Elapsed))

	return summary
}

// process walks one employee through recommend then render. Commentary
// summarization rides in the recommend stage so every provider call
// goes through the same gate.
func (r *Runner) process(ctx context.Context, rec feedback.EmployeeRecord, c *corpus.Corpus) JobResult {
	result := JobResult{EmployeeID: rec.EmployeeID, Status: StatusRecommending}

	recs, err := r.recommender.Recommend(ctx, rec, c)
	if err != nil {
		r.logger.Warn("recommendation failed",
			zap.String("employee", rec.EmployeeID), zap.Error(err))
		result.Status = StatusFailed
		result.Err = err
		return result
	}
	result.Recommendations = recs
	result.Commentary = r.recommender.Summarize(ctx, rec)

	result.Status = StatusRendering
	artifact, err := r.renderer.Render(ctx, rec, result.Commentary, recs)
	if err != nil {
		r.logger.Warn("render failed",
			zap.String("employee", rec.EmployeeID), zap.Error(err))
		result.Status = StatusFailed
		result.Err = err
		return result
	}

	result.Status = StatusDone
	result.Artifact = artifact
	return result
}
