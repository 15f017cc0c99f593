package recommend

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/beaverzip/appraise/internal/corpus"
	"github.com/beaverzip/appraise/internal/feedback"
	"github.com/beaverzip/appraise/internal/solar"
)

const (
	// DefaultTopK is the number of books recommended per employee.
	DefaultTopK = 3

	// SummaryMaxRunes bounds the fallback excerpt when summarization
	// fails: a rune-safe prefix of the raw description.
	SummaryMaxRunes = 300
)

// QuestionTag maps a free-text question to its competency label.
type QuestionTag struct {
	Label string // competency label the question probes
	Text  string // question wording, quoted back in prompts
}

// Recommendation is one suggested book for an employee.
type Recommendation struct {
	BookID     string  `json:"book_id"`
	Title      string  `json:"title"`
	Authors    string  `json:"authors"`
	Similarity float64 `json:"similarity"`
	Summary    string  `json:"summary"`
	Thumbnail  string  `json:"thumbnail,omitempty"`
	Query      string  `json:"query"`
}

// Engine derives book recommendations from an employee's weakest
// competency and the tagged free-text feedback behind it.
type Engine struct {
	client solar.Client
	tags   map[string]QuestionTag
	k      int
	logger *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTopK overrides the number of recommendations per employee.
func WithTopK(k int) EngineOption {
	return func(e *Engine) { e.k = k }
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a recommendation engine. tags maps question keys to
// their competency labels and wording.
func NewEngine(client solar.Client, tags map[string]QuestionTag, opts ...EngineOption) *Engine {
	e := &Engine{
		client: client,
		tags:   tags,
		k:      DefaultTopK,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Recommend returns up to K books for the employee's weakest competency.
//
// An employee with no weakness or no free-text answers tagged with it
// gets an empty result, not an error: there is no qualitative feedback
// to reason from. Completion and embedding failures surface as errors
// and fail only this employee's job; a failed per-book summarization
// falls back to a truncated excerpt instead.
func (e *Engine) Recommend(ctx context.Context, rec feedback.EmployeeRecord, c *corpus.Corpus) ([]Recommendation, error) {
	if rec.Weakness == "" {
		return nil, nil
	}

	prompt := e.buildWeaknessPrompt(rec)
	if prompt == "" {
		e.logger.Debug("no tagged free-text feedback",
			zap.String("employee", rec.EmployeeID),
			zap.String("weakness", rec.Weakness))
		return nil, nil
	}

	query, err := e.client.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("deriving deficiency query: %w", err)
	}
	query = strings.TrimSpace(query)

	queryVec, err := e.client.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding deficiency query: %w", err)
	}

	best := newTopK(e.k)
	c.Each(func(entry corpus.Entry) {
		if len(entry.Embedding) == 0 {
			return
		}
		best.Consider(Candidate{
			Entry:      entry,
			Similarity: CosineSimilarity(queryVec, entry.Embedding),
		})
	})

	candidates := best.Results()
	recs := make([]Recommendation, 0, len(candidates))
	for _, cand := range candidates {
		recs = append(recs, Recommendation{
			BookID:     cand.Entry.ID,
			Title:      cand.Entry.Title,
			Authors:    strings.Join(cand.Entry.Authors, ", "),
			Similarity: cand.Similarity,
			Summary:    e.summarize(ctx, cand.Entry),
			Thumbnail:  cand.Entry.Thumbnail,
			Query:      query,
		})
	}

	return recs, nil
}

// buildWeaknessPrompt concatenates the Q&A pairs tagged with the
// employee's weakness into the deficiency-query prompt. Returns "" when
// no answer carries the weakness tag.
func (e *Engine) buildWeaknessPrompt(rec feedback.EmployeeRecord) string {
	var qa strings.Builder
	for _, answer := range rec.Answers {
		tag, ok := e.tags[answer.QuestionID]
		if !ok || tag.Label != rec.Weakness {
			continue
		}
		for _, text := range answer.Texts {
			fmt.Fprintf(&qa, "Question: %s\nAnswer: %s\n", tag.Text, text)
		}
	}
	if qa.Len() == 0 {
		return ""
	}

	return fmt.Sprintf(`The following is peer feedback on the competency an employee was rated lowest on:
[%s]
%s
Analyze the feedback and describe the employee's biggest shortcoming as a single sentence of the form:
"a book for someone who struggles to ~ at work"

Examples:
- "a book for someone who struggles to communicate effectively at work"
- "a book for someone who struggles to manage time and prioritize tasks at work"
- "a book for someone who struggles to collaborate with teammates at work"`, rec.Weakness, qa.String())
}

// summarize asks the completion model for a short description of the
// book. Failures never abort the recommendation: the raw description is
// truncated instead.
func (e *Engine) summarize(ctx context.Context, entry corpus.Entry) string {
	prompt := fmt.Sprintf(`Read the following book description and summarize its key ideas:

%s

Follow these rules:
1. Capture the book's core topic or message.
2. Be brief and clear.
3. Stay under %d characters including spaces.`, entry.Contents, SummaryMaxRunes)

	summary, err := e.client.Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("book summarization failed, using excerpt",
			zap.String("book", entry.ID), zap.Error(err))
		return truncateRunes(entry.Contents, SummaryMaxRunes)
	}
	return strings.TrimSpace(summary)
}

// truncateRunes cuts s to at most max runes, appending "..." when cut.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}
