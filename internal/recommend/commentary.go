package recommend

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/beaverzip/appraise/internal/feedback"
)

// Commentary is the condensed page-two content for one employee: an
// overall assessment derived from the scores and one summarized section
// per competency the peers commented on.
type Commentary struct {
	Assessment string              `json:"assessment,omitempty"`
	Sections   []CompetencySummary `json:"sections,omitempty"`
}

// CompetencySummary condenses the peer free-text answers for one
// competency.
type CompetencySummary struct {
	Label   string `json:"label"`
	Summary string `json:"summary"`
}

// Summarize produces the report commentary for one employee. The
// assessment paraphrases the competency scores without repeating the
// numbers; each section condenses the peer answers tagged with that
// competency, in score-table order so related questions stay together.
//
// Summarization never fails the job: a failed assessment is dropped and
// a failed section falls back to a truncated excerpt of the raw answers.
func (e *Engine) Summarize(ctx context.Context, rec feedback.EmployeeRecord) Commentary {
	return Commentary{
		Assessment: e.summarizeScores(ctx, rec),
		Sections:   e.summarizeAnswers(ctx, rec),
	}
}

// summarizeScores asks the completion model to describe the employee
// from the score table alone. Returns "" when there are no scores or
// the call fails.
func (e *Engine) summarizeScores(ctx context.Context, rec feedback.EmployeeRecord) string {
	if len(rec.Scores) == 0 {
		return ""
	}

	var lines strings.Builder
	for _, pair := range rec.Scores {
		fmt.Fprintf(&lines, "%s: %.2f\n", pair.Label, pair.Score)
	}

	prompt := fmt.Sprintf(`The numbers below are peer assessments of an employee's competencies:

%s
Write a three-line description of the employee based on the scores.
Do not include the numbers themselves in the description.`, lines.String())

	out, err := e.client.Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("score summarization failed, omitting assessment",
			zap.String("employee", rec.EmployeeID), zap.Error(err))
		return ""
	}
	return strings.TrimSpace(out)
}

// summarizeAnswers groups the tagged free-text answers by competency
// label and condenses each group. Competencies without tagged answers
// produce no section.
func (e *Engine) summarizeAnswers(ctx context.Context, rec feedback.EmployeeRecord) []CompetencySummary {
	byLabel := make(map[string][]string)
	for _, answer := range rec.Answers {
		tag, ok := e.tags[answer.QuestionID]
		if !ok {
			continue
		}
		byLabel[tag.Label] = append(byLabel[tag.Label], answer.Texts...)
	}

	var sections []CompetencySummary
	for _, pair := range rec.Scores {
		texts := byLabel[pair.Label]
		if len(texts) == 0 {
			continue
		}
		sections = append(sections, CompetencySummary{
			Label:   pair.Label,
			Summary: e.summarizeSection(ctx, rec.EmployeeID, pair.Label, texts),
		})
	}
	return sections
}

// summarizeSection condenses one competency's peer comments. A failure
// falls back to a truncated excerpt of the raw comments, so the report
// never loses the feedback entirely.
func (e *Engine) summarizeSection(ctx context.Context, employeeID, label string, texts []string) string {
	prompt := fmt.Sprintf(`The following are peer comments about an employee's "%s" competency:

- %s

Summarize them in one or two sentences, keeping the strengths and the
points to improve that the reviewers mention. Do not invent feedback
that was not given.`, label, strings.Join(texts, "\n- "))

	out, err := e.client.Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("commentary summarization failed, using excerpt",
			zap.String("employee", employeeID),
			zap.String("competency", label), zap.Error(err))
		return truncateRunes(strings.Join(texts, " "), SummaryMaxRunes)
	}
	return strings.TrimSpace(out)
}
