// Package feedback builds per-employee records from peer-submitted scores
// and free-text answers, and selects each employee's weakest competency.
package feedback

// RoleEmployee is the user role included in report generation.
// Administrators and other roles never receive reports.
const RoleEmployee = "employee"

// ScorePair is one (competency label, score) pair.
type ScorePair struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Answer holds the free-text responses collected for one question.
// Multiple reviewers may answer the same question, so Texts is a list.
type Answer struct {
	QuestionID string   `json:"question_id"`
	Texts      []string `json:"texts"`
}

// User is an employee row supplied by the surrounding application.
type User struct {
	ID    string
	Name  string
	Unit  string
	Rank  string
	Role  string
	Email string
}

// ScoreRow is one employee's scored-feedback row. Scores preserves the
// column order of the score table's competency columns.
type ScoreRow struct {
	EmployeeID string
	Grade      string
	Total      float64
	Scores     []ScorePair
}

// TextRow carries one employee's free-text answers keyed by question column.
type TextRow struct {
	EmployeeID string
	Answers    map[string][]string
}

// EmployeeRecord is the aggregated, immutable input for one employee's
// report. It is created once per run and never mutated afterward.
type EmployeeRecord struct {
	EmployeeID string
	Name       string
	Position   string
	Email      string
	Grade      string
	Total      float64

	// Scores and TeamAverage share the same label set in the same order.
	Scores      []ScorePair
	TeamAverage []ScorePair

	// Answers are free-text responses, sorted by question key.
	Answers []Answer

	// Weakness is the selected weakest-competency label, or "" when the
	// employee has no scores to select from.
	Weakness string
}
