// Package store reads the peer-review survey database and records run
// history. The survey application owns the users, scores, and responses
// tables and adds one column per competency and per free-text question,
// so reads discover columns at runtime instead of assuming a fixed set.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/beaverzip/appraise/internal/feedback"
	"github.com/beaverzip/appraise/internal/recommend"
)

// TeamAverageRow is the synthetic scores row holding per-competency team
// averages instead of a real employee's scores.
const TeamAverageRow = "average"

// scoreMetaColumns are the scores columns that are not competencies.
var scoreMetaColumns = map[string]bool{
	"id":          true,
	"to_username": true,
	"grade":       true,
	"total":       true,
	"created_at":  true,
}

// responseMetaColumns are the responses columns that are not questions.
var responseMetaColumns = map[string]bool{
	"id":          true,
	"to_username": true,
	"created_at":  true,
}

// Store wraps the survey SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the survey database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Users returns every registered user.
func (s *Store) Users(ctx context.Context) ([]feedback.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, name, unit, rank, role, email FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []feedback.User
	for rows.Next() {
		var u feedback.User
		var unit, rank, email sql.NullString
		if err := rows.Scan(&u.ID, &u.Name, &unit, &rank, &u.Role, &email); err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		u.Unit = unit.String
		u.Rank = rank.String
		u.Email = email.String
		users = append(users, u)
	}
	return users, rows.Err()
}

// Scores returns every employee's score row plus the team-average pairs
// taken from the synthetic "average" row. Competency columns are
// discovered from the table itself; their table order defines the
// competency order everywhere downstream.
func (s *Store) Scores(ctx context.Context) ([]feedback.ScoreRow, []feedback.ScorePair, error) {
	competencies, err := s.dataColumns(ctx, "scores", scoreMetaColumns)
	if err != nil {
		return nil, nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM scores ORDER BY id")
	if err != nil {
		return nil, nil, fmt.Errorf("listing scores: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var (
		scores  []feedback.ScoreRow
		teamAvg []feedback.ScorePair
	)
	for rows.Next() {
		holders := make([]any, len(cols))
		byName := make(map[string]*sql.NullFloat64, len(competencies))
		var employee, grade sql.NullString
		var total sql.NullFloat64
		for i, col := range cols {
			switch col {
			case "to_username":
				holders[i] = &employee
			case "grade":
				holders[i] = &grade
			case "total":
				holders[i] = &total
			case "id", "created_at":
				holders[i] = new(sql.NullString)
			default:
				v := new(sql.NullFloat64)
				holders[i] = v
				byName[col] = v
			}
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, nil, fmt.Errorf("scanning score row: %w", err)
		}

		pairs := make([]feedback.ScorePair, 0, len(competencies))
		for _, comp := range competencies {
			if v := byName[comp]; v != nil && v.Valid {
				pairs = append(pairs, feedback.ScorePair{Label: comp, Score: v.Float64})
			}
		}

		if employee.String == TeamAverageRow {
			teamAvg = pairs
			continue
		}
		scores = append(scores, feedback.ScoreRow{
			EmployeeID: employee.String,
			Grade:      grade.String,
			Total:      total.Float64,
			Scores:     pairs,
		})
	}
	return scores, teamAvg, rows.Err()
}

// Responses returns one text row per submitted review, keyed by the
// question columns present in the table.
func (s *Store) Responses(ctx context.Context) ([]feedback.TextRow, error) {
	questions, err := s.dataColumns(ctx, "responses", responseMetaColumns)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM responses ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var texts []feedback.TextRow
	for rows.Next() {
		holders := make([]any, len(cols))
		byName := make(map[string]*sql.NullString, len(questions))
		var employee sql.NullString
		for i, col := range cols {
			switch col {
			case "to_username":
				holders[i] = &employee
			case "id", "created_at":
				holders[i] = new(sql.NullString)
			default:
				v := new(sql.NullString)
				holders[i] = v
				byName[col] = v
			}
		}
		if err := rows.Scan(holders...); err != nil {
			return nil, fmt.Errorf("scanning response row: %w", err)
		}

		answers := make(map[string][]string)
		for _, q := range questions {
			if v := byName[q]; v != nil && v.Valid && v.String != "" {
				answers[q] = append(answers[q], v.String)
			}
		}
		texts = append(texts, feedback.TextRow{
			EmployeeID: employee.String,
			Answers:    answers,
		})
	}
	return texts, rows.Err()
}

// Questions returns the question-to-competency mapping.
func (s *Store) Questions(ctx context.Context) (map[string]recommend.QuestionTag, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, label, text FROM questions")
	if err != nil {
		return nil, fmt.Errorf("listing questions: %w", err)
	}
	defer rows.Close()

	tags := make(map[string]recommend.QuestionTag)
	for rows.Next() {
		var key string
		var tag recommend.QuestionTag
		if err := rows.Scan(&key, &tag.Label, &tag.Text); err != nil {
			return nil, fmt.Errorf("scanning question: %w", err)
		}
		tags[key] = tag
	}
	return tags, rows.Err()
}

// dataColumns lists table columns that are not in the meta set, in table
// order.
func (s *Store) dataColumns(ctx context.Context, table string, meta map[string]bool) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("inspecting %s columns: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scanning column info: %w", err)
		}
		if !meta[name] {
			cols = append(cols, name)
		}
	}
	return cols, rows.Err()
}
