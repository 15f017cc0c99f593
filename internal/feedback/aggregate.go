package feedback

import "sort"

// Aggregate joins users, score rows, the shared team-average row, and
// free-text rows into one EmployeeRecord per employee.
//
// Only users with role "employee" are considered. A user without a score
// row produces no record: that is a data-completeness skip, not an error.
// The team-average pairs are attached identically to every record so the
// renderer can compare against them without further lookups.
func Aggregate(users []User, scores []ScoreRow, teamAverage []ScorePair, texts []TextRow) []EmployeeRecord {
	scoreByID := make(map[string]ScoreRow, len(scores))
	for _, s := range scores {
		scoreByID[s.EmployeeID] = s
	}

	textByID := make(map[string][]TextRow)
	for _, t := range texts {
		textByID[t.EmployeeID] = append(textByID[t.EmployeeID], t)
	}

	records := make([]EmployeeRecord, 0, len(users))
	for _, u := range users {
		if u.Role != RoleEmployee {
			continue
		}
		row, ok := scoreByID[u.ID]
		if !ok {
			continue // no scored feedback yet
		}

		position := u.Rank
		if u.Unit != "" {
			position = u.Unit + " " + u.Rank
		}

		rec := EmployeeRecord{
			EmployeeID:  u.ID,
			Name:        u.Name,
			Position:    position,
			Email:       u.Email,
			Grade:       row.Grade,
			Total:       row.Total,
			Scores:      append([]ScorePair(nil), row.Scores...),
			TeamAverage: append([]ScorePair(nil), teamAverage...),
			Answers:     mergeAnswers(textByID[u.ID]),
		}
		if label, ok := SelectWeakness(rec); ok {
			rec.Weakness = label
		}
		records = append(records, rec)
	}

	return records
}

// mergeAnswers merges free-text rows by question key. Multiple rows
// answering the same question are preserved as a list, never overwritten.
// Question order is deterministic: sorted by key.
func mergeAnswers(rows []TextRow) []Answer {
	if len(rows) == 0 {
		return nil
	}

	merged := make(map[string][]string)
	for _, row := range rows {
		for key, values := range row.Answers {
			merged[key] = append(merged[key], values...)
		}
	}

	keys := make([]string, 0, len(merged))
	for key := range merged {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	answers := make([]Answer, 0, len(keys))
	for _, key := range keys {
		answers = append(answers, Answer{QuestionID: key, Texts: merged[key]})
	}
	return answers
}
