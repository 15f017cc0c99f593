package feedback

// SelectWeakness returns the employee's weakest-competency label.
//
// The minimum score wins outright when unique. When several competencies
// tie at the minimum, the one where the employee lags the team average the
// most (largest teamAverage - score) is chosen; a residual tie keeps the
// first-seen label. Returns ok=false when the record has no scores.
//
// The tie-break rule is a deliberate product decision carried over from the
// scoring system that feeds this pipeline; changing it changes which
// employees receive which recommendations.
func SelectWeakness(rec EmployeeRecord) (string, bool) {
	if len(rec.Scores) == 0 {
		return "", false
	}

	avgByLabel := make(map[string]float64, len(rec.TeamAverage))
	for _, pair := range rec.TeamAverage {
		avgByLabel[pair.Label] = pair.Score
	}

	min := rec.Scores[0].Score
	for _, pair := range rec.Scores[1:] {
		if pair.Score < min {
			min = pair.Score
		}
	}

	selected := ""
	bestGap := 0.0
	for _, pair := range rec.Scores {
		if pair.Score != min {
			continue
		}
		gap := avgByLabel[pair.Label] - pair.Score
		if selected == "" || gap > bestGap {
			selected = pair.Label
			bestGap = gap
		}
	}

	return selected, true
}
