package feedback

import (
	"reflect"
	"testing"
)

func TestAggregate(t *testing.T) {
	users := []User{
		{ID: "alice", Name: "Alice", Unit: "Platform", Rank: "Senior", Role: RoleEmployee, Email: "alice@example.com"},
		{ID: "bob", Name: "Bob", Rank: "Junior", Role: RoleEmployee, Email: "bob@example.com"},
		{ID: "carol", Name: "Carol", Rank: "Lead", Role: RoleEmployee}, // no score row
		{ID: "root", Name: "Root", Role: "admin"},
	}
	scores := []ScoreRow{
		{
			EmployeeID: "alice",
			Grade:      "A",
			Total:      16.4,
			Scores:     []ScorePair{{"achievement", 4.2}, {"attitude", 2.1}, {"ability", 5.0}, {"cooperation", 5.1}},
		},
		{
			EmployeeID: "bob",
			Grade:      "B",
			Total:      9.0,
			Scores:     []ScorePair{{"achievement", 3.0}, {"attitude", 3.0}, {"ability", 3.0}, {"cooperation", 0.0}},
		},
	}
	teamAvg := []ScorePair{{"achievement", 3.5}, {"attitude", 3.5}, {"ability", 3.5}, {"cooperation", 3.5}}
	texts := []TextRow{
		{EmployeeID: "alice", Answers: map[string][]string{"q_1": {"works hard"}}},
		{EmployeeID: "alice", Answers: map[string][]string{"q_1": {"very diligent"}, "q_2": {"could listen more"}}},
	}

	records := Aggregate(users, scores, teamAvg, texts)

	if len(records) != 2 {
		t.Fatalf("expected 2 records (carol has no scores, root is admin), got %d", len(records))
	}

	alice := records[0]
	if alice.EmployeeID != "alice" {
		t.Fatalf("expected alice first, got %s", alice.EmployeeID)
	}
	if alice.Position != "Platform Senior" {
		t.Errorf("position = %q, want %q", alice.Position, "Platform Senior")
	}
	if alice.Weakness != "attitude" {
		t.Errorf("weakness = %q, want attitude", alice.Weakness)
	}

	wantAnswers := []Answer{
		{QuestionID: "q_1", Texts: []string{"works hard", "very diligent"}},
		{QuestionID: "q_2", Texts: []string{"could listen more"}},
	}
	if !reflect.DeepEqual(alice.Answers, wantAnswers) {
		t.Errorf("answers = %+v, want %+v", alice.Answers, wantAnswers)
	}

	bob := records[1]
	if bob.Weakness != "cooperation" {
		t.Errorf("bob weakness = %q, want cooperation", bob.Weakness)
	}
	if len(bob.Answers) != 0 {
		t.Errorf("bob has no free text, got %+v", bob.Answers)
	}

	// Team average is copied onto every record in the same order.
	for _, rec := range records {
		if !reflect.DeepEqual(rec.TeamAverage, teamAvg) {
			t.Errorf("%s team average = %+v, want %+v", rec.EmployeeID, rec.TeamAverage, teamAvg)
		}
		if len(rec.Scores) != len(rec.TeamAverage) {
			t.Errorf("%s label sets differ in size", rec.EmployeeID)
		}
		for i := range rec.Scores {
			if rec.Scores[i].Label != rec.TeamAverage[i].Label {
				t.Errorf("%s label order mismatch at %d: %s vs %s",
					rec.EmployeeID, i, rec.Scores[i].Label, rec.TeamAverage[i].Label)
			}
		}
	}
}

func TestAggregateAnswersSortedByQuestionKey(t *testing.T) {
	users := []User{{ID: "a", Role: RoleEmployee}}
	scores := []ScoreRow{{EmployeeID: "a", Scores: []ScorePair{{"x", 1}}}}
	texts := []TextRow{
		{EmployeeID: "a", Answers: map[string][]string{"q_9": {"late answer"}}},
		{EmployeeID: "a", Answers: map[string][]string{"q_2": {"early answer"}}},
	}

	records := Aggregate(users, scores, nil, texts)

	// Key order wins over arrival order.
	want := []Answer{
		{QuestionID: "q_2", Texts: []string{"early answer"}},
		{QuestionID: "q_9", Texts: []string{"late answer"}},
	}
	if !reflect.DeepEqual(records[0].Answers, want) {
		t.Errorf("answers = %+v, want %+v", records[0].Answers, want)
	}
}

func TestAggregateDoesNotAliasInputs(t *testing.T) {
	users := []User{{ID: "a", Role: RoleEmployee}}
	scores := []ScoreRow{{EmployeeID: "a", Scores: []ScorePair{{"x", 1}}}}
	teamAvg := []ScorePair{{"x", 2}}

	records := Aggregate(users, scores, teamAvg, nil)
	records[0].TeamAverage[0].Score = 99
	records[0].Scores[0].Score = 99

	if teamAvg[0].Score != 2 {
		t.Error("record mutation leaked into shared team-average slice")
	}
	if scores[0].Scores[0].Score != 1 {
		t.Error("record mutation leaked into source score row")
	}
}

func TestAggregateEmptyInputs(t *testing.T) {
	if got := Aggregate(nil, nil, nil, nil); len(got) != 0 {
		t.Errorf("expected no records, got %d", len(got))
	}
}
