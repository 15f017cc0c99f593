package feedback

import "testing"

func TestSelectWeakness(t *testing.T) {
	tests := []struct {
		name    string
		scores  []ScorePair
		average []ScorePair
		want    string
		wantOK  bool
	}{
		{
			name: "unique minimum",
			scores: []ScorePair{
				{"achievement", 4.2},
				{"attitude", 2.1},
				{"cooperation", 3.8},
			},
			average: []ScorePair{
				{"achievement", 3.5},
				{"attitude", 3.5},
				{"cooperation", 3.5},
			},
			want:   "attitude",
			wantOK: true,
		},
		{
			name: "tie broken by largest team gap",
			scores: []ScorePair{
				{"achievement", 2.0},
				{"attitude", 2.0},
				{"cooperation", 4.0},
			},
			average: []ScorePair{
				{"achievement", 3.0}, // gap 1.0
				{"attitude", 4.5},    // gap 2.5
				{"cooperation", 3.0},
			},
			want:   "attitude",
			wantOK: true,
		},
		{
			name: "residual tie keeps first-seen label",
			scores: []ScorePair{
				{"leadership", 2.0},
				{"ability", 2.0},
			},
			average: []ScorePair{
				{"leadership", 3.0},
				{"ability", 3.0},
			},
			want:   "leadership",
			wantOK: true,
		},
		{
			name: "all scores equal picks largest gap",
			scores: []ScorePair{
				{"a", 3.0},
				{"b", 3.0},
				{"c", 3.0},
			},
			average: []ScorePair{
				{"a", 3.1},
				{"b", 4.9},
				{"c", 2.0}, // employee above team here
			},
			want:   "b",
			wantOK: true,
		},
		{
			name:    "empty score list has no weakness",
			scores:  nil,
			average: nil,
			want:    "",
			wantOK:  false,
		},
		{
			name: "single competency",
			scores: []ScorePair{
				{"attitude", 5.0},
			},
			average: []ScorePair{
				{"attitude", 3.0},
			},
			want:   "attitude",
			wantOK: true,
		},
		{
			name: "tie where employee beats team on every tied label",
			scores: []ScorePair{
				{"a", 2.0},
				{"b", 2.0},
			},
			average: []ScorePair{
				{"a", 1.0}, // gap -1.0
				{"b", 1.5}, // gap -0.5, larger
			},
			want:   "b",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := EmployeeRecord{Scores: tt.scores, TeamAverage: tt.average}
			got, ok := SelectWeakness(rec)
			if ok != tt.wantOK {
				t.Fatalf("SelectWeakness ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("SelectWeakness = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSelectWeaknessIsDeterministic(t *testing.T) {
	rec := EmployeeRecord{
		Scores: []ScorePair{
			{"a", 2.0}, {"b", 2.0}, {"c", 2.0}, {"d", 2.0},
		},
		TeamAverage: []ScorePair{
			{"a", 3.0}, {"b", 3.0}, {"c", 3.0}, {"d", 3.0},
		},
	}

	first, _ := SelectWeakness(rec)
	for i := 0; i < 100; i++ {
		got, _ := SelectWeakness(rec)
		if got != first {
			t.Fatalf("run %d returned %q, first run returned %q", i, got, first)
		}
	}
	if first != "a" {
		t.Errorf("expected first-seen label %q, got %q", "a", first)
	}
}
