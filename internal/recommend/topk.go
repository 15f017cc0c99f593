package recommend

import "github.com/beaverzip/appraise/internal/corpus"

// Candidate pairs a corpus entry with its similarity to the query.
type Candidate struct {
	Entry      corpus.Entry
	Similarity float64
}

// topK keeps the K highest-similarity candidates seen so far, sorted
// descending. Memory stays at O(K) no matter how large the corpus is.
// Equal similarities keep insertion order.
type topK struct {
	k     int
	items []Candidate
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make([]Candidate, 0, k)}
}

// Consider offers a candidate. While fewer than K are held it is
// inserted; once full it replaces the current K-th best only if strictly
// more similar.
func (t *topK) Consider(c Candidate) {
	if len(t.items) < t.k {
		t.items = append(t.items, c)
		t.siftUp()
		return
	}
	if c.Similarity > t.items[len(t.items)-1].Similarity {
		t.items[len(t.items)-1] = c
		t.siftUp()
	}
}

// siftUp restores descending order after an insert or tail replacement.
// The strict comparison keeps equal-similarity candidates in the order
// they were first seen.
func (t *topK) siftUp() {
	for i := len(t.items) - 1; i > 0; i-- {
		if t.items[i].Similarity > t.items[i-1].Similarity {
			t.items[i], t.items[i-1] = t.items[i-1], t.items[i]
		}
	}
}

// Results returns the held candidates, best first.
func (t *topK) Results() []Candidate {
	return t.items
}
