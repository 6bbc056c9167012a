package recall

import "testing"

type testResult struct {
	path  string
	line  int64
	score float64
}

func (r testResult) location() (string, int64) { return r.path, r.line }
func (r testResult) rankScore() float64        { return r.score }

func TestDeduplicateByLocation_Empty(t *testing.T) {
	if got := deduplicateByLocation([]testResult{}); len(got) != 0 {
		t.Fatalf("expected empty, got %+v", got)
	}
}

func TestDeduplicateByLocation_NoDuplicates(t *testing.T) {
	in := []testResult{
		{path: "a.go", line: 1, score: 0.9},
		{path: "b.go", line: 2, score: 0.8},
	}
	got := deduplicateByLocation(in)
	if len(got) != 2 {
		t.Fatalf("expected 2, got %d", len(got))
	}
	if got[0].score != 0.9 {
		t.Fatalf("expected highest score first, got %v", got[0].score)
	}
}

func TestDeduplicateByLocation_KeepsHigherScore(t *testing.T) {
	in := []testResult{
		{path: "a.go", line: 1, score: 0.5},
		{path: "a.go", line: 1, score: 0.9},
	}
	got := deduplicateByLocation(in)
	if len(got) != 1 {
		t.Fatalf("expected 1, got %d", len(got))
	}
	if got[0].score != 0.9 {
		t.Fatalf("expected surviving entry to keep the higher score, got %v", got[0].score)
	}
}

func TestDeduplicateByLocation_SortedDescending(t *testing.T) {
	in := []testResult{
		{path: "a.go", line: 1, score: 0.3},
		{path: "b.go", line: 1, score: 0.9},
		{path: "c.go", line: 1, score: 0.6},
	}
	got := deduplicateByLocation(in)
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if !(got[0].score >= got[1].score && got[1].score >= got[2].score) {
		t.Fatalf("expected descending order, got %+v", got)
	}
}
