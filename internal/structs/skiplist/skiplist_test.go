package skiplist

import "testing"

func TestInsertScoreOrdering(t *testing.T) {
	z := New()
	z.Insert("c", 3)
	z.Insert("a", 1)
	z.Insert("b", 2)

	got := z.Range(0, -1)
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("unexpected length: %v", got)
	}
	for i, e := range got {
		if e.Member != want[i] {
			t.Fatalf("index %d: got %s want %s", i, e.Member, want[i])
		}
	}
}

func TestUpdateScoreReordersMember(t *testing.T) {
	z := New()
	z.Insert("a", 1)
	z.Insert("b", 2)
	z.Insert("a", 5)

	score, ok := z.Score("a")
	if !ok || score != 5 {
		t.Fatalf("expected updated score 5, got %v ok=%v", score, ok)
	}
	got := z.Range(0, -1)
	if got[0].Member != "b" || got[1].Member != "a" {
		t.Fatalf("expected b before a after rescoring, got %v", got)
	}
}

func TestRemove(t *testing.T) {
	z := New()
	z.Insert("a", 1)
	z.Insert("b", 2)
	if !z.Remove("a") {
		t.Fatal("expected remove to report found")
	}
	if z.Len() != 1 {
		t.Fatalf("expected len 1, got %d", z.Len())
	}
	if _, ok := z.Score("a"); ok {
		t.Fatal("a should be gone")
	}
}
