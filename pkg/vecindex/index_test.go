package vecindex

import (
	"os"
	"path/filepath"
	"testing"
)

func mustNew(t *testing.T, dims int) *Index {
	t.Helper()
	ix, err := New(dims)
	if err != nil {
		t.Fatalf("new index: %v", err)
	}
	return ix
}

func TestIndex_AddAndSearchOrdering(t *testing.T) {
	ix := mustNew(t, 3)

	if err := ix.Add(1, []float32{1, 0, 0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ix.Add(2, []float32{0, 1, 0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ix.Add(3, []float32{0.9, 0.1, 0}); err != nil {
		t.Fatalf("add: %v", err)
	}

	results, err := ix.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Key != 1 || results[1].Key != 3 {
		t.Fatalf("result keys = [%d %d], want [1 3]", results[0].Key, results[1].Key)
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("results not ordered best-first: %v", results)
	}
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ix := mustNew(t, 4)
	if err := ix.Add(1, []float32{1, 2}); err == nil {
		t.Fatalf("expected error adding wrong-dim vector")
	}
	if _, err := ix.Search([]float32{1, 2}, 1); err == nil {
		t.Fatalf("expected error searching with wrong-dim vector")
	}
}

func TestIndex_GrowthIsFixedIncrement(t *testing.T) {
	ix := mustNew(t, 2)

	if ix.Capacity() != 0 {
		t.Fatalf("fresh capacity = %d, want 0", ix.Capacity())
	}

	if err := ix.Add(1, []float32{1, 0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if ix.Capacity() != growthIncrement {
		t.Fatalf("capacity after first add = %d, want %d", ix.Capacity(), growthIncrement)
	}

	prev := ix.Capacity()
	for i := 2; i <= growthIncrement+10; i++ {
		if err := ix.Add(uint64(i), []float32{0, 1}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
		if ix.Size() > ix.Capacity() {
			t.Fatalf("size %d exceeds capacity %d", ix.Size(), ix.Capacity())
		}
		if ix.Capacity() < prev {
			t.Fatalf("capacity shrank from %d to %d", prev, ix.Capacity())
		}
		prev = ix.Capacity()
	}
	if ix.Capacity() != 2*growthIncrement {
		t.Fatalf("capacity = %d, want %d after crossing the first increment", ix.Capacity(), 2*growthIncrement)
	}
}

func TestIndex_ReserveGrowsCapacity(t *testing.T) {
	ix := mustNew(t, 2)
	ix.Reserve(100)
	if ix.Capacity() != 100 {
		t.Fatalf("capacity = %d, want 100", ix.Capacity())
	}
	ix.Reserve(50)
	if ix.Capacity() != 150 {
		t.Fatalf("capacity = %d, want 150", ix.Capacity())
	}
}

func TestIndex_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "turns.index")

	ix := mustNew(t, 3)
	vectors := map[uint64][]float32{
		10: {1, 0, 0},
		20: {0, 1, 0},
		30: {0, 0, 1},
	}
	for key, vec := range vectors {
		if err := ix.Add(key, vec); err != nil {
			t.Fatalf("add %d: %v", key, err)
		}
	}
	if err := ix.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := mustNew(t, 3)
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Size() != 3 {
		t.Fatalf("loaded size = %d, want 3", loaded.Size())
	}
	if loaded.Capacity() < loaded.Size() {
		t.Fatalf("loaded capacity %d below size %d", loaded.Capacity(), loaded.Size())
	}

	results, err := loaded.Search([]float32{0, 1, 0}, 1)
	if err != nil {
		t.Fatalf("search after load: %v", err)
	}
	if len(results) != 1 || results[0].Key != 20 {
		t.Fatalf("search after load = %v, want key 20", results)
	}
}

func TestIndex_SaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "turns.index")

	ix := mustNew(t, 2)
	if err := ix.Add(1, []float32{1, 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ix.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp snapshot left behind: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
}

func TestIndex_LoadRejectsWrongDims(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "turns.index")

	ix := mustNew(t, 3)
	if err := ix.Add(1, []float32{1, 0, 0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ix.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	other := mustNew(t, 5)
	if err := other.Load(path); err == nil {
		t.Fatalf("expected dims mismatch error on load")
	}
}

func TestIndex_LoadRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garbage.index")
	if err := os.WriteFile(path, []byte("not an index"), 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	ix := mustNew(t, 3)
	if err := ix.Load(path); err == nil {
		t.Fatalf("expected error loading garbage file")
	}
}

func TestIndex_SearchEmptyAndZeroK(t *testing.T) {
	ix := mustNew(t, 2)
	results, err := ix.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("search empty: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %d, want 0", len(results))
	}

	if err := ix.Add(1, []float32{1, 0}); err != nil {
		t.Fatalf("add: %v", err)
	}
	results, err = ix.Search([]float32{1, 0}, 0)
	if err != nil {
		t.Fatalf("search k=0: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("k=0 results = %d, want 0", len(results))
	}
}
