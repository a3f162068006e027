package pagetable_test

import (
	"testing"

	"dinocore/pkg/pagetable"
)

// identity treats an int64 key as its own hash, matching how the reference
// storage engine's extendible-hash walkthrough numbers its buckets.
func identity(key int64) uint64 {
	return uint64(key)
}

func TestGrowthMatchesWalkthrough(t *testing.T) {
	table := pagetable.New[int64, int64](2, identity)

	// 6, 10, 14 are 0110, 1010, 1110: forcing the directory to depth 3.
	for _, key := range []int64{6, 10, 14} {
		table.Insert(key, key)
	}
	if got := table.GlobalDepth(); got != 3 {
		t.Fatalf("global depth = %d, want 3", got)
	}
	if got := table.NumBuckets(); got != 4 {
		t.Fatalf("num buckets = %d, want 4", got)
	}

	for _, key := range []int64{1, 3, 5} {
		table.Insert(key, key)
	}
	if got := table.NumBuckets(); got != 5 {
		t.Fatalf("num buckets = %d, want 5", got)
	}
	for _, idx := range []uint64{1, 3, 5} {
		if got := table.LocalDepth(idx); got != 2 {
			t.Errorf("local depth at directory index %d = %d, want 2", idx, got)
		}
	}
}

func TestFindAndRemove(t *testing.T) {
	table := pagetable.New[int64, string](4, identity)
	table.Insert(1, "one")
	table.Insert(2, "two")

	if v, ok := table.Find(1); !ok || v != "one" {
		t.Fatalf("Find(1) = %q, %v; want one, true", v, ok)
	}
	if _, ok := table.Find(99); ok {
		t.Fatalf("Find(99) unexpectedly found an entry")
	}

	if !table.Remove(1) {
		t.Fatalf("Remove(1) = false, want true")
	}
	if _, ok := table.Find(1); ok {
		t.Fatalf("Find(1) after Remove unexpectedly found an entry")
	}
	if table.Remove(1) {
		t.Fatalf("second Remove(1) = true, want false")
	}
}

func TestInsertOverwritesExisting(t *testing.T) {
	table := pagetable.New[int64, int64](2, identity)
	table.Insert(1, 100)
	table.Insert(1, 200)
	if v, ok := table.Find(1); !ok || v != 200 {
		t.Fatalf("Find(1) = %d, %v; want 200, true", v, ok)
	}
}
