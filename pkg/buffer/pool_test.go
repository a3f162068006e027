package buffer_test

import (
	"path/filepath"
	"testing"

	"dinocore/pkg/buffer"
	"dinocore/pkg/disk"
)

func newTestPool(t *testing.T, numFrames int) *buffer.Pool {
	t.Helper()
	dir := t.TempDir()
	d, err := disk.Open(filepath.Join(dir, "test.db"), filepath.Join(dir, "test.log"))
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return buffer.NewPool(numFrames, d)
}

// TestPoolExhaustionAndEvictionRoundTrip mirrors the ten-frame pool
// walkthrough: ten pages pinned exhausts the pool, unpinning five frames
// frees them for reuse, and a page written before eviction reads back
// correctly afterward, proving the dirty flush-then-refetch path works.
func TestPoolExhaustionAndEvictionRoundTrip(t *testing.T) {
	pool := newTestPool(t, 10)

	frames := make([]*buffer.Frame, 10)
	pageIDs := make([]int32, 10)
	for i := 0; i < 10; i++ {
		f, err := pool.New()
		if err != nil {
			t.Fatalf("New() #%d: %v", i, err)
		}
		frames[i] = f
		pageIDs[i] = f.PageID
	}
	copy(frames[0].Data, "Hello")

	if _, err := pool.New(); err != buffer.ErrPoolExhausted {
		t.Fatalf("eleventh New() = %v, want ErrPoolExhausted", err)
	}

	for i := 0; i < 5; i++ {
		if err := pool.Unpin(pageIDs[i], true); err != nil {
			t.Fatalf("Unpin(%d): %v", pageIDs[i], err)
		}
	}

	for i := 0; i < 4; i++ {
		if _, err := pool.New(); err != nil {
			t.Fatalf("New() after unpin #%d: %v", i, err)
		}
	}

	fetched, err := pool.Fetch(pageIDs[0])
	if err != nil {
		t.Fatalf("Fetch(%d): %v", pageIDs[0], err)
	}
	if got := string(fetched.Data[:5]); got != "Hello" {
		t.Fatalf("Fetch(0).Data = %q, want %q", got, "Hello")
	}
	pool.Unpin(pageIDs[0], false)
}

func TestUnpinOfZeroPinCountFails(t *testing.T) {
	pool := newTestPool(t, 4)
	f, err := pool.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := pool.Unpin(f.PageID, false); err != nil {
		t.Fatalf("first Unpin: %v", err)
	}
	if err := pool.Unpin(f.PageID, false); err == nil {
		t.Fatalf("second Unpin on zero pin count succeeded, want error")
	}
}

func TestDeleteFailsWhilePinned(t *testing.T) {
	pool := newTestPool(t, 4)
	f, err := pool.New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := pool.Delete(f.PageID); err == nil {
		t.Fatalf("Delete of pinned page succeeded, want error")
	}
	pool.Unpin(f.PageID, false)
	if err := pool.Delete(f.PageID); err != nil {
		t.Fatalf("Delete after unpin: %v", err)
	}
}
