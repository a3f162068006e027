package engine

import (
	"testing"

	"dinocore/pkg/txn"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), Config{PoolSize: 8, LogBufferSize: 256})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpenCreatesFreshEngine(t *testing.T) {
	e := newTestEngine(t)
	if e.Pool() == nil || e.Log() == nil || e.Txns() == nil || e.Locks() == nil {
		t.Fatalf("Open left a subsystem nil")
	}
}

func TestOpenIndexesBootstrapsHeaderThenFansOut(t *testing.T) {
	e := newTestEngine(t)
	names := []string{"primary", "by_email", "by_created_at"}
	indexes, err := e.OpenIndexes(names)
	if err != nil {
		t.Fatalf("OpenIndexes: %v", err)
	}
	if len(indexes) != len(names) {
		t.Fatalf("got %d indexes, want %d", len(indexes), len(names))
	}
	for i, idx := range indexes {
		if idx == nil {
			t.Fatalf("index %q was not opened", names[i])
		}
	}

	// Reopening the same names must resolve to the same root pages rather
	// than allocating fresh trees, proving the header directory survived
	// the concurrent fan-out.
	reopened, err := e.OpenIndexes(names)
	if err != nil {
		t.Fatalf("reopen OpenIndexes: %v", err)
	}
	for i := range names {
		rid := txn.RID{PageID: 1, Slot: int32(i)}
		if err := indexes[i].Insert(int64(i), rid); err != nil {
			t.Fatalf("insert into first handle: %v", err)
		}
		entry, ok, err := reopened[i].Get(int64(i))
		if err != nil || !ok {
			t.Fatalf("entry inserted through first handle not visible via reopened handle: ok=%v err=%v", ok, err)
		}
		if entry.RID != rid {
			t.Fatalf("got RID %v, want %v", entry.RID, rid)
		}
	}
}

func TestOpenIndexesEmptyNames(t *testing.T) {
	e := newTestEngine(t)
	indexes, err := e.OpenIndexes(nil)
	if err != nil || indexes != nil {
		t.Fatalf("OpenIndexes(nil) = %v, %v; want nil, nil", indexes, err)
	}
}

func TestBackupCopiesDataDirectory(t *testing.T) {
	e := newTestEngine(t)
	idx, err := e.OpenIndex("primary")
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	wantRID := txn.RID{PageID: 3, Slot: 7}
	if err := idx.Insert(1, wantRID); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	dest := t.TempDir() + "/backup"
	if err := e.Backup(dest); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	restored, err := Open(dest, Config{PoolSize: 8})
	if err != nil {
		t.Fatalf("Open backup: %v", err)
	}
	defer restored.Close()

	ridx, err := restored.OpenIndex("primary")
	if err != nil {
		t.Fatalf("OpenIndex on restored copy: %v", err)
	}
	entry, ok, err := ridx.Get(1)
	if err != nil || !ok {
		t.Fatalf("Get on restored copy: ok=%v err=%v", ok, err)
	}
	if entry.RID != wantRID {
		t.Fatalf("restored RID = %v, want %v", entry.RID, wantRID)
	}
}
