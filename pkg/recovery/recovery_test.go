package recovery_test

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"dinocore/pkg/buffer"
	"dinocore/pkg/disk"
	"dinocore/pkg/recovery"
	"dinocore/pkg/table"
	"dinocore/pkg/txn"
	"dinocore/pkg/wal"
)

type engine struct {
	disk *disk.Manager
	pool *buffer.Pool
	log  *wal.Manager
}

func openEngine(t *testing.T, dbPath, logPath string) *engine {
	t.Helper()
	d, err := disk.Open(dbPath, logPath)
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	pool := buffer.NewPool(8, d)
	log := wal.NewManager(d, 4096, time.Hour)
	pool.SetLogFlusher(log)
	log.Run()
	return &engine{disk: d, pool: pool, log: log}
}

// appendAndApply logs record against tx, advances tx's prev-lsn chain, and
// stamps page's last-LSN with the assigned LSN, mirroring how a table heap
// (out of scope here) drives the log manager and page together. The tuple
// mutation itself is applied to page by the caller before logging it.
func (e *engine) appendAndApply(tx *txn.Transaction, rec wal.Record, page table.Page) int64 {
	rec.PrevLSN = tx.LastLSN()
	rec.TxnID = tx.ID
	lsn := e.log.Append(rec)
	tx.SetLastLSN(lsn)
	page.SetLastLSN(int32(lsn))
	return lsn
}

func TestRecoveryRedoRestoresCommittedInsert(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "t.db")
	logPath := filepath.Join(dir, "t.log")

	e := openEngine(t, dbPath, logPath)

	frame, err := e.pool.New()
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	pageID := frame.PageID
	frame.RWMutex.Lock()
	page := table.Page{Data: frame.Data}
	page.Init(pageID, table.InvalidPageID)
	frame.RWMutex.Unlock()

	tx := txn.New(1, false)
	e.appendAndApply(tx, wal.Record{PrevLSN: int64(wal.InvalidLSN), Type: wal.Begin}, page)
	e.appendAndApply(tx, wal.Record{Type: wal.NewPage, PrevPageID: table.InvalidPageID, PageID: pageID}, page)

	frame.RWMutex.Lock()
	slot, err := page.InsertTuple([]byte("hello"))
	frame.RWMutex.Unlock()
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	insertLSN := e.appendAndApply(tx, wal.Record{
		Type: wal.Insert, RID: txn.RID{PageID: pageID, Slot: slot}, Tuple: []byte("hello"),
	}, page)

	commitLSN := e.appendAndApply(tx, wal.Record{Type: wal.Commit}, page)
	e.log.FlushLSN(commitLSN)
	_ = insertLSN
	e.pool.Unpin(pageID, true)
	// The dirty page never made it to disk before the "crash": recovery
	// must rebuild it purely from the log.

	e2 := openEngine(t, dbPath, logPath)
	rm := recovery.NewManager(e2.disk, e2.pool)
	if err := rm.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	if err := rm.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	frame2, err := e2.pool.Fetch(pageID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	frame2.RWMutex.RLock()
	got, err := table.Page{Data: frame2.Data}.GetTuple(slot)
	frame2.RWMutex.RUnlock()
	e2.pool.Unpin(pageID, false)
	if err != nil {
		t.Fatalf("GetTuple: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("GetTuple = %q, want %q", got, "hello")
	}
}

// TestRecoveryUndoRollsBackUncommittedInsert inserts a committed tuple into
// a page, then a second, never-committed tuple into the SAME page, and
// checks that recovery restores the first and erases the second.
func TestRecoveryUndoRollsBackUncommittedInsert(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "t.db")
	logPath := filepath.Join(dir, "t.log")

	e := openEngine(t, dbPath, logPath)

	frame, err := e.pool.New()
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	pageID := frame.PageID
	frame.RWMutex.Lock()
	page := table.Page{Data: frame.Data}
	page.Init(pageID, table.InvalidPageID)
	frame.RWMutex.Unlock()

	committedTx := txn.New(1, false)
	e.appendAndApply(committedTx, wal.Record{PrevLSN: int64(wal.InvalidLSN), Type: wal.Begin}, page)
	e.appendAndApply(committedTx, wal.Record{Type: wal.NewPage, PrevPageID: table.InvalidPageID, PageID: pageID}, page)

	frame.RWMutex.Lock()
	keptSlot, err := page.InsertTuple([]byte("kept"))
	frame.RWMutex.Unlock()
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	e.appendAndApply(committedTx, wal.Record{
		Type: wal.Insert, RID: txn.RID{PageID: pageID, Slot: keptSlot}, Tuple: []byte("kept"),
	}, page)
	commitLSN := e.appendAndApply(committedTx, wal.Record{Type: wal.Commit}, page)
	e.log.FlushLSN(commitLSN)

	ghostTx := txn.New(2, false)
	e.appendAndApply(ghostTx, wal.Record{PrevLSN: int64(wal.InvalidLSN), Type: wal.Begin}, page)
	frame.RWMutex.Lock()
	ghostSlot, err := page.InsertTuple([]byte("ghost"))
	frame.RWMutex.Unlock()
	if err != nil {
		t.Fatalf("InsertTuple: %v", err)
	}
	ghostLSN := e.appendAndApply(ghostTx, wal.Record{
		Type: wal.Insert, RID: txn.RID{PageID: pageID, Slot: ghostSlot}, Tuple: []byte("ghost"),
	}, page)
	e.log.FlushLSN(ghostLSN)
	e.pool.Unpin(pageID, true)
	e.pool.Flush(pageID)
	// Crash here: ghostTx never committed.

	e2 := openEngine(t, dbPath, logPath)
	rm := recovery.NewManager(e2.disk, e2.pool)
	if err := rm.Redo(); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	active := rm.ActiveTxns()
	if len(active) != 1 || active[0] != 2 {
		t.Fatalf("ActiveTxns after Redo = %v, want [2]", active)
	}
	if err := rm.Undo(); err != nil {
		t.Fatalf("Undo: %v", err)
	}

	frame2, err := e2.pool.Fetch(pageID)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	frame2.RWMutex.RLock()
	kept, keptErr := table.Page{Data: frame2.Data}.GetTuple(keptSlot)
	_, ghostErr := table.Page{Data: frame2.Data}.GetTuple(ghostSlot)
	frame2.RWMutex.RUnlock()
	e2.pool.Unpin(pageID, false)

	if keptErr != nil || !bytes.Equal(kept, []byte("kept")) {
		t.Fatalf("committed tuple = %q, %v; want %q, nil", kept, keptErr, "kept")
	}
	if ghostErr != table.ErrTupleDeleted {
		t.Fatalf("uncommitted tuple GetTuple = %v, want ErrTupleDeleted", ghostErr)
	}
}
