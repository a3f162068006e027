// Package recovery replays the write-ahead log against table pages after a
// crash: a REDO pass that brings every page up to the log's version of the
// world, followed by an UNDO pass that rolls back whatever was still
// in-flight when the engine died.
package recovery

import (
	"dinocore/config"
	"dinocore/pkg/buffer"
	"dinocore/pkg/disk"
	"dinocore/pkg/hash"
	"dinocore/pkg/pagetable"
	"dinocore/pkg/table"
	"dinocore/pkg/wal"
)

// chunkSize is how much of the log Redo reads per disk.ReadLog call. It has
// no correctness bearing, only I/O granularity.
const chunkSize = 64 * 1024

// undoReadSize is generously larger than any single record this engine
// produces, so Undo can always deserialize a record in one read.
const undoReadSize = 8192

// Manager runs REDO and UNDO recovery against a page file and log file
// reached through the buffer pool. It must only be used while logging is
// disabled: recovery mutates pages directly and does not itself append log
// records.
type Manager struct {
	disk *disk.Manager
	pool *buffer.Pool

	activeTxns map[int64]int64 // txn id -> latest lsn seen
	// lsnOffset maps a record's lsn to the file offset it starts at, for
	// Undo's prev-lsn walk. It's the same extendible-hash structure the
	// buffer pool uses for its page table, keyed by lsn instead of page id
	// and hashed independently so its directory splits don't mirror the
	// buffer pool's.
	lsnOffset *pagetable.Table[int64, int64]
}

// NewManager returns a recovery Manager over the given disk manager and
// buffer pool.
func NewManager(d *disk.Manager, pool *buffer.Pool) *Manager {
	return &Manager{
		disk:       d,
		pool:       pool,
		activeTxns: make(map[int64]int64),
		lsnOffset:  pagetable.New[int64, int64](config.DefaultBucketSize, hash.MurmurHasher),
	}
}

// ActiveTxns returns the ids of transactions that were still open (no
// COMMIT or ABORT seen) at the end of the REDO pass.
func (m *Manager) ActiveTxns() []int64 {
	ids := make([]int64, 0, len(m.activeTxns))
	for id := range m.activeTxns {
		ids = append(ids, id)
	}
	return ids
}

// Redo scans the log from the start, rebuilding the active-transaction and
// lsn-to-offset tables, and replays any record whose LSN is newer than the
// target page's last-LSN.
func (m *Manager) Redo() error {
	pos := int64(0)
	pending := []byte{}
	buf := make([]byte, chunkSize)

	for {
		n, ok := m.disk.ReadLog(buf, pos+int64(len(pending)))
		if !ok {
			break
		}
		pending = append(pending, buf[:n]...)

		consumed := 0
		for {
			rec, size, err := wal.Unmarshal(pending[consumed:])
			if err != nil {
				break
			}
			m.lsnOffset.Insert(rec.LSN, pos+int64(consumed))
			if err := m.applyRedo(rec); err != nil {
				return err
			}
			consumed += size
		}
		pending = append([]byte(nil), pending[consumed:]...)
		pos += int64(consumed)

		if n < len(buf) {
			break
		}
	}
	return nil
}

func (m *Manager) applyRedo(rec wal.Record) error {
	switch rec.Type {
	case wal.Begin:
		m.activeTxns[rec.TxnID] = rec.LSN
	case wal.Commit, wal.Abort:
		delete(m.activeTxns, rec.TxnID)
	case wal.NewPage:
		m.activeTxns[rec.TxnID] = rec.LSN
		return m.redoNewPage(rec)
	default:
		m.activeTxns[rec.TxnID] = rec.LSN
		return m.redoTuple(rec)
	}
	return nil
}

func (m *Manager) redoNewPage(rec wal.Record) error {
	m.disk.EnsureCapacity(rec.PageID)
	frame, err := m.pool.Fetch(rec.PageID)
	if err != nil {
		return err
	}
	frame.RWMutex.Lock()
	page := table.Page{Data: frame.Data}
	if rec.LSN > int64(page.LastLSN()) {
		page.Init(rec.PageID, rec.PrevPageID)
		page.SetLastLSN(int32(rec.LSN))
		frame.Dirty = true
	}
	frame.RWMutex.Unlock()
	m.pool.Unpin(rec.PageID, frame.Dirty)

	if rec.PrevPageID != table.InvalidPageID {
		prevFrame, err := m.pool.Fetch(rec.PrevPageID)
		if err != nil {
			return err
		}
		prevFrame.RWMutex.Lock()
		prevPage := table.Page{Data: prevFrame.Data}
		prevPage.SetNextPageID(rec.PageID)
		prevFrame.RWMutex.Unlock()
		m.pool.Unpin(rec.PrevPageID, true)
	}
	return nil
}

func (m *Manager) redoTuple(rec wal.Record) error {
	frame, err := m.pool.Fetch(rec.RID.PageID)
	if err != nil {
		return err
	}
	defer func() { m.pool.Unpin(rec.RID.PageID, frame.Dirty) }()

	frame.RWMutex.Lock()
	defer frame.RWMutex.Unlock()
	page := table.Page{Data: frame.Data}
	if rec.LSN <= int64(page.LastLSN()) {
		return nil
	}

	switch rec.Type {
	case wal.Insert:
		if _, err := page.InsertTuple(rec.Tuple); err != nil {
			return err
		}
	case wal.Update:
		if _, err := page.UpdateTuple(rec.RID.Slot, rec.NewTuple); err != nil {
			return err
		}
	case wal.MarkDelete:
		if err := page.MarkDelete(rec.RID.Slot); err != nil {
			return err
		}
	case wal.ApplyDelete:
		if _, err := page.ApplyDelete(rec.RID.Slot); err != nil {
			return err
		}
	case wal.RollbackDelete:
		if err := page.RollbackDelete(rec.RID.Slot); err != nil {
			return err
		}
	}
	page.SetLastLSN(int32(rec.LSN))
	frame.Dirty = true
	return nil
}

// Undo rolls back every transaction still active after Redo, walking each
// one's prev-lsn chain backward and inverting every record it finds.
func (m *Manager) Undo() error {
	for txnID, lsn := range m.activeTxns {
		for lsn != int64(wal.InvalidLSN) {
			offset, _ := m.lsnOffset.Find(lsn)
			rec, err := m.readRecordAt(offset)
			if err != nil {
				return err
			}
			lsn = rec.PrevLSN
			if err := m.applyUndo(rec); err != nil {
				return err
			}
		}
		delete(m.activeTxns, txnID)
	}
	return nil
}

func (m *Manager) readRecordAt(offset int64) (wal.Record, error) {
	buf := make([]byte, undoReadSize)
	n, ok := m.disk.ReadLog(buf, offset)
	if !ok {
		return wal.Record{}, wal.ErrTruncated
	}
	rec, _, err := wal.Unmarshal(buf[:n])
	return rec, err
}

func (m *Manager) applyUndo(rec wal.Record) error {
	switch rec.Type {
	case wal.Begin, wal.Commit, wal.Abort:
		return nil
	case wal.NewPage:
		return m.undoNewPage(rec)
	default:
		return m.undoTuple(rec)
	}
}

func (m *Manager) undoNewPage(rec wal.Record) error {
	m.pool.Delete(rec.PageID)
	if rec.PrevPageID != table.InvalidPageID {
		frame, err := m.pool.Fetch(rec.PrevPageID)
		if err != nil {
			return err
		}
		frame.RWMutex.Lock()
		table.Page{Data: frame.Data}.SetNextPageID(table.InvalidPageID)
		frame.RWMutex.Unlock()
		m.pool.Unpin(rec.PrevPageID, true)
	}
	return nil
}

func (m *Manager) undoTuple(rec wal.Record) error {
	frame, err := m.pool.Fetch(rec.RID.PageID)
	if err != nil {
		return err
	}
	defer m.pool.Unpin(rec.RID.PageID, true)

	frame.RWMutex.Lock()
	defer frame.RWMutex.Unlock()
	page := table.Page{Data: frame.Data}

	switch rec.Type {
	case wal.Insert:
		_, err = page.ApplyDelete(rec.RID.Slot)
	case wal.Update:
		_, err = page.UpdateTuple(rec.RID.Slot, rec.OldTuple)
	case wal.MarkDelete:
		err = page.RollbackDelete(rec.RID.Slot)
	case wal.ApplyDelete:
		_, err = page.InsertTuple(rec.Tuple)
	case wal.RollbackDelete:
		err = page.MarkDelete(rec.RID.Slot)
	}
	return err
}
