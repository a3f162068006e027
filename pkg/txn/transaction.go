// Package txn implements the two-phase-locking transaction abstraction the
// lock manager and recovery pass operate on.
package txn

import (
	"sync"

	"github.com/google/uuid"
)

// State is a transaction's position in the two-phase locking protocol.
type State int

const (
	Growing State = iota
	Shrinking
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Growing:
		return "GROWING"
	case Shrinking:
		return "SHRINKING"
	case Committed:
		return "COMMITTED"
	case Aborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// LockMode is the granularity of a held or requested row lock.
type LockMode int

const (
	Shared LockMode = iota
	Exclusive
	Upgrading
)

// Transaction tracks one client's in-flight work: its WAL-facing id, its
// 2PL state, and the rid/mode pairs it currently holds. A ClientID
// distinguishes concurrent sessions the way the reference engine's
// transaction abstraction does, while ID is the compact int64 the log
// manager and lock manager key on.
type Transaction struct {
	ClientID uuid.UUID
	ID       int64

	mtx     sync.RWMutex
	state   State
	strict  bool
	locks   map[RID]LockMode
	lastLSN int64
}

// New returns a fresh transaction in the GROWING state.
func New(id int64, strict bool) *Transaction {
	return &Transaction{
		ClientID: uuid.New(),
		ID:       id,
		state:    Growing,
		strict:   strict,
		locks:    make(map[RID]LockMode),
		lastLSN:  0,
	}
}

// State returns the transaction's current 2PL state.
func (t *Transaction) State() State {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.state
}

// SetState transitions the transaction's state.
func (t *Transaction) SetState(s State) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.state = s
}

// Strict reports whether this transaction runs under strict 2PL, meaning
// its locks may only be released at commit or abort.
func (t *Transaction) Strict() bool {
	return t.strict
}

// GrantLock records that the transaction now holds mode on rid.
func (t *Transaction) GrantLock(rid RID, mode LockMode) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.locks[rid] = mode
}

// ReleaseLock forgets that the transaction holds a lock on rid.
func (t *Transaction) ReleaseLock(rid RID) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	delete(t.locks, rid)
}

// HoldsLock reports the mode the transaction holds on rid, if any.
func (t *Transaction) HoldsLock(rid RID) (LockMode, bool) {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	mode, ok := t.locks[rid]
	return mode, ok
}

// LockSet returns a snapshot of every rid the transaction currently holds.
func (t *Transaction) LockSet() []RID {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	out := make([]RID, 0, len(t.locks))
	for rid := range t.locks {
		out = append(out, rid)
	}
	return out
}

// LastLSN returns the most recent LSN this transaction appended, or 0 (the
// value of wal.InvalidLSN) if it has not written to the log yet, so that its
// first record's prev-LSN ends recovery's UNDO walk.
func (t *Transaction) LastLSN() int64 {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return t.lastLSN
}

// SetLastLSN records the most recent LSN this transaction appended. The
// caller that appends a record on the transaction's behalf passes the LSN
// wal.Manager.Append returned, so the next record's prev-LSN chains back to
// it for recovery's UNDO walk.
func (t *Transaction) SetLastLSN(lsn int64) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.lastLSN = lsn
}
