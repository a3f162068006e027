// Package lock implements tuple-level shared/exclusive/upgrade locking with
// a per-rid FIFO wait queue, supporting strict or non-strict two-phase
// locking. It deliberately performs no deadlock detection: a stuck waiter
// is only ever broken by an external policy aborting its transaction.
package lock

import (
	"container/list"
	"sync"

	"dinocore/pkg/txn"
)

// request is one entry in a rid's FIFO wait list.
type request struct {
	txnID   int64
	mode    txn.LockMode
	granted bool
	cond    *sync.Cond
}

// queue is the per-rid lock state: a FIFO list of requests plus whether an
// upgrade is already pending (only one upgrader is allowed at a time).
type queue struct {
	mtx          sync.Mutex
	requests     *list.List // of *request
	hasUpgrading bool
}

// Manager grants and releases row-level locks.
type Manager struct {
	txns *txn.Manager

	mtx   sync.Mutex
	table map[txn.RID]*queue
}

// NewManager returns a Manager whose Lock/Unlock calls consult and mutate
// transactions vended by txns.
func NewManager(txns *txn.Manager) *Manager {
	return &Manager{
		txns:  txns,
		table: make(map[txn.RID]*queue),
	}
}

func (m *Manager) queueFor(rid txn.RID) *queue {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	q, ok := m.table[rid]
	if !ok {
		q = &queue{requests: list.New()}
		m.table[rid] = q
	}
	return q
}

// abort marks t ABORTED and returns false, the shared failure path for
// every rejected lock request.
func abort(t *txn.Transaction) bool {
	t.SetState(txn.Aborted)
	return false
}

// compatible reports whether a new request for mode may be granted
// immediately given the current tail of the queue. The queue mutex must be
// held by the caller.
func compatible(q *queue, mode txn.LockMode) bool {
	if q.requests.Len() == 0 {
		return true
	}
	tail := q.requests.Back().Value.(*request)
	return tail.granted && tail.mode == txn.Shared && mode == txn.Shared
}

// LockShared acquires a shared lock on rid for t, blocking if necessary.
func (m *Manager) LockShared(t *txn.Transaction, rid txn.RID) bool {
	return m.acquire(t, rid, txn.Shared)
}

// LockExclusive acquires an exclusive lock on rid for t, blocking if
// necessary.
func (m *Manager) LockExclusive(t *txn.Transaction, rid txn.RID) bool {
	return m.acquire(t, rid, txn.Exclusive)
}

func (m *Manager) acquire(t *txn.Transaction, rid txn.RID, mode txn.LockMode) bool {
	if t.State() != txn.Growing {
		return abort(t)
	}
	q := m.queueFor(rid)
	q.mtx.Lock()
	req := &request{txnID: t.ID, mode: mode, cond: sync.NewCond(&q.mtx)}
	granted := compatible(q, mode)
	req.granted = granted
	q.requests.PushBack(req)
	for !req.granted {
		req.cond.Wait()
	}
	q.mtx.Unlock()

	t.GrantLock(rid, mode)
	return true
}

// LockUpgrade upgrades t's shared lock on rid to exclusive, blocking until
// no other reader holds the lock.
func (m *Manager) LockUpgrade(t *txn.Transaction, rid txn.RID) bool {
	if t.State() != txn.Growing {
		return abort(t)
	}
	if mode, ok := t.HoldsLock(rid); !ok || mode != txn.Shared {
		return abort(t)
	}

	q := m.queueFor(rid)
	q.mtx.Lock()
	if q.hasUpgrading {
		q.mtx.Unlock()
		return abort(t)
	}
	// Remove this transaction's existing shared request.
	for e := q.requests.Front(); e != nil; e = e.Next() {
		if r := e.Value.(*request); r.txnID == t.ID {
			q.requests.Remove(e)
			break
		}
	}
	q.hasUpgrading = true
	req := &request{txnID: t.ID, mode: txn.Upgrading, cond: sync.NewCond(&q.mtx)}
	req.granted = compatible(q, txn.Exclusive)
	q.requests.PushBack(req)
	for !req.granted {
		req.cond.Wait()
	}
	q.hasUpgrading = false
	req.mode = txn.Exclusive
	q.mtx.Unlock()

	t.GrantLock(rid, txn.Exclusive)
	return true
}

// Unlock releases t's lock on rid, granting the next eligible waiter(s).
func (m *Manager) Unlock(t *txn.Transaction, rid txn.RID) bool {
	if t.Strict() {
		if t.State() != txn.Committed && t.State() != txn.Aborted {
			return abort(t)
		}
	} else if t.State() == txn.Growing {
		t.SetState(txn.Shrinking)
	}

	q := m.queueFor(rid)
	q.mtx.Lock()
	for e := q.requests.Front(); e != nil; e = e.Next() {
		if r := e.Value.(*request); r.txnID == t.ID {
			q.requests.Remove(e)
			break
		}
	}
	m.grantHead(q)
	q.mtx.Unlock()

	t.ReleaseLock(rid)
	return true
}

// grantHead grants the first waiter in the queue and, if it is shared,
// every contiguous shared waiter behind it. The queue mutex must be held.
func (m *Manager) grantHead(q *queue) {
	front := q.requests.Front()
	for front != nil {
		r := front.Value.(*request)
		if r.granted {
			return
		}
		r.granted = true
		r.cond.Broadcast()
		if r.mode != txn.Shared {
			return
		}
		front = front.Next()
	}
}
