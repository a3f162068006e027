package lock_test

import (
	"testing"
	"time"

	"dinocore/pkg/lock"
	"dinocore/pkg/txn"
)

// TestSharedWaitGrant mirrors the {0,0} rid walkthrough: two shared holders
// coexist, a third exclusive request blocks until both release, and the
// waiter is granted still in the GROWING state.
func TestSharedWaitGrant(t *testing.T) {
	txns := txn.NewManager(false)
	locks := lock.NewManager(txns)
	rid := txn.RID{PageID: 0, Slot: 0}

	t1 := txns.Begin()
	t2 := txns.Begin()
	t3 := txns.Begin()

	if !locks.LockShared(t1, rid) {
		t.Fatalf("t1 LockShared failed")
	}
	if !locks.LockShared(t2, rid) {
		t.Fatalf("t2 LockShared failed")
	}

	granted := make(chan bool, 1)
	go func() {
		granted <- locks.LockExclusive(t3, rid)
	}()

	select {
	case <-granted:
		t.Fatalf("t3 LockExclusive granted before sharers released")
	case <-time.After(50 * time.Millisecond):
	}

	locks.Unlock(t1, rid)
	select {
	case <-granted:
		t.Fatalf("t3 LockExclusive granted while t2 still holds shared")
	case <-time.After(50 * time.Millisecond):
	}

	locks.Unlock(t2, rid)
	select {
	case ok := <-granted:
		if !ok {
			t.Fatalf("t3 LockExclusive returned false")
		}
	case <-time.After(time.Second):
		t.Fatalf("t3 LockExclusive never granted")
	}
	if got := t3.State(); got != txn.Growing {
		t.Fatalf("t3 state after grant = %v, want GROWING", got)
	}
}

// TestStrictUnlockBeforeCommitAborts mirrors the strict-2PL scenario: an
// Unlock issued before commit/abort is rejected and moves the transaction
// to ABORTED.
func TestStrictUnlockBeforeCommitAborts(t *testing.T) {
	txns := txn.NewManager(true)
	locks := lock.NewManager(txns)
	rid := txn.RID{PageID: 1, Slot: 0}

	tx := txns.Begin()
	if !locks.LockShared(tx, rid) {
		t.Fatalf("LockShared failed")
	}
	if locks.Unlock(tx, rid) {
		t.Fatalf("Unlock under strict 2PL before commit succeeded, want failure")
	}
	if got := tx.State(); got != txn.Aborted {
		t.Fatalf("state after rejected unlock = %v, want ABORTED", got)
	}
}

func TestNonStrictUnlockTransitionsToShrinking(t *testing.T) {
	txns := txn.NewManager(false)
	locks := lock.NewManager(txns)
	rid := txn.RID{PageID: 2, Slot: 0}

	tx := txns.Begin()
	locks.LockShared(tx, rid)
	if !locks.Unlock(tx, rid) {
		t.Fatalf("Unlock failed")
	}
	if got := tx.State(); got != txn.Shrinking {
		t.Fatalf("state after unlock = %v, want SHRINKING", got)
	}
}

func TestLockAfterShrinkingAborts(t *testing.T) {
	txns := txn.NewManager(false)
	locks := lock.NewManager(txns)
	rid1 := txn.RID{PageID: 3, Slot: 0}
	rid2 := txn.RID{PageID: 3, Slot: 1}

	tx := txns.Begin()
	locks.LockShared(tx, rid1)
	locks.Unlock(tx, rid1)
	if locks.LockShared(tx, rid2) {
		t.Fatalf("LockShared after entering SHRINKING succeeded, want failure")
	}
	if got := tx.State(); got != txn.Aborted {
		t.Fatalf("state = %v, want ABORTED", got)
	}
}
