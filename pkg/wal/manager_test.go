package wal_test

import (
	"path/filepath"
	"testing"
	"time"

	"dinocore/pkg/disk"
	"dinocore/pkg/wal"
)

func newTestManager(t *testing.T, bufferSize int, timeout time.Duration) (*wal.Manager, *disk.Manager) {
	t.Helper()
	dir := t.TempDir()
	d, err := disk.Open(filepath.Join(dir, "t.db"), filepath.Join(dir, "t.log"))
	if err != nil {
		t.Fatalf("disk.Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	m := wal.NewManager(d, bufferSize, timeout)
	m.Run()
	t.Cleanup(m.Stop)
	return m, d
}

func TestAppendAssignsMonotonicLSNs(t *testing.T) {
	m, _ := newTestManager(t, 4096, time.Hour)
	l1 := m.Append(wal.Record{TxnID: 1, PrevLSN: int64(wal.InvalidLSN), Type: wal.Begin})
	l2 := m.Append(wal.Record{TxnID: 1, PrevLSN: l1, Type: wal.Commit})
	if l2 <= l1 {
		t.Fatalf("LSNs not monotonic: %d then %d", l1, l2)
	}
}

func TestForceFlushAdvancesPersistentLSN(t *testing.T) {
	m, _ := newTestManager(t, 4096, time.Hour)
	lsn := m.Append(wal.Record{TxnID: 1, PrevLSN: int64(wal.InvalidLSN), Type: wal.Begin})
	m.Flush(true)
	if got := m.PersistentLSN(); got < lsn {
		t.Fatalf("PersistentLSN() = %d, want >= %d", got, lsn)
	}
}

func TestFlushLSNBlocksUntilDurable(t *testing.T) {
	m, _ := newTestManager(t, 4096, 20*time.Millisecond)
	lsn := m.Append(wal.Record{TxnID: 1, PrevLSN: int64(wal.InvalidLSN), Type: wal.Begin})

	done := make(chan struct{})
	go func() {
		m.FlushLSN(lsn)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("FlushLSN never returned")
	}
	if got := m.PersistentLSN(); got < lsn {
		t.Fatalf("PersistentLSN() = %d, want >= %d", got, lsn)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	rec := wal.Record{
		TxnID:   3,
		PrevLSN: int64(wal.InvalidLSN),
		Type:    wal.Insert,
		Tuple:   []byte("payload"),
	}
	rec.LSN = 42
	buf := rec.Marshal()
	got, n, err := wal.Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("Unmarshal consumed %d bytes, want %d", n, len(buf))
	}
	if got.LSN != 42 || got.TxnID != 3 || string(got.Tuple) != "payload" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
