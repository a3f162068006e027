package wal

import (
	"sync"
	"time"

	"dinocore/pkg/disk"
)

// Manager is the append-only write-ahead log: two equal-size in-memory
// buffers (the log buffer appenders write into, and the flush buffer the
// background flusher drains to disk), a monotonic LSN counter, and the
// group-commit rendezvous between them.
type Manager struct {
	disk    *disk.Manager
	timeout time.Duration

	mtx      sync.Mutex
	cvAppend *sync.Cond
	wake     chan struct{}

	logBuffer   []byte
	flushBuffer []byte
	logOffset   int
	flushSize   int
	needFlush   bool

	nextLSN       int64
	lastLSN       int64
	persistentLSN int64

	enabled bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewManager returns a Manager with two bufferSize-byte buffers, backed by
// d for durable writes. The flush thread is not running until Run is
// called.
func NewManager(d *disk.Manager, bufferSize int, timeout time.Duration) *Manager {
	m := &Manager{
		disk:          d,
		timeout:       timeout,
		logBuffer:     make([]byte, bufferSize),
		flushBuffer:   make([]byte, bufferSize),
		wake:          make(chan struct{}, 1),
		nextLSN:       1,
		lastLSN:       int64(InvalidLSN),
		persistentLSN: int64(InvalidLSN),
	}
	m.cvAppend = sync.NewCond(&m.mtx)
	return m
}

// signalFlusher wakes the background flusher without blocking if it is
// already awake and about to check needFlush.
func (m *Manager) signalFlusher() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run starts the background flush thread. Logging must be enabled before
// any Append call, matching the reference engine's ENABLE_LOGGING gate.
func (m *Manager) Run() {
	m.mtx.Lock()
	if m.enabled {
		m.mtx.Unlock()
		return
	}
	m.enabled = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	m.mtx.Unlock()

	go m.flushLoop()
}

// Stop force-flushes any pending records and joins the flush thread.
func (m *Manager) Stop() {
	m.mtx.Lock()
	if !m.enabled {
		m.mtx.Unlock()
		return
	}
	m.enabled = false
	stopCh := m.stopCh
	done := m.done
	m.mtx.Unlock()

	close(stopCh)
	<-done
}

// flushLoop is the background flusher: it wakes on a timeout or a
// needFlush signal, swaps the two buffers, and writes the flush buffer to
// disk.
func (m *Manager) flushLoop() {
	defer close(m.done)
	for {
		select {
		case <-m.stopCh:
			m.mtx.Lock()
			if m.logOffset > 0 {
				m.swapAndWriteLocked()
			}
			m.needFlush = false
			m.cvAppend.Broadcast()
			m.mtx.Unlock()
			return
		case <-m.wake:
		case <-time.After(m.timeout):
		}

		m.mtx.Lock()
		if m.logOffset > 0 {
			m.swapAndWriteLocked()
		}
		m.needFlush = false
		m.cvAppend.Broadcast()
		m.mtx.Unlock()
	}
}

// swapAndWriteLocked swaps the log and flush buffers and durably writes the
// flush buffer. m.mtx must be held on entry; it is released while the disk
// write is in flight and re-acquired before returning.
func (m *Manager) swapAndWriteLocked() {
	m.logBuffer, m.flushBuffer = m.flushBuffer, m.logBuffer
	m.flushSize, m.logOffset = m.logOffset, 0
	toWrite := m.flushBuffer[:m.flushSize]
	lastLSN := m.lastLSN

	m.mtx.Unlock()
	m.disk.WriteLog(toWrite)
	m.mtx.Lock()

	m.persistentLSN = lastLSN
	m.flushSize = 0
}

// Append stamps record with the next LSN, serializes it into the log
// buffer (blocking for space if the buffer is full), and returns the
// assigned LSN.
func (m *Manager) Append(record Record) int64 {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	record.LSN = m.nextLSN
	m.nextLSN++
	size := int(record.Size())

	for m.logOffset+size >= len(m.logBuffer) {
		m.needFlush = true
		m.signalFlusher()
		m.cvAppend.Wait()
	}

	buf := record.Marshal()
	copy(m.logBuffer[m.logOffset:], buf)
	m.logOffset += size
	m.lastLSN = record.LSN
	return record.LSN
}

// Flush requests a flush of whatever has accumulated. If force is true it
// blocks until the flush completes; otherwise it blocks until the next
// scheduled flush completes for anyone (group commit).
func (m *Manager) Flush(force bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if force {
		m.needFlush = true
		m.signalFlusher()
	}
	m.cvAppend.Wait()
}

// FlushLSN blocks until the given LSN is durable, satisfying the WAL rule
// for a page whose last-LSN is lsn. It is the method the buffer pool calls
// through the LogFlusher interface before writing a dirty page back.
func (m *Manager) FlushLSN(lsn int64) {
	m.mtx.Lock()
	for m.persistentLSN < lsn {
		m.needFlush = true
		m.signalFlusher()
		m.cvAppend.Wait()
	}
	m.mtx.Unlock()
}

// PersistentLSN returns the highest LSN known to be durable on disk.
func (m *Manager) PersistentLSN() int64 {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.persistentLSN
}
