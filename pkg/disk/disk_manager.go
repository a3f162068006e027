// Package disk implements the on-disk half of the storage engine: a page
// file addressed by fixed-size page numbers, and an append-only log file.
// Everything above this package (the buffer pool, the WAL) treats these as
// the durable ground truth.
package disk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ncw/directio"
)

// PageSize is the size, in bytes, of a single page. It is pinned to the
// platform's direct-I/O block size so page reads/writes can bypass the
// page cache the way a real storage engine would.
const PageSize int64 = directio.BlockSize

// InvalidPageID is the sentinel meaning "no page".
const InvalidPageID int32 = -1

// ErrCorruptFile is returned when a page file's length isn't a multiple of
// PageSize.
var ErrCorruptFile = errors.New("disk: page file size is not page-aligned")

// Manager owns a page file and a log file on disk. It performs no caching;
// its two mutexes only serialize page-file access (including page
// allocation) and log-file access. Callers (the buffer pool, the log
// manager) are responsible for higher-level synchronization.
type Manager struct {
	pageFile  *os.File
	numPages  int64
	pageMtx   sync.Mutex

	logFile *os.File
	logMtx  sync.Mutex
}

// Open opens (creating if necessary) a page file at pagePath and a log file
// at logPath.
func Open(pagePath string, logPath string) (*Manager, error) {
	if idx := strings.LastIndex(pagePath, "/"); idx != -1 {
		if err := os.MkdirAll(pagePath[:idx], 0775); err != nil {
			return nil, err
		}
	}
	pageFile, err := directio.OpenFile(pagePath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, err
	}
	info, err := pageFile.Stat()
	if err != nil {
		pageFile.Close()
		return nil, err
	}
	if info.Size()%PageSize != 0 {
		pageFile.Close()
		return nil, ErrCorruptFile
	}
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		pageFile.Close()
		return nil, err
	}
	return &Manager{
		pageFile: pageFile,
		numPages: info.Size() / PageSize,
		logFile:  logFile,
	}, nil
}

// Close closes both files.
func (m *Manager) Close() error {
	err := m.pageFile.Close()
	if logErr := m.logFile.Close(); err == nil {
		err = logErr
	}
	return err
}

// AllocatePage reserves and returns the next unused page id. The page's
// bytes are not guaranteed to be zeroed until the caller writes to it.
func (m *Manager) AllocatePage() int32 {
	m.pageMtx.Lock()
	defer m.pageMtx.Unlock()
	pid := int32(m.numPages)
	m.numPages++
	return pid
}

// DeallocatePage is a no-op placeholder: this engine never reuses freed page
// ids or truncates the page file, since compaction is out of scope for the
// storage core. It exists so callers (recovery undoing a NEWPAGE, the buffer
// pool's Delete) have a stable point to call once free-space reuse lands.
func (m *Manager) DeallocatePage(pageID int32) {}

// EnsureCapacity makes pageID a valid target for ReadPage/WritePage even if
// it was never handed out by AllocatePage in this process, which recovery
// needs when replaying a NEWPAGE record for a page that crashed before its
// first WritePage ever reached disk.
func (m *Manager) EnsureCapacity(pageID int32) {
	m.pageMtx.Lock()
	defer m.pageMtx.Unlock()
	if int64(pageID)+1 > m.numPages {
		m.numPages = int64(pageID) + 1
	}
}

// ReadPage reads the page with the given id into buf, which must be exactly
// PageSize bytes and (for platforms that need it) block-aligned.
func (m *Manager) ReadPage(pageID int32, buf []byte) error {
	if int64(len(buf)) != PageSize {
		return fmt.Errorf("disk: ReadPage buffer must be %d bytes", PageSize)
	}
	m.pageMtx.Lock()
	defer m.pageMtx.Unlock()
	if int64(pageID) >= m.numPages {
		return fmt.Errorf("disk: page %d out of bounds", pageID)
	}
	_, err := m.pageFile.ReadAt(buf, int64(pageID)*PageSize)
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

// WritePage durably writes buf as the contents of page pageID.
func (m *Manager) WritePage(pageID int32, buf []byte) error {
	if int64(len(buf)) != PageSize {
		return fmt.Errorf("disk: WritePage buffer must be %d bytes", PageSize)
	}
	m.pageMtx.Lock()
	defer m.pageMtx.Unlock()
	_, err := m.pageFile.WriteAt(buf, int64(pageID)*PageSize)
	return err
}

// NumPages returns the number of pages currently allocated.
func (m *Manager) NumPages() int64 {
	m.pageMtx.Lock()
	defer m.pageMtx.Unlock()
	return m.numPages
}

// WriteLog appends buf to the end of the log file and fsyncs it, so that a
// successful return satisfies the WAL rule for every LSN contained in buf.
func (m *Manager) WriteLog(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	m.logMtx.Lock()
	defer m.logMtx.Unlock()
	if _, err := m.logFile.Write(buf); err != nil {
		return err
	}
	return m.logFile.Sync()
}

// ReadLog reads up to len(buf) bytes starting at offset from the log file.
// It returns the number of bytes read and false once offset reaches the end
// of the file (mirroring the "no more log" signal recovery scans for).
func (m *Manager) ReadLog(buf []byte, offset int64) (int, bool) {
	m.logMtx.Lock()
	defer m.logMtx.Unlock()
	n, err := m.logFile.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, false
	}
	return n, n > 0
}
