// Package engine wires the storage core's subsystems into one handle: a
// buffer pool over a page file, a write-ahead log with its flush thread, a
// transaction/lock manager pair, crash recovery run at startup, and the
// named B+Tree indexes layered on top. It plays the role the reference
// engine's database package plays for its btree/hash tables, generalized to
// the concurrent core this repository implements.
package engine

import (
	"path/filepath"
	"time"

	"github.com/otiai10/copy"
	"golang.org/x/sync/errgroup"

	"dinocore/config"
	"dinocore/pkg/btree"
	"dinocore/pkg/buffer"
	"dinocore/pkg/disk"
	"dinocore/pkg/lock"
	"dinocore/pkg/recovery"
	"dinocore/pkg/txn"
	"dinocore/pkg/wal"
)

const (
	pageFileName = config.EngineName + ".db"
	logFileName  = pageFileName + config.LogFileSuffix
)

// Config collects the tunables Open needs. Zero values fall back to the
// config package's defaults.
type Config struct {
	PoolSize      int
	LogBufferSize int
	LogTimeout    time.Duration
	Strict2PL     bool
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = config.DefaultPoolSize
	}
	if c.LogBufferSize <= 0 {
		c.LogBufferSize = config.DefaultLogBufferSize
	}
	if c.LogTimeout <= 0 {
		c.LogTimeout = config.DefaultLogTimeout
	}
	return c
}

// Engine is a running instance of the storage core over one data directory.
type Engine struct {
	dir  string
	disk *disk.Manager
	pool *buffer.Pool
	log  *wal.Manager
	txns *txn.Manager
	lock *lock.Manager
}

// Open brings up an engine over dataDir, creating it if necessary. If a page
// or log file already exists, recovery runs (REDO then UNDO) before the
// flush thread starts, so any committed-but-unflushed work is restored and
// any in-flight work is rolled back before new transactions can begin.
func Open(dataDir string, cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	d, err := disk.Open(filepath.Join(dataDir, pageFileName), filepath.Join(dataDir, logFileName))
	if err != nil {
		return nil, err
	}

	pool := buffer.NewPool(cfg.PoolSize, d)
	rm := recovery.NewManager(d, pool)
	if err := rm.Redo(); err != nil {
		d.Close()
		return nil, err
	}
	if err := rm.Undo(); err != nil {
		d.Close()
		return nil, err
	}
	pool.FlushAll()

	logMgr := wal.NewManager(d, cfg.LogBufferSize, cfg.LogTimeout)
	pool.SetLogFlusher(logMgr)
	logMgr.Run()

	txns := txn.NewManager(cfg.Strict2PL)
	return &Engine{
		dir:  dataDir,
		disk: d,
		pool: pool,
		log:  logMgr,
		txns: txns,
		lock: lock.NewManager(txns),
	}, nil
}

// Pool returns the engine's buffer pool.
func (e *Engine) Pool() *buffer.Pool { return e.pool }

// Log returns the engine's write-ahead log manager.
func (e *Engine) Log() *wal.Manager { return e.log }

// Txns returns the engine's transaction manager.
func (e *Engine) Txns() *txn.Manager { return e.txns }

// Locks returns the engine's lock manager.
func (e *Engine) Locks() *lock.Manager { return e.lock }

// OpenIndex opens (creating if necessary) a named B+Tree index over the
// engine's buffer pool.
func (e *Engine) OpenIndex(name string) (*btree.BTreeIndex, error) {
	return btree.OpenIndex(e.pool, name)
}

// OpenIndexes opens every named index, returning them in the same order as
// names. The first name is opened alone, since it may be the one that has
// to bootstrap the pool's header-page directory (page 0); every later name
// is opened concurrently against the now-initialized directory, the way the
// reference planner drops a table's indexes concurrently and joins on the
// first error.
func (e *Engine) OpenIndexes(names []string) ([]*btree.BTreeIndex, error) {
	if len(names) == 0 {
		return nil, nil
	}
	out := make([]*btree.BTreeIndex, len(names))
	first, err := e.OpenIndex(names[0])
	if err != nil {
		return nil, err
	}
	out[0] = first

	var g errgroup.Group
	for i := 1; i < len(names); i++ {
		i := i
		g.Go(func() error {
			idx, err := e.OpenIndex(names[i])
			if err != nil {
				return err
			}
			out[i] = idx
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Backup copies the engine's page file and log file into destDir, the way
// the reference recovery manager snapshots its data folder before a
// checkpoint: a plain recursive directory copy, taken while the caller
// holds whatever quiesce point makes it consistent (this engine has no
// fuzzy-checkpoint support, so callers should force the log and pause new
// transactions first).
func (e *Engine) Backup(destDir string) error {
	e.pool.FlushAll()
	return copy.Copy(e.dir, destDir)
}

// Close stops the flush thread (forcing whatever is buffered to disk),
// flushes every dirty page, and releases the underlying files.
func (e *Engine) Close() error {
	e.log.Stop()
	e.pool.FlushAll()
	return e.disk.Close()
}
