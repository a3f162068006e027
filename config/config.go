// Package config holds the global tunables for the storage engine.
package config

import "time"

// Name of the engine, used as the default base name for the page and log
// files a fresh engine creates.
const EngineName = "dinocore"

// DefaultBucketSize is the number of entries an extendible hash bucket
// holds before it must split.
const DefaultBucketSize = 4

// DefaultPoolSize is the number of frames the buffer pool manages when
// no explicit size is given.
const DefaultPoolSize = 64

// DefaultLogBufferSize is the size, in bytes, of each of the log
// manager's two swap buffers. Must be at least as large as the biggest
// single log record the engine can produce.
const DefaultLogBufferSize = 4096 * 4

// DefaultLogTimeout is how long the background flusher waits for a
// group-commit wakeup before flushing whatever has accumulated.
const DefaultLogTimeout = 1 * time.Second

// LogFileSuffix names the write-ahead log that sits beside a page file.
const LogFileSuffix = ".log"
