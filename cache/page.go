package cache

import (
	"sync"

	"github.com/intellect4all/bonsaitree/wal"
)

// DefaultPageSize is the fixed size of every page in a container file.
const DefaultPageSize = 65536

// Entry is one cached page: the "CacheEntry" of spec §6. It owns the raw
// byte buffer bonsai buckets are laid out inside, an exclusive lock
// guarding that buffer, and the LSN of the last WAL record that described
// a change to it (the per-page undo chain anchor, spec §4.9).
type Entry struct {
	pageIndex uint64
	fileID    uint32
	buf       []byte
	dirty     bool
	pinned    bool
	lastLSN   wal.LSN

	lock sync.RWMutex
}

func newEntry(fileID uint32, pageIndex uint64, size int) *Entry {
	return &Entry{fileID: fileID, pageIndex: pageIndex, buf: make([]byte, size)}
}

// PageIndex returns this page's index within its container file.
func (e *Entry) PageIndex() uint64 { return e.pageIndex }

// FileID returns the container file this page belongs to.
func (e *Entry) FileID() uint32 { return e.fileID }

// MarkDirty flags the page as modified since the last flush.
func (e *Entry) MarkDirty() { e.dirty = true }

// IsDirty reports whether the page has unflushed changes.
func (e *Entry) IsDirty() bool { return e.dirty }

// Bytes returns the raw page buffer. Callers must hold the page's
// exclusive lock before mutating it.
func (e *Entry) Bytes() []byte { return e.buf }

// LastLSN returns the LSN of the most recent WAL record describing a
// change to this page, or wal.NilLSN if none has been logged yet.
func (e *Entry) LastLSN() wal.LSN { return e.lastLSN }

// SetLastLSN updates the per-page undo-chain anchor after logging a
// change (spec §4.9).
func (e *Entry) SetLastLSN(lsn wal.LSN) { e.lastLSN = lsn }

// AcquireExclusiveLock takes this page's per-page lock (spec §5's
// page-level locking). Bonsai's tree-level RWMutex already serializes
// writers against each other, so in practice only readers and the single
// active writer ever contend here; the lock exists so page lifetime is
// enforced even if that invariant is ever relaxed.
func (e *Entry) AcquireExclusiveLock() { e.lock.Lock() }

// ReleaseExclusiveLock releases the lock taken by AcquireExclusiveLock.
func (e *Entry) ReleaseExclusiveLock() { e.lock.Unlock() }

// AcquireSharedLock takes a read lock, used by read-only traversals.
func (e *Entry) AcquireSharedLock() { e.lock.RLock() }

// ReleaseSharedLock releases a read lock.
func (e *Entry) ReleaseSharedLock() { e.lock.RUnlock() }
