// Package bonsai implements the Bonsai B+-tree: a durable, disk-backed
// ordered map whose nodes ("buckets") are quarter-page slots packed many
// to a page, so many independent trees can share one container file
// (spec §1-§3). Tree is the public handle; Pointer addresses a bucket;
// Bucket is the binary page layout transactions are read from and
// written to.
package bonsai

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/intellect4all/bonsaitree/cache"
	"github.com/intellect4all/bonsaitree/codec"
	"github.com/intellect4all/bonsaitree/internal/telemetry"
	"github.com/intellect4all/bonsaitree/wal"
)

// Tree is a single Bonsai B+-tree: an ordered map addressed by a root
// Pointer into a shared container file (spec §6's Tree API).
type Tree struct {
	name string

	cache  *cache.PageCache
	fileID uint32
	alloc  *cache.BucketAllocator
	walMgr *wal.Manager
	// activeMgr is the manager the current call's unit was opened
	// against: normally walMgr, but swapped for a no-op manager for the
	// duration of a self-owned unit started with durableInNonTxMode
	// false. Safe as a plain field because Put/Remove hold t.mu for
	// their entire call.
	activeMgr *wal.Manager

	registry *codec.Registry
	keySer   codec.KeySerializer
	valSer   codec.ValueSerializer
	// keyArity is this tree's composite-key width, used to pad a
	// caller's short partial key to a search boundary (spec §4.3).
	// Single-part (arity 1) trees never need padding.
	keyArity int

	mu      sync.RWMutex
	root    Pointer
	closed  bool
	latches *latchManager
	log     *zap.Logger

	// durableInNonTxMode gates whether page changes are logged to the WAL
	// when no caller-supplied atomic unit is already open (spec §4.9's
	// non-tx-mode gate). Off by default: a bare Put outside an explicit
	// atomic unit still gets its own single-operation unit, but that unit
	// is opened on a no-op manager, so nothing reaches the WAL unless this
	// is set to true.
	durableInNonTxMode bool
}

// Config carries the pieces Create/Load need beyond the tree's name.
type Config struct {
	Cache              *cache.PageCache
	FileID             uint32
	WAL                *wal.Manager
	Registry           *codec.Registry
	KeySerializer      codec.KeySerializer
	ValueSerializer    codec.ValueSerializer
	DurableInNonTxMode bool
	// KeyArity declares this tree's composite-key width (spec §4.3).
	// Defaults to 1 (a plain, single-part key) when zero.
	KeyArity int
}

// Create allocates a fresh root bucket and returns a new, empty Tree.
func Create(name string, cfg Config) (*Tree, error) {
	if cfg.KeySerializer == nil {
		cfg.KeySerializer = codec.RawCodec
	}
	if cfg.ValueSerializer == nil {
		cfg.ValueSerializer = codec.RawCodec
	}
	if cfg.Registry == nil {
		cfg.Registry = codec.NewRegistry()
	}
	if cfg.KeyArity == 0 {
		cfg.KeyArity = 1
	}

	t := &Tree{
		name:               name,
		cache:              cfg.Cache,
		fileID:             cfg.FileID,
		walMgr:             cfg.WAL,
		activeMgr:          cfg.WAL,
		registry:           cfg.Registry,
		keySer:             cfg.KeySerializer,
		valSer:             cfg.ValueSerializer,
		durableInNonTxMode: cfg.DurableInNonTxMode,
		keyArity:           cfg.KeyArity,
		latches:            newLatchManager(),
		log:                telemetry.Component("bonsai.tree").With(zap.String("tree", name)),
	}

	alloc := cache.NewBucketAllocator(cfg.Cache, cfg.FileID, 0)
	pageIdx, offset, err := alloc.AllocateRoot()
	if err != nil {
		return nil, newTreeError(name, nil, newIoError("Create", err))
	}
	t.alloc = alloc
	t.root = Pointer{PageIndex: pageIdx, Offset: offset}

	entry, err := cfg.Cache.Load(cfg.FileID, pageIdx, false)
	if err != nil {
		return nil, newTreeError(name, nil, newIoError("Create", err))
	}
	entry.AcquireExclusiveLock()
	buf := entry.Bytes()[offset : offset+cache.BucketSize]
	initLeafBucket(buf, cfg.KeySerializer.ID(), cfg.ValueSerializer.ID())
	entry.MarkDirty()
	entry.ReleaseExclusiveLock()

	return t, nil
}

// Load reopens a tree whose root bucket already exists at root.
func Load(name string, root Pointer, cfg Config) (*Tree, error) {
	if cfg.Registry == nil {
		cfg.Registry = codec.NewRegistry()
	}
	if cfg.KeyArity == 0 {
		cfg.KeyArity = 1
	}

	t := &Tree{
		name:               name,
		cache:              cfg.Cache,
		fileID:             cfg.FileID,
		walMgr:             cfg.WAL,
		activeMgr:          cfg.WAL,
		registry:           cfg.Registry,
		root:               root,
		durableInNonTxMode: cfg.DurableInNonTxMode,
		alloc:              cache.NewBucketAllocator(cfg.Cache, cfg.FileID, 0),
		keyArity:           cfg.KeyArity,
		latches:            newLatchManager(),
		log:                telemetry.Component("bonsai.tree").With(zap.String("tree", name)),
	}

	b, release, err := t.loadBucket(root, false)
	if err != nil {
		return nil, newTreeError(name, nil, newIoError("Load", err))
	}
	defer release()

	keySer, err := cfg.Registry.KeySerializer(b.KeySerializerID())
	if err != nil {
		return nil, newTreeError(name, nil, err)
	}
	valSer, err := cfg.Registry.ValueSerializer(b.ValueSerializerID())
	if err != nil {
		return nil, newTreeError(name, nil, err)
	}
	t.keySer = keySer
	t.valSer = valSer

	return t, nil
}

// Name returns the tree's name, as recorded wherever its root pointer is
// published.
func (t *Tree) Name() string { return t.name }

// Root returns the tree's root Pointer, stable across its lifetime
// (spec §3 invariant 1 — even a root split rewrites this slot in place
// rather than moving it). Only Clear assigns a new root pointer, since it
// reallocates the root after truncating the container.
func (t *Tree) Root() Pointer { return t.root }

// Size returns the tree's live entry count, read from the root bucket's
// tree-size counter.
func (t *Tree) Size() (uint64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return 0, ErrTreeClosed
	}
	b, release, err := t.loadBucket(t.root, false)
	if err != nil {
		return 0, newTreeError(t.name, nil, newIoError("Size", err))
	}
	defer release()
	return b.TreeSize(), nil
}

// Stats summarizes a tree's root bucket, mirroring the teacher's
// BTree.Stats() enough to let a caller print occupancy without reaching
// into package-private bucket internals.
type Stats struct {
	Size       uint64
	RootIsLeaf bool
	EntryCount int
}

// Stats reports the tree's current size and root bucket shape.
func (t *Tree) Stats() (Stats, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return Stats{}, ErrTreeClosed
	}
	b, release, err := t.loadBucket(t.root, false)
	if err != nil {
		return Stats{}, newTreeError(t.name, nil, newIoError("Stats", err))
	}
	defer release()
	return Stats{Size: b.TreeSize(), RootIsLeaf: b.IsLeaf(), EntryCount: b.EntryCount()}, nil
}

// Close flushes this tree's container and marks the handle unusable.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if err := t.cache.FlushBuffer(); err != nil {
		t.log.Error("close: flush failed", zap.Error(err))
		return newTreeError(t.name, nil, newIoError("Close", err))
	}
	t.log.Info("tree closed")
	return nil
}

// Flush writes every dirty page of this tree's container to disk without
// closing anything (spec §6's `flush()`).
func (t *Tree) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTreeClosed
	}
	if err := t.cache.FlushBuffer(); err != nil {
		t.log.Error("flush failed", zap.Error(err))
		return newTreeError(t.name, nil, newIoError("Flush", err))
	}
	return nil
}

// Delete removes this tree's entire backing container file from disk and
// marks the handle unusable (spec §6's `delete()`). Since every tree
// sharing this container's fileID shares its pages, Delete is only safe
// to call on the sole tree occupying a container.
func (t *Tree) Delete() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	if err := t.cache.DeleteFile(t.fileID); err != nil {
		t.log.Error("delete failed", zap.Error(err))
		return newTreeError(t.name, nil, newIoError("Delete", err))
	}
	t.closed = true
	t.log.Info("tree deleted")
	return nil
}

// Clear discards every entry, truncating the container back to its
// metadata page and reallocating a fresh, empty root bucket in its place
// (spec §6's `clear()`; spec §9's open issue on root reuse — this cache
// makes no promise the old root's page index survives truncation, so
// Clear reallocates explicitly rather than assuming it does).
func (t *Tree) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTreeClosed
	}

	if err := t.cache.TruncateFile(t.fileID); err != nil {
		t.log.Error("clear: truncate failed", zap.Error(err))
		return newTreeError(t.name, nil, newIoError("Clear", err))
	}

	alloc := cache.NewBucketAllocator(t.cache, t.fileID, 0)
	pageIdx, offset, err := alloc.AllocateRoot()
	if err != nil {
		return newTreeError(t.name, nil, newIoError("Clear", err))
	}
	t.alloc = alloc

	entry, err := t.cache.Load(t.fileID, pageIdx, false)
	if err != nil {
		return newTreeError(t.name, nil, newIoError("Clear", err))
	}
	entry.AcquireExclusiveLock()
	buf := entry.Bytes()[offset : offset+cache.BucketSize]
	initLeafBucket(buf, t.keySer.ID(), t.valSer.ID())
	entry.MarkDirty()
	entry.ReleaseExclusiveLock()

	t.root = Pointer{PageIndex: pageIdx, Offset: offset}
	t.latches = newLatchManager()
	t.log.Info("tree cleared")
	return nil
}

// loadBucket loads the page at p and returns a Bucket view plus a release
// func the caller must invoke once done. Releasing a bucket loaded for
// write marks its page dirty.
func (t *Tree) loadBucket(p Pointer, forWrite bool) (*Bucket, func(), error) {
	if p.IsNull() {
		return nil, func() {}, fmt.Errorf("bonsai: cannot load the null pointer")
	}
	entry, err := t.cache.Load(t.fileID, p.PageIndex, false)
	if err != nil {
		return nil, nil, err
	}
	if forWrite {
		entry.AcquireExclusiveLock()
	} else {
		entry.AcquireSharedLock()
	}
	buf := entry.Bytes()[p.Offset : p.Offset+cache.BucketSize]
	release := func() {
		if forWrite {
			entry.MarkDirty()
			entry.ReleaseExclusiveLock()
		} else {
			entry.ReleaseSharedLock()
		}
		t.cache.Release(entry)
	}
	return wrapBucket(buf), release, nil
}

// keyCompare decodes a bucket's stored key bytes and compares target
// against it, target-first (the sign convention Bucket.find expects: the
// result is negative exactly when target sorts before the stored key).
func (t *Tree) keyCompare(stored []byte, target codec.Key) int {
	ks, err := t.keySer.DecodeKey(stored)
	if err != nil {
		panic(&Assertion{Msg: fmt.Sprintf("corrupt key entry: %v", err)})
	}
	return codec.Compare(target, ks)
}

// descend walks from the root to the leaf that would contain key,
// returning the leaf's pointer and the chain of internal pointers
// visited (innermost last), for split.go to walk back up when a leaf
// overflows.
func (t *Tree) descend(key codec.Key, forWrite bool) (leaf Pointer, path []Pointer, err error) {
	cur := t.root
	for {
		b, release, lerr := t.loadBucket(cur, false)
		if lerr != nil {
			return Pointer{}, nil, lerr
		}
		isLeaf := b.IsLeaf()
		if isLeaf {
			release()
			return cur, path, nil
		}

		idx, found := b.find(nil, func(_, k []byte) int { return t.keyCompare(k, key) })
		childIdx := idx
		if !found {
			childIdx = idx - 1
		}
		var child Pointer
		if childIdx < 0 {
			if b.EntryCount() == 0 {
				release()
				return Pointer{}, nil, fmt.Errorf("bonsai: empty internal bucket")
			}
			child = b.entryAt(0).left
		} else {
			child = b.entryAt(childIdx).right
		}
		release()
		path = append(path, cur)
		cur = child
	}
}

// Get looks up key and returns its decoded value.
func (t *Tree) Get(key codec.Key) (any, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, ErrTreeClosed
	}

	leaf, _, err := t.descend(key, false)
	if err != nil {
		return nil, newTreeError(t.name, nil, newIoError("Get", err))
	}
	b, release, err := t.loadBucket(leaf, false)
	if err != nil {
		return nil, newTreeError(t.name, nil, newIoError("Get", err))
	}
	defer release()

	idx, found := b.find(nil, func(_, k []byte) int { return t.keyCompare(k, key) })
	if !found {
		return nil, ErrKeyNotFound
	}
	e := b.entryAt(idx)
	v, err := t.valSer.DecodeValue(e.value)
	if err != nil {
		return nil, newTreeError(t.name, nil, err)
	}
	return v, nil
}

// ConcurrentGet looks up key using latch coupling instead of the tree's
// coarse RWMutex: it walks parent-then-child, acquiring each bucket's own
// latch and, whenever the bucket just loaded is safe for insert
// (isSafeForInsert), releasing every ancestor latch still held (spec §5's
// alternative access pattern for read-heavy workloads, adapted from the
// teacher's ConcurrentGet/ConcurrentPut pair — only the read side is
// reproduced here, since writes already serialize through Put's
// tree-wide lock and every bucket they touch is logged to the WAL).
func (t *Tree) ConcurrentGet(key codec.Key) (any, error) {
	if t.closed {
		return nil, ErrTreeClosed
	}

	chain := t.latches.newChain()
	defer chain.releaseAll()

	cur := t.root
	for {
		chain.acquire(cur, LatchShared)
		b, release, err := t.loadBucket(cur, false)
		if err != nil {
			return nil, newTreeError(t.name, nil, newIoError("ConcurrentGet", err))
		}

		if b.IsLeaf() {
			idx, found := b.find(nil, func(_, k []byte) int { return t.keyCompare(k, key) })
			if !found {
				release()
				return nil, ErrKeyNotFound
			}
			e := b.entryAt(idx)
			v, err := t.valSer.DecodeValue(e.value)
			release()
			if err != nil {
				return nil, newTreeError(t.name, nil, err)
			}
			return v, nil
		}

		idx, found := b.find(nil, func(_, k []byte) int { return t.keyCompare(k, key) })
		childIdx := idx
		if !found {
			childIdx = idx - 1
		}
		var child Pointer
		if childIdx < 0 {
			child = b.entryAt(0).left
		} else {
			child = b.entryAt(childIdx).right
		}
		safe := isSafeForInsert(b)
		release()
		if safe {
			chain.releaseAllButLast()
		}
		cur = child
	}
}

// Put inserts or overwrites key with value, splitting buckets along the
// path as needed (spec §4.4-§4.5). unit, if non-nil, is the caller's
// already-open atomic operation; Put starts and ends its own otherwise.
func (t *Tree) Put(unit *wal.Unit, key codec.Key, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTreeClosed
	}
	if key.Arity() == 0 {
		return ErrKeyEmpty
	}

	u, owns, err := t.beginUnit(unit)
	if err != nil {
		return newTreeError(t.name, nil, err)
	}

	encKey, err := t.keySer.EncodeKey(key)
	if err != nil {
		t.endUnit(u, owns, true)
		return newTreeError(t.name, nil, err)
	}
	encVal, err := t.valSer.EncodeValue(value)
	if err != nil {
		t.endUnit(u, owns, true)
		return newTreeError(t.name, nil, err)
	}

	// A fresh, empty bucket has BucketSize-bucketHeaderSize-entryPtrSize
	// bytes available for one entry's encoded bytes plus its own two
	// varint length prefixes; reject up front rather than recursing
	// through splitBucket/put forever for an entry no split could ever
	// make fit (spec §4.5's split only ever subdivides existing entries,
	// it never shrinks one).
	const maxEntryBytes = cache.BucketSize - bucketHeaderSize - entryPtrSize - 20
	if len(encKey)+len(encVal) > maxEntryBytes {
		t.endUnit(u, owns, true)
		return newTreeError(t.name, nil, ErrEntryTooLarge)
	}

	grew, err := t.put(u, encKey, encVal)
	if err != nil {
		t.endUnit(u, owns, true)
		t.log.Error("put failed", zap.Error(err))
		return newTreeError(t.name, nil, err)
	}
	if err := t.adjustSize(u, grew); err != nil {
		t.endUnit(u, owns, true)
		return newTreeError(t.name, nil, err)
	}

	if endErr := t.endUnit(u, owns, false); endErr != nil {
		return newTreeError(t.name, nil, endErr)
	}
	t.log.Debug("put committed", zap.Bool("grew", grew))
	return nil
}

// put does the actual leaf insert-or-update plus cascading split, and
// reports whether the tree gained a new entry (vs. an overwrite).
func (t *Tree) put(u *wal.Unit, encKey, encVal []byte) (grew bool, err error) {
	leaf, path, err := t.descendRaw(encKey)
	if err != nil {
		return false, err
	}

	b, release, err := t.loadBucket(leaf, true)
	if err != nil {
		return false, err
	}

	idx, found := b.find(encKey, func(a, tgt []byte) int { return t.rawKeyCompare(a, tgt) })
	if found {
		if err := b.UpdateValue(idx, encVal); err == nil {
			t.logBucketChange(u, leaf, b)
			release()
			return false, nil
		}
		// fell through: the updated value no longer fits, same as a
		// fresh insert that needs a split.
	}

	if !found {
		if err := b.AddLeafEntry(idx, encKey, encVal); err == nil {
			t.logBucketChange(u, leaf, b)
			release()
			return true, nil
		}
	}
	release()

	// Bucket full: split it, then retry the insert against whichever
	// half now owns the key.
	if err := t.splitBucket(u, leaf, path); err != nil {
		return false, err
	}
	return t.put(u, encKey, encVal)
}

func (t *Tree) rawKeyCompare(a, target []byte) int {
	ka, err := t.keySer.DecodeKey(a)
	if err != nil {
		panic(&Assertion{Msg: fmt.Sprintf("corrupt key entry: %v", err)})
	}
	kb, err := t.keySer.DecodeKey(target)
	if err != nil {
		panic(&Assertion{Msg: fmt.Sprintf("corrupt search key: %v", err)})
	}
	return codec.Compare(ka, kb)
}

// descendRaw is descend's sibling for already-encoded keys (used once a
// Put/Remove has serialized its key so it doesn't re-encode on retry
// after a split).
func (t *Tree) descendRaw(encKey []byte) (leaf Pointer, path []Pointer, err error) {
	cur := t.root
	for {
		b, release, lerr := t.loadBucket(cur, false)
		if lerr != nil {
			return Pointer{}, nil, lerr
		}
		if b.IsLeaf() {
			release()
			return cur, path, nil
		}
		idx, found := b.find(encKey, func(a, tgt []byte) int { return t.rawKeyCompare(a, tgt) })
		childIdx := idx
		if !found {
			childIdx = idx - 1
		}
		var child Pointer
		if childIdx < 0 {
			if b.EntryCount() == 0 {
				release()
				return Pointer{}, nil, fmt.Errorf("bonsai: empty internal bucket")
			}
			child = b.entryAt(0).left
		} else {
			child = b.entryAt(childIdx).right
		}
		release()
		path = append(path, cur)
		cur = child
	}
}

// Remove deletes key and returns its previous value. No rebalancing runs
// afterward (an explicit Non-goal: this tree never merges or redistributes
// underfull buckets on delete).
func (t *Tree) Remove(unit *wal.Unit, key codec.Key) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTreeClosed
	}

	u, owns, err := t.beginUnit(unit)
	if err != nil {
		return nil, newTreeError(t.name, nil, err)
	}

	encKey, err := t.keySer.EncodeKey(key)
	if err != nil {
		t.endUnit(u, owns, true)
		return nil, newTreeError(t.name, nil, err)
	}

	leaf, _, err := t.descendRaw(encKey)
	if err != nil {
		t.endUnit(u, owns, true)
		return nil, newTreeError(t.name, nil, newIoError("Remove", err))
	}

	b, release, err := t.loadBucket(leaf, true)
	if err != nil {
		t.endUnit(u, owns, true)
		return nil, newTreeError(t.name, nil, newIoError("Remove", err))
	}

	idx, found := b.find(encKey, func(a, tgt []byte) int { return t.rawKeyCompare(a, tgt) })
	if !found {
		release()
		t.endUnit(u, owns, true)
		return nil, ErrKeyNotFound
	}
	e := b.entryAt(idx)
	val, decErr := t.valSer.DecodeValue(e.value)
	if decErr != nil {
		release()
		t.endUnit(u, owns, true)
		return nil, newTreeError(t.name, nil, decErr)
	}

	if err := b.RemoveEntry(idx); err != nil {
		release()
		t.endUnit(u, owns, true)
		t.log.Error("remove failed", zap.Error(err))
		return nil, newTreeError(t.name, nil, err)
	}
	t.logBucketChange(u, leaf, b)
	release()

	// The size update happens inside the same atomic unit as the entry
	// removal (resolving spec §9's open issue: the teacher's analogue
	// updated its counter outside the bracketing transaction).
	if err := t.adjustSize(u, false); err != nil {
		t.endUnit(u, owns, true)
		return nil, newTreeError(t.name, nil, err)
	}
	if err := t.adjustSizeDelta(u, -1); err != nil {
		t.endUnit(u, owns, true)
		return nil, newTreeError(t.name, nil, err)
	}

	if endErr := t.endUnit(u, owns, false); endErr != nil {
		return nil, newTreeError(t.name, nil, endErr)
	}
	return val, nil
}

// adjustSize increments the root bucket's tree-size counter when grew is
// true; it exists so Put can share the same call shape Remove uses via
// adjustSizeDelta.
func (t *Tree) adjustSize(u *wal.Unit, grew bool) error {
	if !grew {
		return nil
	}
	return t.adjustSizeDelta(u, 1)
}

func (t *Tree) adjustSizeDelta(u *wal.Unit, delta int64) error {
	b, release, err := t.loadBucket(t.root, true)
	if err != nil {
		return err
	}
	defer release()
	cur := int64(b.TreeSize()) + delta
	if cur < 0 {
		cur = 0
	}
	b.SetTreeSize(uint64(cur))
	t.logBucketChange(u, t.root, b)
	return nil
}

// beginUnit opens unit if the caller didn't already hand one in, per
// spec §4.8's reentrant atomic-operation semantics. When the caller has
// no outer unit open and durableInNonTxMode is false (spec §4.9's
// non-tx-mode gate), the unit this call mints is logged through a
// no-op manager instead of t.walMgr, so the operation still gets
// atomic-unit bookkeeping but nothing hits the WAL.
func (t *Tree) beginUnit(unit *wal.Unit) (u *wal.Unit, owns bool, err error) {
	if t.walMgr == nil {
		return unit, false, nil
	}
	owns = unit == nil
	mgr := t.walMgr
	if owns && !t.durableInNonTxMode {
		mgr = wal.NewManager(nil)
	}
	u, err = mgr.Start(unit)
	if owns {
		t.activeMgr = mgr
	}
	return u, owns, err
}

func (t *Tree) endUnit(u *wal.Unit, owns bool, rollback bool) error {
	if t.walMgr == nil || u == nil {
		return nil
	}
	mgr := t.activeMgr
	if !owns {
		mgr = t.walMgr
	}
	_, err := mgr.End(u, rollback)
	if owns {
		t.activeMgr = t.walMgr
	}
	return err
}

// logBucketChange appends an UpdatePageRecord describing b's full current
// bytes (spec's DurableComponent mixin logs the page, not a diff) and
// updates the page's per-page undo-chain anchor.
func (t *Tree) logBucketChange(u *wal.Unit, p Pointer, b *Bucket) {
	if t.activeMgr == nil || u == nil {
		return
	}
	entry, err := t.cache.Load(t.fileID, p.PageIndex, false)
	if err != nil {
		return
	}
	lsn, err := t.activeMgr.LogPageChange(u, t.fileID, p.PageIndex, b.buf, entry.LastLSN() == wal.NilLSN, entry.LastLSN())
	if err != nil {
		return
	}
	entry.SetLastLSN(lsn)
}
