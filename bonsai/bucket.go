package bonsai

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/intellect4all/bonsaitree/cache"
)

// bucketHeaderSize is the fixed header every bucket slot carries ahead of
// its entry-pointer array (spec §3's Bucket layout): isLeaf flag, the two
// serializer ids, the doubly-linked leaf sibling pointers, the tree-size
// counter (meaningful only on a tree's root bucket) and the entry count
// and free-space tombstone.
const bucketHeaderSize = 48

const (
	offIsLeaf       = 0
	offKeySerID     = 1
	offValSerID     = 2
	offLeftSibPage  = 4
	offLeftSibOff   = 12
	offRightSibPage = 16
	offRightSibOff  = 24
	offTreeSize     = 28
	offEntryCount   = 36
	offTail         = 40
)

const entryPtrSize = 4

// ErrBucketFull is returned by AddLeafEntry/AddInternalEntry (through
// insertRaw) when the bucket's slot has no room for the new entry; the
// callers (Tree.put in tree.go, insertIntoParent in split.go) react to it
// by splitting the bucket.
var ErrBucketFull = errors.New("bonsai: bucket full")

// bucketEntry is one decoded entry: a (key,value) pair in a leaf bucket,
// or a (leftChild,rightChild,key) triplet in an internal one (spec §3:
// "Cell(left,right,K) means every key < K routes left, every key >= K
// routes right").
type bucketEntry struct {
	key   []byte
	value []byte
	left  Pointer
	right Pointer
}

// Bucket is a view over one bucket slot: a fixed cache.BucketSize-byte
// window into a cached page's buffer. It reads and writes its header
// fields directly against that window, so a Bucket never goes stale with
// respect to its backing buffer — there is exactly one copy of the data.
type Bucket struct {
	buf []byte // exactly cache.BucketSize bytes
}

func wrapBucket(buf []byte) *Bucket {
	if len(buf) != cache.BucketSize {
		panic(fmt.Sprintf("bonsai: bucket buffer must be %d bytes, got %d", cache.BucketSize, len(buf)))
	}
	return &Bucket{buf: buf}
}

// initLeafBucket formats buf as a fresh, empty leaf bucket.
func initLeafBucket(buf []byte, keySerID, valSerID byte) *Bucket {
	b := wrapBucket(buf)
	for i := range buf {
		buf[i] = 0
	}
	buf[offIsLeaf] = 1
	buf[offKeySerID] = keySerID
	buf[offValSerID] = valSerID
	b.setLeftSibling(Null)
	b.setRightSibling(Null)
	b.setTail(uint32(cache.BucketSize))
	return b
}

// initInternalBucket formats buf as a fresh, empty internal bucket.
func initInternalBucket(buf []byte, keySerID, valSerID byte) *Bucket {
	b := wrapBucket(buf)
	for i := range buf {
		buf[i] = 0
	}
	buf[offIsLeaf] = 0
	buf[offKeySerID] = keySerID
	buf[offValSerID] = valSerID
	b.setTail(uint32(cache.BucketSize))
	return b
}

func (b *Bucket) IsLeaf() bool       { return b.buf[offIsLeaf] == 1 }
func (b *Bucket) KeySerializerID() byte { return b.buf[offKeySerID] }
func (b *Bucket) ValueSerializerID() byte { return b.buf[offValSerID] }

func (b *Bucket) LeftSibling() Pointer {
	return Pointer{
		PageIndex: binary.BigEndian.Uint64(b.buf[offLeftSibPage:]),
		Offset:    binary.BigEndian.Uint32(b.buf[offLeftSibOff:]),
	}
}

func (b *Bucket) setLeftSibling(p Pointer) {
	binary.BigEndian.PutUint64(b.buf[offLeftSibPage:], p.PageIndex)
	binary.BigEndian.PutUint32(b.buf[offLeftSibOff:], p.Offset)
}

func (b *Bucket) RightSibling() Pointer {
	return Pointer{
		PageIndex: binary.BigEndian.Uint64(b.buf[offRightSibPage:]),
		Offset:    binary.BigEndian.Uint32(b.buf[offRightSibOff:]),
	}
}

func (b *Bucket) setRightSibling(p Pointer) {
	binary.BigEndian.PutUint64(b.buf[offRightSibPage:], p.PageIndex)
	binary.BigEndian.PutUint32(b.buf[offRightSibOff:], p.Offset)
}

// SetLeftSibling/SetRightSibling are exported so split.go and tree.go can
// relink the doubly-linked leaf chain (spec §4.7) without reaching into
// package-private offsets.
func (b *Bucket) SetLeftSibling(p Pointer)  { b.setLeftSibling(p) }
func (b *Bucket) SetRightSibling(p Pointer) { b.setRightSibling(p) }

// TreeSize is meaningful only on a tree's root bucket: the live entry
// count across the whole tree, maintained incrementally by Put/Remove.
func (b *Bucket) TreeSize() uint64 { return binary.BigEndian.Uint64(b.buf[offTreeSize:]) }
func (b *Bucket) SetTreeSize(n uint64) {
	binary.BigEndian.PutUint64(b.buf[offTreeSize:], n)
}

func (b *Bucket) EntryCount() int {
	return int(binary.BigEndian.Uint32(b.buf[offEntryCount:]))
}

func (b *Bucket) setEntryCount(n int) {
	binary.BigEndian.PutUint32(b.buf[offEntryCount:], uint32(n))
}

func (b *Bucket) tail() uint32 { return binary.BigEndian.Uint32(b.buf[offTail:]) }
func (b *Bucket) setTail(v uint32) {
	binary.BigEndian.PutUint32(b.buf[offTail:], v)
}

func (b *Bucket) IsEmpty() bool { return b.EntryCount() == 0 }

func (b *Bucket) ptrArrayOffset(i int) int { return bucketHeaderSize + i*entryPtrSize }

func (b *Bucket) entryOffset(i int) uint32 {
	return binary.BigEndian.Uint32(b.buf[b.ptrArrayOffset(i):])
}

func (b *Bucket) setEntryOffset(i int, off uint32) {
	binary.BigEndian.PutUint32(b.buf[b.ptrArrayOffset(i):], off)
}

// freeSpace returns how many contiguous bytes remain between the
// pointer array and the entry data growing down from the end of the
// slot (mirrors the teacher's page freePtr bookkeeping, scaled to a
// quarter-page bucket).
func (b *Bucket) freeSpace() int {
	used := bucketHeaderSize + b.EntryCount()*entryPtrSize
	return int(b.tail()) - used
}

// encodeLeafEntry lays out [keyLen][key][valLen][value].
func encodeLeafEntry(key, value []byte) []byte {
	kl := varintSize(uint64(len(key)))
	vl := varintSize(uint64(len(value)))
	out := make([]byte, kl+len(key)+vl+len(value))
	n := putUvarint(out, uint64(len(key)))
	n += copy(out[n:], key)
	n += putUvarint(out[n:], uint64(len(value)))
	copy(out[n:], value)
	return out
}

func decodeLeafEntry(data []byte) (key, value []byte) {
	klen, n := uvarint(data)
	key = data[n : n+int(klen)]
	n += int(klen)
	vlen, n2 := uvarint(data[n:])
	n += n2
	value = data[n : n+int(vlen)]
	return key, value
}

// encodeInternalEntry lays out [left(12)][right(12)][keyLen][key].
func encodeInternalEntry(left, right Pointer, key []byte) []byte {
	kl := varintSize(uint64(len(key)))
	out := make([]byte, 12+12+kl+len(key))
	binary.BigEndian.PutUint64(out[0:], left.PageIndex)
	binary.BigEndian.PutUint32(out[8:], left.Offset)
	binary.BigEndian.PutUint64(out[12:], right.PageIndex)
	binary.BigEndian.PutUint32(out[20:], right.Offset)
	n := putUvarint(out[24:], uint64(len(key)))
	copy(out[24+n:], key)
	return out
}

func decodeInternalEntry(data []byte) (left, right Pointer, key []byte) {
	left = Pointer{PageIndex: binary.BigEndian.Uint64(data[0:]), Offset: binary.BigEndian.Uint32(data[8:])}
	right = Pointer{PageIndex: binary.BigEndian.Uint64(data[12:]), Offset: binary.BigEndian.Uint32(data[20:])}
	klen, n := uvarint(data[24:])
	key = data[24+n : 24+n+int(klen)]
	return left, right, key
}

// find performs a binary search for key among this bucket's entries and
// returns the insertion index. When the key is present, index holds its
// position and found is true; otherwise index is where it belongs.
func (b *Bucket) find(key []byte, cmp func(a, b []byte) int) (index int, found bool) {
	lo, hi := 0, b.EntryCount()
	for lo < hi {
		mid := (lo + hi) / 2
		k := b.keyAt(mid)
		c := cmp(key, k)
		switch {
		case c == 0:
			return mid, true
		case c < 0:
			hi = mid
		default:
			lo = mid + 1
		}
	}
	return lo, false
}

func (b *Bucket) keyAt(i int) []byte {
	off := b.entryOffset(i)
	data := b.buf[off:]
	if b.IsLeaf() {
		key, _ := decodeLeafEntry(data)
		return key
	}
	_, _, key := decodeInternalEntry(data)
	return key
}

func (b *Bucket) entryAt(i int) bucketEntry {
	off := b.entryOffset(i)
	data := b.buf[off:]
	if b.IsLeaf() {
		key, val := decodeLeafEntry(data)
		return bucketEntry{key: key, value: val}
	}
	left, right, key := decodeInternalEntry(data)
	return bucketEntry{left: left, right: right, key: key}
}

// insertRaw writes encoded entry data at the bucket's current tail and
// inserts its pointer at logical position idx, shifting later pointers
// right. It reports ErrBucketFull if there isn't room.
func (b *Bucket) insertRaw(idx int, data []byte) error {
	needed := len(data) + entryPtrSize
	if needed > b.freeSpace() {
		return ErrBucketFull
	}

	newTail := b.tail() - uint32(len(data))
	copy(b.buf[newTail:], data)
	b.setTail(newTail)

	n := b.EntryCount()
	for i := n; i > idx; i-- {
		b.setEntryOffset(i, b.entryOffset(i-1))
	}
	b.setEntryOffset(idx, newTail)
	b.setEntryCount(n + 1)
	return nil
}

// AddLeafEntry inserts a (key,value) pair at idx.
func (b *Bucket) AddLeafEntry(idx int, key, value []byte) error {
	return b.insertRaw(idx, encodeLeafEntry(key, value))
}

// AddInternalEntry inserts a (left,right,key) triplet at idx.
func (b *Bucket) AddInternalEntry(idx int, left, right Pointer, key []byte) error {
	return b.insertRaw(idx, encodeInternalEntry(left, right, key))
}

// UpdateValue replaces the value of the leaf entry at idx by removing the
// entry and reinserting it, with the new value, at the bucket's tail; the
// old entry's bytes are not reclaimed (see RemoveEntry).
func (b *Bucket) UpdateValue(idx int, value []byte) error {
	e := b.entryAt(idx)
	key := append([]byte(nil), e.key...)
	if err := b.RemoveEntry(idx); err != nil {
		return err
	}
	if err := b.AddLeafEntry(idx, key, value); err != nil {
		// best effort: reinsert the old value so the bucket isn't left
		// without the key at all; caller must split and retry.
		b.AddLeafEntry(idx, key, e.value)
		return err
	}
	return nil
}

// RemoveEntry deletes the entry at idx. It does not reclaim the bytes
// its data occupied past the tail (compaction happens implicitly the
// next time the bucket is rewritten wholesale by a split); it only
// drops the pointer so deleted entries are never visible again.
func (b *Bucket) RemoveEntry(idx int) error {
	n := b.EntryCount()
	if idx < 0 || idx >= n {
		return fmt.Errorf("bonsai: remove index %d out of range [0,%d)", idx, n)
	}
	for i := idx; i < n-1; i++ {
		b.setEntryOffset(i, b.entryOffset(i+1))
	}
	b.setEntryCount(n - 1)
	return nil
}

// AllEntries returns every entry in order, each with its own copy of the
// key/value bytes so the result stays valid after the bucket's backing
// buffer is reformatted (split.go reformats the source bucket in place
// after reading its entries out).
func (b *Bucket) AllEntries() []bucketEntry {
	n := b.EntryCount()
	out := make([]bucketEntry, n)
	for i := 0; i < n; i++ {
		e := b.entryAt(i)
		out[i] = bucketEntry{
			key:   slices.Clone(e.key),
			value: slices.Clone(e.value),
			left:  e.left,
			right: e.right,
		}
	}
	return out
}

// ResetAs reformats the bucket's entire slot as a fresh leaf or internal
// bucket (per isLeaf) carrying keySerID/valSerID and then reinserts every
// entry in entries, in order. It is used to rewrite a bucket in place
// after splitBucket has decided which entries it keeps.
func (b *Bucket) ResetAs(isLeaf bool, keySerID, valSerID byte, entries []bucketEntry) error {
	if isLeaf {
		initLeafBucket(b.buf, keySerID, valSerID)
	} else {
		initInternalBucket(b.buf, keySerID, valSerID)
	}
	for i, e := range entries {
		var err error
		if isLeaf {
			err = b.AddLeafEntry(i, e.key, e.value)
		} else {
			err = b.AddInternalEntry(i, e.left, e.right, e.key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
