package bonsai

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/intellect4all/bonsaitree/wal"
)

// splitBucket splits an overfull bucket at target, whose ancestors (from
// root down to target's immediate parent) are path. Every entry carries
// its own embedded child pointers (or value), so a split is always an
// even partition of the existing entries across the original slot and
// one freshly allocated slot — nothing needs re-deriving afterward.
//
// Deliberately NOT the teacher's approach: a non-root split there
// reallocates the node being split and rewrites the parent in its place;
// here the node being split keeps its own slot and address (its left
// half stays put, only the right half moves to a new slot), and the
// ancestor chain only ever gains one new separator entry per split. The
// root case diverges further still: splitRoot rewrites the root slot in
// place as a new internal bucket rather than reallocating a new root
// (spec §3 invariant 1 — a tree's root pointer never changes once Create
// returns it).
func (t *Tree) splitBucket(u *wal.Unit, target Pointer, path []Pointer) error {
	t.log.Debug("splitting bucket", zap.Stringer("target", target), zap.Int("depth", len(path)))
	if len(path) == 0 {
		_, _, _, err := t.splitRoot(u, target)
		return err
	}

	newPtr, separator, err := t.performSplit(u, target)
	if err != nil {
		return err
	}
	return t.insertIntoParent(u, path, target, newPtr, separator)
}

// performSplit partitions target's entries into two halves: the left
// half stays at target's existing address, the right half moves to a
// freshly allocated slot. It returns that new slot's pointer and the
// separator key (the first key of the right half) the caller must route
// into target's parent.
func (t *Tree) performSplit(u *wal.Unit, target Pointer) (newPtr Pointer, separator []byte, err error) {
	b, release, err := t.loadBucket(target, true)
	if err != nil {
		return Pointer{}, nil, err
	}

	entries := b.AllEntries()
	if len(entries) < 2 {
		release()
		return Pointer{}, nil, fmt.Errorf("bonsai: cannot split bucket with fewer than 2 entries")
	}
	isLeaf := b.IsLeaf()
	keySerID, valSerID := b.KeySerializerID(), b.ValueSerializerID()
	var oldRight Pointer
	if isLeaf {
		oldRight = b.RightSibling()
	}

	mid := len(entries) / 2
	leftEntries, rightEntries := entries[:mid], entries[mid:]
	separator = append([]byte(nil), rightEntries[0].key...)

	newPage, newOffset, err := t.alloc.Allocate()
	if err != nil {
		release()
		return Pointer{}, nil, newIoError("splitBucket", err)
	}
	newPtr = Pointer{PageIndex: newPage, Offset: newOffset}

	nb, nrelease, err := t.loadBucket(newPtr, true)
	if err != nil {
		release()
		return Pointer{}, nil, err
	}
	if err := nb.ResetAs(isLeaf, keySerID, valSerID, rightEntries); err != nil {
		release()
		nrelease()
		return Pointer{}, nil, fmt.Errorf("bonsai: new split half does not fit: %w", err)
	}
	if err := b.ResetAs(isLeaf, keySerID, valSerID, leftEntries); err != nil {
		release()
		nrelease()
		return Pointer{}, nil, fmt.Errorf("bonsai: left split half does not fit: %w", err)
	}

	if isLeaf {
		// Doubly-linked leaf chain (spec §4.7): target -> new -> oldRight.
		b.SetRightSibling(newPtr)
		nb.SetLeftSibling(target)
		nb.SetRightSibling(oldRight)
		if !oldRight.IsNull() {
			if orb, orRelease, oerr := t.loadBucket(oldRight, true); oerr == nil {
				orb.SetLeftSibling(newPtr)
				t.logBucketChange(u, oldRight, orb)
				orRelease()
			}
		}
	}

	t.logBucketChange(u, target, b)
	t.logBucketChange(u, newPtr, nb)
	release()
	nrelease()

	return newPtr, separator, nil
}

// insertIntoParent inserts a (left,right,separator) routing entry into
// path's innermost bucket. If that bucket is full, it is split (or, if
// it is the tree's root, rewritten in place) and the pending entry is
// retried against whichever half should now hold it — cascading as many
// levels up as necessary.
func (t *Tree) insertIntoParent(u *wal.Unit, path []Pointer, left, right Pointer, separator []byte) error {
	parent := path[len(path)-1]
	grandPath := path[:len(path)-1]

	b, release, err := t.loadBucket(parent, true)
	if err != nil {
		return err
	}

	idx, found := b.find(separator, func(a, s []byte) int { return t.rawKeyCompare(a, s) })
	if found {
		release()
		return fmt.Errorf("bonsai: duplicate separator key during split")
	}

	if err := b.AddInternalEntry(idx, left, right, separator); err == nil {
		t.logBucketChange(u, parent, b)
		release()
		return nil
	}
	release()

	if len(grandPath) == 0 {
		leftChild, rightChild, rootSep, err := t.splitRoot(u, parent)
		if err != nil {
			return err
		}
		chosen := leftChild
		if t.rawKeyCompare(separator, rootSep) >= 0 {
			chosen = rightChild
		}
		return t.insertIntoParent(u, []Pointer{parent, chosen}, left, right, separator)
	}

	newSibling, parentSep, err := t.performSplit(u, parent)
	if err != nil {
		return err
	}
	if err := t.insertIntoParent(u, grandPath, parent, newSibling, parentSep); err != nil {
		return err
	}

	chosen := parent
	if t.rawKeyCompare(separator, parentSep) >= 0 {
		chosen = newSibling
	}
	newPath := append(append([]Pointer(nil), grandPath...), chosen)
	return t.insertIntoParent(u, newPath, left, right, separator)
}

// splitRoot handles the case where the bucket needing to split is the
// tree's root. It moves the root's current entries into two freshly
// allocated buckets and rewrites the root's own slot, in place, as a new
// internal bucket with a single routing entry — the root Pointer itself
// is never reassigned. It returns the two new children and the separator
// between them, so a caller carrying its own pending insert can decide
// which child it now belongs under.
func (t *Tree) splitRoot(u *wal.Unit, root Pointer) (leftChild, rightChild Pointer, separator []byte, err error) {
	t.log.Info("root split", zap.Stringer("root", root))
	b, release, err := t.loadBucket(root, true)
	if err != nil {
		return Pointer{}, Pointer{}, nil, err
	}

	entries := b.AllEntries()
	if len(entries) < 2 {
		release()
		return Pointer{}, Pointer{}, nil, fmt.Errorf("bonsai: cannot split root with fewer than 2 entries")
	}
	isLeaf := b.IsLeaf()
	keySerID, valSerID := b.KeySerializerID(), b.ValueSerializerID()
	treeSize := b.TreeSize()

	mid := len(entries) / 2
	leftEntries, rightEntries := entries[:mid], entries[mid:]
	separator = append([]byte(nil), rightEntries[0].key...)
	release()

	leftPage, leftOffset, err := t.alloc.Allocate()
	if err != nil {
		return Pointer{}, Pointer{}, nil, newIoError("splitRoot", err)
	}
	leftChild = Pointer{PageIndex: leftPage, Offset: leftOffset}
	rightPage, rightOffset, err := t.alloc.Allocate()
	if err != nil {
		return Pointer{}, Pointer{}, nil, newIoError("splitRoot", err)
	}
	rightChild = Pointer{PageIndex: rightPage, Offset: rightOffset}

	lb, lrelease, err := t.loadBucket(leftChild, true)
	if err != nil {
		return Pointer{}, Pointer{}, nil, err
	}
	if err := lb.ResetAs(isLeaf, keySerID, valSerID, leftEntries); err != nil {
		lrelease()
		return Pointer{}, Pointer{}, nil, fmt.Errorf("bonsai: root split left half does not fit: %w", err)
	}

	rb, rrelease, err := t.loadBucket(rightChild, true)
	if err != nil {
		lrelease()
		return Pointer{}, Pointer{}, nil, err
	}
	if err := rb.ResetAs(isLeaf, keySerID, valSerID, rightEntries); err != nil {
		lrelease()
		rrelease()
		return Pointer{}, Pointer{}, nil, fmt.Errorf("bonsai: root split right half does not fit: %w", err)
	}

	if isLeaf {
		lb.SetRightSibling(rightChild)
		rb.SetLeftSibling(leftChild)
	}

	t.logBucketChange(u, leftChild, lb)
	t.logBucketChange(u, rightChild, rb)
	lrelease()
	rrelease()

	// Rewrite the root slot in place as a fresh internal bucket holding
	// one routing entry. Re-acquire its lock fresh rather than reuse the
	// earlier one, since allocation touched the cache in between.
	rootB, rootRelease, err := t.loadBucket(root, true)
	if err != nil {
		return Pointer{}, Pointer{}, nil, err
	}
	if err := rootB.ResetAs(false, keySerID, valSerID, []bucketEntry{{left: leftChild, right: rightChild, key: separator}}); err != nil {
		rootRelease()
		return Pointer{}, Pointer{}, nil, fmt.Errorf("bonsai: root rewrite does not fit: %w", err)
	}
	rootB.SetTreeSize(treeSize)
	t.logBucketChange(u, root, rootB)
	rootRelease()

	t.log.Debug("root split complete",
		zap.Stringer("left", leftChild), zap.Stringer("right", rightChild), zap.Uint64("treeSize", treeSize))
	return leftChild, rightChild, separator, nil
}
