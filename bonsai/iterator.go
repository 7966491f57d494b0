package bonsai

import (
	"github.com/intellect4all/bonsaitree/codec"
)

// Pair is one decoded (key, value) result from a range scan.
type Pair struct {
	Key   codec.Key
	Value any
}

// Listener is called once per matching entry during a range scan, in
// ascending key order (spec §9's listener-callback design note, chosen
// over building an intermediate slice so a caller can stop early without
// paying for entries it will never look at). Returning false stops the
// scan.
type Listener func(Pair) bool

func (t *Tree) leftmostLeaf() (Pointer, error) {
	cur := t.root
	for {
		b, release, err := t.loadBucket(cur, false)
		if err != nil {
			return Pointer{}, err
		}
		if b.IsLeaf() {
			release()
			return cur, nil
		}
		if b.EntryCount() == 0 {
			release()
			return cur, nil
		}
		next := b.entryAt(0).left
		release()
		cur = next
	}
}

func (t *Tree) rightmostLeaf() (Pointer, error) {
	cur := t.root
	for {
		b, release, err := t.loadBucket(cur, false)
		if err != nil {
			return Pointer{}, err
		}
		if b.IsLeaf() {
			release()
			return cur, nil
		}
		n := b.EntryCount()
		if n == 0 {
			release()
			return cur, nil
		}
		next := b.entryAt(n - 1).right
		release()
		cur = next
	}
}

// scan walks the leaf chain starting at from (inclusive of fromIdx),
// decoding each entry and calling visit until a stop condition: visit
// returns false, the upper bound (if any) is exceeded, or the chain ends
// (spec §4.7 — the doubly-linked sibling list this walk rides is this
// repository's own addition, replacing the teacher's single-direction
// link so a descending walk is equally possible; this scan only walks
// forward, since every exported range operation here is ascending).
func (t *Tree) scan(from Pointer, fromIdx int, upper *codec.Key, upperInclusive bool, visit Listener) error {
	cur := from
	idx := fromIdx
	for !cur.IsNull() {
		b, release, err := t.loadBucket(cur, false)
		if err != nil {
			return err
		}
		n := b.EntryCount()
		for ; idx < n; idx++ {
			e := b.entryAt(idx)
			key, err := t.keySer.DecodeKey(e.key)
			if err != nil {
				release()
				return err
			}
			if upper != nil {
				c := codec.Compare(key, *upper)
				if c > 0 || (c == 0 && !upperInclusive) {
					release()
					return nil
				}
			}
			val, err := t.valSer.DecodeValue(e.value)
			if err != nil {
				release()
				return err
			}
			if !visit(Pair{Key: key, Value: val}) {
				release()
				return nil
			}
		}
		next := b.RightSibling()
		release()
		cur = next
		idx = 0
	}
	return nil
}

// RangeMajor visits every entry with a key greater than (or, if
// inclusive, greater than or equal to) from, in ascending order.
func (t *Tree) RangeMajor(from codec.Key, inclusive bool, visit Listener) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrTreeClosed
	}

	encFrom, err := t.keySer.EncodeKey(from)
	if err != nil {
		return newTreeError(t.name, nil, err)
	}
	leaf, _, err := t.descendRaw(encFrom)
	if err != nil {
		return newTreeError(t.name, nil, newIoError("RangeMajor", err))
	}
	b, release, err := t.loadBucket(leaf, false)
	if err != nil {
		return newTreeError(t.name, nil, newIoError("RangeMajor", err))
	}
	idx, found := b.find(encFrom, func(a, s []byte) int { return t.rawKeyCompare(a, s) })
	if found && !inclusive {
		idx++
	}
	release()

	return t.scan(leaf, idx, nil, false, visit)
}

// RangeMinor visits every entry with a key less than (or, if inclusive,
// less than or equal to) to, in ascending order (spec §4.3/§4.7's
// "loadEntriesMinor" — ascending here rather than the descending order
// OrientDB's bonsai returns it in, since this repository's scan only
// walks the leaf chain forward; callers wanting descending order reverse
// the collected slice themselves, e.g. via GetValuesMinor).
func (t *Tree) RangeMinor(to codec.Key, inclusive bool, visit Listener) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrTreeClosed
	}

	leaf, err := t.leftmostLeaf()
	if err != nil {
		return newTreeError(t.name, nil, newIoError("RangeMinor", err))
	}
	return t.scan(leaf, 0, &to, inclusive, visit)
}

// RangeBetween visits every entry whose key falls within [from,to] (or
// with either bound made exclusive), in ascending order.
func (t *Tree) RangeBetween(from codec.Key, fromInclusive bool, to codec.Key, toInclusive bool, visit Listener) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrTreeClosed
	}

	encFrom, err := t.keySer.EncodeKey(from)
	if err != nil {
		return newTreeError(t.name, nil, err)
	}
	leaf, _, err := t.descendRaw(encFrom)
	if err != nil {
		return newTreeError(t.name, nil, newIoError("RangeBetween", err))
	}
	b, release, err := t.loadBucket(leaf, false)
	if err != nil {
		return newTreeError(t.name, nil, newIoError("RangeBetween", err))
	}
	idx, found := b.find(encFrom, func(a, s []byte) int { return t.rawKeyCompare(a, s) })
	if found && !fromInclusive {
		idx++
	}
	release()

	return t.scan(leaf, idx, &to, toInclusive, visit)
}

// GetValuesMajor collects RangeMajor's results into a slice, stopping
// early once maxResults pairs are gathered (0 means unlimited).
func (t *Tree) GetValuesMajor(from codec.Key, inclusive bool, maxResults int) ([]Pair, error) {
	var out []Pair
	err := t.RangeMajor(from, inclusive, func(p Pair) bool {
		out = append(out, p)
		return maxResults == 0 || len(out) < maxResults
	})
	return out, err
}

// GetValuesMinor collects RangeMinor's results into a slice.
func (t *Tree) GetValuesMinor(to codec.Key, inclusive bool, maxResults int) ([]Pair, error) {
	var out []Pair
	err := t.RangeMinor(to, inclusive, func(p Pair) bool {
		out = append(out, p)
		return maxResults == 0 || len(out) < maxResults
	})
	return out, err
}

// GetValuesBetween collects RangeBetween's results into a slice.
func (t *Tree) GetValuesBetween(from codec.Key, fromInclusive bool, to codec.Key, toInclusive bool, maxResults int) ([]Pair, error) {
	var out []Pair
	err := t.RangeBetween(from, fromInclusive, to, toInclusive, func(p Pair) bool {
		out = append(out, p)
		return maxResults == 0 || len(out) < maxResults
	})
	return out, err
}

// FirstKey returns the smallest key in the tree. Per spec §4.7, an empty
// boundary leaf backtracks along the sibling chain until a non-empty leaf
// is found; only a completely empty tree reports ErrKeyNotFound.
func (t *Tree) FirstKey() (codec.Key, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return codec.Key{}, ErrTreeClosed
	}
	cur, err := t.leftmostLeaf()
	if err != nil {
		return codec.Key{}, newTreeError(t.name, nil, newIoError("FirstKey", err))
	}
	for !cur.IsNull() {
		b, release, err := t.loadBucket(cur, false)
		if err != nil {
			return codec.Key{}, newTreeError(t.name, nil, newIoError("FirstKey", err))
		}
		if b.EntryCount() > 0 {
			k, err := t.keySer.DecodeKey(b.entryAt(0).key)
			release()
			return k, err
		}
		next := b.RightSibling()
		release()
		cur = next
	}
	return codec.Key{}, ErrKeyNotFound
}

// LastKey returns the greatest key in the tree. Symmetric to FirstKey: an
// empty boundary leaf backtracks via LeftSibling until a non-empty leaf is
// found (spec §4.7).
func (t *Tree) LastKey() (codec.Key, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return codec.Key{}, ErrTreeClosed
	}
	cur, err := t.rightmostLeaf()
	if err != nil {
		return codec.Key{}, newTreeError(t.name, nil, newIoError("LastKey", err))
	}
	for !cur.IsNull() {
		b, release, err := t.loadBucket(cur, false)
		if err != nil {
			return codec.Key{}, newTreeError(t.name, nil, newIoError("LastKey", err))
		}
		n := b.EntryCount()
		if n > 0 {
			k, err := t.keySer.DecodeKey(b.entryAt(n - 1).key)
			release()
			return k, err
		}
		prev := b.LeftSibling()
		release()
		cur = prev
	}
	return codec.Key{}, ErrKeyNotFound
}
