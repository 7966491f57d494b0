package bonsai

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/intellect4all/bonsaitree/cache"
	"github.com/intellect4all/bonsaitree/codec"
	"github.com/intellect4all/bonsaitree/common/testutil"
	"github.com/intellect4all/bonsaitree/wal"
)

// setupTestTree creates a fresh tree rooted in its own container file and
// WAL, sharing the pattern the teacher's setupTestBTree helper follows.
func setupTestTree(t *testing.T, cfg Config) *Tree {
	t.Helper()
	dir := testutil.TempDir(t)

	pc, err := cache.New(dir, cache.Options{})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	fileID, err := pc.OpenFile("test.bonsai")
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	walLog, err := wal.Open(filepath.Join(dir, "test.wal"))
	if err != nil {
		t.Fatalf("wal.Open failed: %v", err)
	}
	t.Cleanup(func() { walLog.Close() })
	mgr := wal.NewManager(walLog)

	cfg.Cache = pc
	cfg.FileID = fileID
	cfg.WAL = mgr

	tr, err := Create("test-tree", cfg)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func rawKey(s string) codec.Key { return codec.Simple(codec.BytesPart([]byte(s))) }

func TestPutAndGetRoundTrip(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})

	if err := tr.Put(nil, rawKey("a"), []byte("1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, err := tr.Get(rawKey("a"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(v.([]byte)) != "1" {
		t.Fatalf("expected value 1, got %v", v)
	}
}

func TestGetMissingKeyReturnsErrKeyNotFound(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	if _, err := tr.Get(rawKey("missing")); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestPutOverwriteDoesNotGrowSize(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})

	if err := tr.Put(nil, rawKey("a"), []byte("1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := tr.Put(nil, rawKey("a"), []byte("2")); err != nil {
		t.Fatalf("overwrite Put failed: %v", err)
	}

	size, err := tr.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 1 {
		t.Fatalf("expected size 1 after overwrite, got %d", size)
	}
	v, err := tr.Get(rawKey("a"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(v.([]byte)) != "2" {
		t.Fatalf("expected overwritten value 2, got %v", v)
	}
}

func TestPutEmptyKeyErrors(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	if err := tr.Put(nil, codec.Key{}, []byte("x")); err != ErrKeyEmpty {
		t.Fatalf("expected ErrKeyEmpty, got %v", err)
	}
}

func TestRemoveDeletesKeyAndReturnsOldValue(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	if err := tr.Put(nil, rawKey("a"), []byte("1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	v, err := tr.Remove(nil, rawKey("a"))
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if string(v.([]byte)) != "1" {
		t.Fatalf("expected removed value 1, got %v", v)
	}
	if _, err := tr.Get(rawKey("a")); err != ErrKeyNotFound {
		t.Fatalf("expected key to be gone after Remove, got %v", err)
	}
}

func TestRemoveMissingKeyErrors(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	if _, err := tr.Remove(nil, rawKey("missing")); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestSizeTracksInsertsAndDeletes(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})

	for i := 0; i < 5; i++ {
		if err := tr.Put(nil, rawKey(fmt.Sprintf("k%d", i)), []byte("v")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	size, err := tr.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 5 {
		t.Fatalf("expected size 5, got %d", size)
	}

	if _, err := tr.Remove(nil, rawKey("k0")); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	size, err = tr.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != 4 {
		t.Fatalf("expected size 4 after remove, got %d", size)
	}
}

func TestStatsReportsRootShape(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	if err := tr.Put(nil, rawKey("a"), []byte("1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	st, err := tr.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.Size != 1 || st.EntryCount != 1 || !st.RootIsLeaf {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestCloseRejectsFurtherOperations(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	if err := tr.Put(nil, rawKey("a"), []byte("1")); err != ErrTreeClosed {
		t.Fatalf("expected ErrTreeClosed after Close, got %v", err)
	}
}

func TestManyInsertsTriggerSplitsAndStayReadable(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})

	const n = 400
	for i := 0; i < n; i++ {
		key := rawKey(fmt.Sprintf("key-%04d", i))
		if err := tr.Put(nil, key, []byte(fmt.Sprintf("val-%d", i))); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}

	size, err := tr.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if size != n {
		t.Fatalf("expected size %d, got %d", n, size)
	}

	for i := 0; i < n; i++ {
		key := rawKey(fmt.Sprintf("key-%04d", i))
		v, err := tr.Get(key)
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", i, err)
		}
		want := fmt.Sprintf("val-%d", i)
		if string(v.([]byte)) != want {
			t.Fatalf("Get(%d) = %q, want %q", i, v, want)
		}
	}

	st, err := tr.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.RootIsLeaf {
		t.Fatalf("expected root to have split into an internal bucket after %d inserts", n)
	}
}

func TestRootPointerStaysStableAcrossSplits(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	original := tr.Root()

	for i := 0; i < 400; i++ {
		key := rawKey(fmt.Sprintf("key-%04d", i))
		if err := tr.Put(nil, key, []byte("v")); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}

	if tr.Root() != original {
		t.Fatalf("root pointer must never move, even after a root split: got %v, want %v", tr.Root(), original)
	}
}

func TestFirstKeyBacktracksPastEmptiedLeftmostLeaves(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})

	const n = 400
	for i := 0; i < n; i++ {
		key := rawKey(fmt.Sprintf("key-%04d", i))
		if err := tr.Put(nil, key, []byte("v")); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}

	// Delete every key but the last 50: this empties the leftmost leaf
	// (and likely several more after it) without merging or reclaiming
	// those now-empty buckets, since delete never rebalances.
	const kept = 350
	for i := 0; i < kept; i++ {
		key := rawKey(fmt.Sprintf("key-%04d", i))
		if _, err := tr.Remove(nil, key); err != nil {
			t.Fatalf("Remove(%d) failed: %v", i, err)
		}
	}

	first, err := tr.FirstKey()
	if err != nil {
		t.Fatalf("FirstKey failed after emptying the leftmost leaves: %v", err)
	}
	want := rawKey(fmt.Sprintf("key-%04d", kept))
	if codec.Compare(first, want) != 0 {
		t.Fatalf("FirstKey() = %+v, want %+v", first, want)
	}

	last, err := tr.LastKey()
	if err != nil {
		t.Fatalf("LastKey failed: %v", err)
	}
	wantLast := rawKey(fmt.Sprintf("key-%04d", n-1))
	if codec.Compare(last, wantLast) != 0 {
		t.Fatalf("LastKey() = %+v, want %+v", last, wantLast)
	}
}

func TestRangeBetweenVisitsInAscendingOrder(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	for i := 0; i < 20; i++ {
		if err := tr.Put(nil, rawKey(fmt.Sprintf("k%02d", i)), []byte(fmt.Sprintf("%d", i))); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}

	var got []string
	err := tr.RangeBetween(rawKey("k05"), true, rawKey("k10"), true, func(p Pair) bool {
		got = append(got, string(p.Value.([]byte)))
		return true
	})
	if err != nil {
		t.Fatalf("RangeBetween failed: %v", err)
	}
	want := []string{"5", "6", "7", "8", "9", "10"}
	if len(got) != len(want) {
		t.Fatalf("expected %d results, got %d: %v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("result %d: got %q, want %q", i, got[i], w)
		}
	}
}

func TestRangeBetweenExclusiveBounds(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	for i := 0; i < 5; i++ {
		if err := tr.Put(nil, rawKey(fmt.Sprintf("k%d", i)), []byte(fmt.Sprintf("%d", i))); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}

	var got []string
	err := tr.RangeBetween(rawKey("k1"), false, rawKey("k3"), false, func(p Pair) bool {
		got = append(got, string(p.Value.([]byte)))
		return true
	})
	if err != nil {
		t.Fatalf("RangeBetween failed: %v", err)
	}
	if len(got) != 1 || got[0] != "2" {
		t.Fatalf("expected only k2's value with exclusive bounds, got %v", got)
	}
}

func TestRangeMajorStopsEarlyWhenListenerReturnsFalse(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	for i := 0; i < 10; i++ {
		if err := tr.Put(nil, rawKey(fmt.Sprintf("k%d", i)), []byte("v")); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}

	count := 0
	err := tr.RangeMajor(rawKey("k0"), true, func(p Pair) bool {
		count++
		return count < 3
	})
	if err != nil {
		t.Fatalf("RangeMajor failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected the scan to stop once the listener returns false, visited %d", count)
	}
}

func TestFirstKeyAndLastKey(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	for _, k := range []string{"m", "a", "z", "c"} {
		if err := tr.Put(nil, rawKey(k), []byte("v")); err != nil {
			t.Fatalf("Put(%s) failed: %v", k, err)
		}
	}

	first, err := tr.FirstKey()
	if err != nil {
		t.Fatalf("FirstKey failed: %v", err)
	}
	if string(first.Parts[0].Bytes) != "a" {
		t.Fatalf("expected FirstKey a, got %s", first.Parts[0].Bytes)
	}

	last, err := tr.LastKey()
	if err != nil {
		t.Fatalf("LastKey failed: %v", err)
	}
	if string(last.Parts[0].Bytes) != "z" {
		t.Fatalf("expected LastKey z, got %s", last.Parts[0].Bytes)
	}
}

func TestFirstKeyOnEmptyTreeErrors(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	if _, err := tr.FirstKey(); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound on an empty tree, got %v", err)
	}
}

func TestConcurrentGetMatchesGet(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	for i := 0; i < 200; i++ {
		key := rawKey(fmt.Sprintf("key-%04d", i))
		if err := tr.Put(nil, key, []byte(fmt.Sprintf("val-%d", i))); err != nil {
			t.Fatalf("Put(%d) failed: %v", i, err)
		}
	}

	for i := 0; i < 200; i += 17 {
		key := rawKey(fmt.Sprintf("key-%04d", i))
		v, err := tr.ConcurrentGet(key)
		if err != nil {
			t.Fatalf("ConcurrentGet(%d) failed: %v", i, err)
		}
		want := fmt.Sprintf("val-%d", i)
		if string(v.([]byte)) != want {
			t.Fatalf("ConcurrentGet(%d) = %q, want %q", i, v, want)
		}
	}
}

func TestMultipleTreesShareOneContainerFile(t *testing.T) {
	dir := testutil.TempDir(t)
	pc, err := cache.New(dir, cache.Options{})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	fileID, err := pc.OpenFile("shared.bonsai")
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	walLog, err := wal.Open(filepath.Join(dir, "shared.wal"))
	if err != nil {
		t.Fatalf("wal.Open failed: %v", err)
	}
	defer walLog.Close()
	mgr := wal.NewManager(walLog)

	treeA, err := Create("a", Config{Cache: pc, FileID: fileID, WAL: mgr, DurableInNonTxMode: true})
	if err != nil {
		t.Fatalf("Create(a) failed: %v", err)
	}
	treeB, err := Create("b", Config{Cache: pc, FileID: fileID, WAL: mgr, DurableInNonTxMode: true})
	if err != nil {
		t.Fatalf("Create(b) failed: %v", err)
	}

	if treeA.Root() == treeB.Root() {
		t.Fatalf("two trees sharing one container must get distinct root pointers")
	}

	if err := treeA.Put(nil, rawKey("x"), []byte("from-a")); err != nil {
		t.Fatalf("Put(a) failed: %v", err)
	}
	if err := treeB.Put(nil, rawKey("x"), []byte("from-b")); err != nil {
		t.Fatalf("Put(b) failed: %v", err)
	}

	va, err := treeA.Get(rawKey("x"))
	if err != nil {
		t.Fatalf("Get(a) failed: %v", err)
	}
	vb, err := treeB.Get(rawKey("x"))
	if err != nil {
		t.Fatalf("Get(b) failed: %v", err)
	}
	if string(va.([]byte)) != "from-a" || string(vb.([]byte)) != "from-b" {
		t.Fatalf("expected independent values per tree, got a=%v b=%v", va, vb)
	}
}

func TestLoadReopensExistingTree(t *testing.T) {
	dir := testutil.TempDir(t)
	pc, err := cache.New(dir, cache.Options{})
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	fileID, err := pc.OpenFile("reload.bonsai")
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	walLog, err := wal.Open(filepath.Join(dir, "reload.wal"))
	if err != nil {
		t.Fatalf("wal.Open failed: %v", err)
	}
	defer walLog.Close()
	mgr := wal.NewManager(walLog)

	tr, err := Create("reload", Config{Cache: pc, FileID: fileID, WAL: mgr, DurableInNonTxMode: true})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := tr.Put(nil, rawKey("a"), []byte("1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	root := tr.Root()

	reloaded, err := Load("reload", root, Config{Cache: pc, FileID: fileID, WAL: mgr, DurableInNonTxMode: true})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	v, err := reloaded.Get(rawKey("a"))
	if err != nil {
		t.Fatalf("Get after Load failed: %v", err)
	}
	if string(v.([]byte)) != "1" {
		t.Fatalf("expected value 1 after reload, got %v", v)
	}
}

func TestExplicitAtomicUnitSpansMultipleOperations(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})

	u, owns, err := tr.beginUnit(nil)
	if err != nil {
		t.Fatalf("beginUnit failed: %v", err)
	}
	if err := tr.Put(u, rawKey("a"), []byte("1")); err != nil {
		t.Fatalf("Put(a) failed: %v", err)
	}
	if err := tr.Put(u, rawKey("b"), []byte("2")); err != nil {
		t.Fatalf("Put(b) failed: %v", err)
	}
	if err := tr.endUnit(u, owns, false); err != nil {
		t.Fatalf("endUnit failed: %v", err)
	}

	for _, kv := range []struct{ k, v string }{{"a", "1"}, {"b", "2"}} {
		got, err := tr.Get(rawKey(kv.k))
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", kv.k, err)
		}
		if string(got.([]byte)) != kv.v {
			t.Fatalf("Get(%s) = %v, want %v", kv.k, got, kv.v)
		}
	}
}

func TestFlushSucceedsOnOpenTree(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	if err := tr.Put(nil, rawKey("a"), []byte("1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := tr.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	// The tree must still be usable after a flush.
	if _, err := tr.Get(rawKey("a")); err != nil {
		t.Fatalf("Get after Flush failed: %v", err)
	}
}

func TestFlushOnClosedTreeErrors(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tr.Flush(); err == nil {
		t.Fatalf("expected Flush on a closed tree to error")
	}
}

func TestClearResetsTreeToEmpty(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	for _, k := range []string{"a", "b", "c"} {
		if err := tr.Put(nil, rawKey(k), []byte(k)); err != nil {
			t.Fatalf("Put(%s) failed: %v", k, err)
		}
	}
	if sz, err := tr.Size(); err != nil || sz != 3 {
		t.Fatalf("expected size 3 before Clear, got %d, err %v", sz, err)
	}

	if err := tr.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if sz, err := tr.Size(); err != nil || sz != 0 {
		t.Fatalf("expected size 0 after Clear, got %d, err %v", sz, err)
	}
	if _, err := tr.Get(rawKey("a")); err != ErrKeyNotFound {
		t.Fatalf("expected ErrKeyNotFound after Clear, got %v", err)
	}

	// The tree must remain writable after Clear: its root is still
	// addressable at a freshly allocated slot.
	if err := tr.Put(nil, rawKey("d"), []byte("d")); err != nil {
		t.Fatalf("Put after Clear failed: %v", err)
	}
	v, err := tr.Get(rawKey("d"))
	if err != nil {
		t.Fatalf("Get after Clear+Put failed: %v", err)
	}
	if string(v.([]byte)) != "d" {
		t.Fatalf("expected value d, got %v", v)
	}
}

func TestDeleteRemovesContainerAndClosesTree(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	if err := tr.Put(nil, rawKey("a"), []byte("1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := tr.Delete(); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := tr.Get(rawKey("a")); err != ErrTreeClosed {
		t.Fatalf("expected ErrTreeClosed after Delete, got %v", err)
	}
	// Delete must be idempotent so the test's deferred Close cleanup
	// (already guarded by t.closed) doesn't need special-casing.
	if err := tr.Delete(); err != nil {
		t.Fatalf("expected a second Delete to be a harmless no-op, got %v", err)
	}
}

func TestPutRejectsEntryLargerThanABucket(t *testing.T) {
	tr := setupTestTree(t, Config{DurableInNonTxMode: true})
	huge := make([]byte, cache.BucketSize)
	if err := tr.Put(nil, rawKey("a"), huge); err == nil {
		t.Fatalf("expected Put to reject a value larger than a single bucket")
	}
}
