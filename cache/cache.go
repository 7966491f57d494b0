package cache

import (
	"container/list"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/intellect4all/bonsaitree/internal/telemetry"
)

const (
	metadataMagic   = uint32(0x424f4e53) // "BONS"
	metadataPageIdx = 0
	// a container's page 0 holds: magic(4) + numPages(8)
	metadataLayoutSize = 12
)

type pageKey struct {
	fileID    uint32
	pageIndex uint64
}

type openFile struct {
	id       uint32
	name     string
	file     *os.File
	numPages uint64
}

// PageCache is the disk-cache collaborator bonsai trees are built against
// (spec §6's "disk cache" — openFile/allocateNewPage/load/release/
// truncateFile/deleteFile/closeFile/flushBuffer). One PageCache can host
// several container files at once, and several independently-rooted
// bonsai trees typically share a single container (spec §1).
type PageCache struct {
	mu        sync.Mutex
	dir       string
	pageSize  int
	cacheSize int

	files      map[uint32]*openFile
	nextFileID uint32

	pages  map[pageKey]*Entry
	lru    *list.List
	lruPos map[pageKey]*list.Element

	log *zap.Logger

	stats struct {
		pageReads  int64
		pageWrites int64
		cacheHits  int64
	}
}

// Options configures a PageCache.
type Options struct {
	PageSize  int // defaults to DefaultPageSize
	CacheSize int // max resident pages across all open files; defaults to 4096
}

// New creates a PageCache rooted at dir (container files are created
// inside it by name).
func New(dir string, opts Options) (*PageCache, error) {
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = 4096
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: mkdir %s: %w", dir, err)
	}
	return &PageCache{
		dir:       dir,
		pageSize:  opts.PageSize,
		cacheSize: opts.CacheSize,
		files:     make(map[uint32]*openFile),
		pages:     make(map[pageKey]*Entry),
		lru:       list.New(),
		lruPos:    make(map[pageKey]*list.Element),
		log:       telemetry.Component("cache.pages").With(zap.String("dir", dir)),
	}, nil
}

// PageSize returns the fixed page size this cache was opened with.
func (c *PageCache) PageSize() int { return c.pageSize }

// OpenFile opens (creating if absent) the container file named name and
// returns a handle other calls address it by.
func (c *PageCache) OpenFile(name string) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, f := range c.files {
		if f.name == name {
			return f.id, nil
		}
	}

	path := filepath.Join(c.dir, name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, fmt.Errorf("cache: open %s: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, err
	}

	c.nextFileID++
	id := c.nextFileID
	of := &openFile{id: id, name: name, file: f}

	if stat.Size() == 0 {
		of.numPages = 1 // page 0 reserved for container metadata
		if err := c.writeMetadataLocked(of); err != nil {
			f.Close()
			return 0, err
		}
	} else {
		meta := make([]byte, metadataLayoutSize)
		if _, err := f.ReadAt(meta, 0); err != nil {
			f.Close()
			return 0, fmt.Errorf("cache: read metadata: %w", err)
		}
		if binary.BigEndian.Uint32(meta[0:4]) != metadataMagic {
			f.Close()
			return 0, fmt.Errorf("cache: %s is not a bonsai container file", name)
		}
		of.numPages = binary.BigEndian.Uint64(meta[4:12])
	}

	c.files[id] = of
	c.log.Info("opened container", zap.String("name", name), zap.Uint32("fileID", id), zap.Uint64("numPages", of.numPages))
	return id, nil
}

func (c *PageCache) writeMetadataLocked(of *openFile) error {
	buf := make([]byte, metadataLayoutSize)
	binary.BigEndian.PutUint32(buf[0:4], metadataMagic)
	binary.BigEndian.PutUint64(buf[4:12], of.numPages)
	_, err := of.file.WriteAt(buf, 0)
	return err
}

// NumPages reports how many pages fileID's container currently has
// (including the reserved metadata page 0).
func (c *PageCache) NumPages(fileID uint32) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	of, ok := c.files[fileID]
	if !ok {
		return 0, fmt.Errorf("cache: unknown file id %d", fileID)
	}
	return of.numPages, nil
}

// AllocateNewPage grows fileID's container by one page and returns it,
// zeroed and pinned in cache as dirty.
func (c *PageCache) AllocateNewPage(fileID uint32) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	of, ok := c.files[fileID]
	if !ok {
		return nil, fmt.Errorf("cache: unknown file id %d", fileID)
	}

	idx := of.numPages
	of.numPages++
	if err := c.writeMetadataLocked(of); err != nil {
		return nil, err
	}

	e := newEntry(fileID, idx, c.pageSize)
	e.dirty = true
	c.addToCacheLocked(pageKey{fileID, idx}, e)
	return e, nil
}

// Load returns the page at (fileID, pageIndex), from cache if resident or
// from disk otherwise. checkPinned mirrors spec §6's signature; this
// implementation never refuses a load (it has no notion of an
// unevictable external pin beyond normal cache residency), but accepts
// the parameter so callers can express intent.
func (c *PageCache) Load(fileID uint32, pageIndex uint64, checkPinned bool) (*Entry, error) {
	_ = checkPinned
	c.mu.Lock()
	defer c.mu.Unlock()

	key := pageKey{fileID, pageIndex}
	if e, ok := c.pages[key]; ok {
		if el, ok := c.lruPos[key]; ok {
			c.lru.MoveToFront(el)
		}
		c.stats.cacheHits++
		return e, nil
	}

	of, ok := c.files[fileID]
	if !ok {
		return nil, fmt.Errorf("cache: unknown file id %d", fileID)
	}
	if pageIndex >= of.numPages {
		return nil, fmt.Errorf("cache: page %d out of bounds (numPages=%d)", pageIndex, of.numPages)
	}

	buf := make([]byte, c.pageSize)
	if _, err := of.file.ReadAt(buf, int64(pageIndex)*int64(c.pageSize)); err != nil {
		return nil, fmt.Errorf("cache: read page %d: %w", pageIndex, err)
	}
	c.stats.pageReads++

	e := newEntry(fileID, pageIndex, c.pageSize)
	copy(e.buf, buf)
	c.addToCacheLocked(key, e)
	return e, nil
}

func (c *PageCache) addToCacheLocked(key pageKey, e *Entry) {
	if c.lru.Len() >= c.cacheSize {
		c.evictOneLocked()
	}
	c.pages[key] = e
	c.lruPos[key] = c.lru.PushFront(key)
}

func (c *PageCache) evictOneLocked() {
	el := c.lru.Back()
	if el == nil {
		return
	}
	key := el.Value.(pageKey)
	if e, ok := c.pages[key]; ok && e.dirty {
		if err := c.flushLocked(e); err != nil {
			c.log.Error("eviction flush failed", zap.Uint32("fileID", key.fileID), zap.Uint64("pageIndex", key.pageIndex), zap.Error(err))
		}
	}
	delete(c.pages, key)
	delete(c.lruPos, key)
	c.lru.Remove(el)
}

func (c *PageCache) flushLocked(e *Entry) error {
	of, ok := c.files[e.fileID]
	if !ok {
		return fmt.Errorf("cache: unknown file id %d", e.fileID)
	}
	if _, err := of.file.WriteAt(e.buf, int64(e.pageIndex)*int64(c.pageSize)); err != nil {
		return fmt.Errorf("cache: write page %d: %w", e.pageIndex, err)
	}
	c.stats.pageWrites++
	e.dirty = false
	return nil
}

// Release returns a page to the cache's care after the caller is done
// with it. This cache has no separate pin-count (every resident page may
// be evicted once it falls off the LRU), so Release is a no-op kept for
// interface symmetry with spec §6.
func (c *PageCache) Release(e *Entry) {}

// FlushBuffer writes every dirty page, across every open file, to disk.
func (c *PageCache) FlushBuffer() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.pages {
		if e.dirty {
			if err := c.flushLocked(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// TruncateFile discards every page of fileID's container except the
// metadata page, per Tree.Clear (spec §3's lifecycle, §9's open issue:
// callers needing the root to remain addressable must reallocate it
// explicitly afterward — this cache does not promise page-index reuse).
func (c *PageCache) TruncateFile(fileID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	of, ok := c.files[fileID]
	if !ok {
		return fmt.Errorf("cache: unknown file id %d", fileID)
	}
	if err := of.file.Truncate(int64(c.pageSize)); err != nil {
		return fmt.Errorf("cache: truncate: %w", err)
	}
	of.numPages = 1
	if err := c.writeMetadataLocked(of); err != nil {
		return err
	}
	for key := range c.pages {
		if key.fileID == fileID {
			delete(c.pages, key)
			if el, ok := c.lruPos[key]; ok {
				c.lru.Remove(el)
				delete(c.lruPos, key)
			}
		}
	}
	return nil
}

// DeleteFile closes and removes fileID's container file from disk.
func (c *PageCache) DeleteFile(fileID uint32) error {
	c.mu.Lock()
	of, ok := c.files[fileID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("cache: unknown file id %d", fileID)
	}
	path := of.file.Name()
	of.file.Close()
	delete(c.files, fileID)
	for key := range c.pages {
		if key.fileID == fileID {
			delete(c.pages, key)
			if el, ok := c.lruPos[key]; ok {
				c.lru.Remove(el)
				delete(c.lruPos, key)
			}
		}
	}
	c.mu.Unlock()
	c.log.Info("deleted container", zap.Uint32("fileID", fileID))
	return os.Remove(path)
}

// CloseFile flushes and closes fileID's container, leaving it on disk.
func (c *PageCache) CloseFile(fileID uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	of, ok := c.files[fileID]
	if !ok {
		return fmt.Errorf("cache: unknown file id %d", fileID)
	}
	for key, e := range c.pages {
		if key.fileID == fileID && e.dirty {
			if err := c.flushLocked(e); err != nil {
				return err
			}
		}
	}
	if err := of.file.Sync(); err != nil {
		return err
	}
	err := of.file.Close()
	delete(c.files, fileID)
	return err
}
