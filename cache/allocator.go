package cache

import "fmt"

// BucketSize is the fixed size of a bucket slot: one quarter of a page.
// A page therefore holds four slots, of which BucketAllocator uses three
// (slot 0 is left unused), which is how one container file packs many
// small trees together
// (spec §1, §2: BucketPointer addresses a page plus a byte offset within
// it, not a whole page).
const BucketSize = DefaultPageSize / 4

// slotsPerPage is how many BucketSize slots fit in one page.
const slotsPerPage = DefaultPageSize / BucketSize

// RootSlotOffset is the conventional byte offset, within a freshly
// allocated page, at which a new tree's root bucket is placed. Spec §4.5
// and §9 name this constant literally (16384); here it is derived from
// BucketSize instead. BucketSize itself comes from DefaultPageSize, so the
// slot geometry assumes DefaultPageSize pages; it does not follow a
// PageCache opened with a different Options.PageSize.
const RootSlotOffset = BucketSize

// BucketAllocator hands out bucket-slot addresses within a PageCache's
// pages. Slot 0 of every page is left unused (it mirrors the page header
// region teacher pagers reserve before their first cell), slot 1
// (offset == RootSlotOffset) is where Tree.Create conventionally plants a
// new root, and the remaining slots are a bump-allocated pool any tree's
// splitBucket draws from.
type BucketAllocator struct {
	cache  *PageCache
	fileID uint32

	// next is the next free slot index, counted across the whole file as
	// if every page contributed slotsPerPage-1 usable slots (slot 0 of
	// each page skipped).
	next uint64
}

// NewBucketAllocator builds an allocator over fileID's existing pages:
// it resumes after the first usedSlots slots, as reported by the caller;
// it does not inspect the file itself.
func NewBucketAllocator(c *PageCache, fileID uint32, usedSlots uint64) *BucketAllocator {
	return &BucketAllocator{cache: c, fileID: fileID, next: usedSlots}
}

// slotToAddress maps a linear slot counter to a (pageIndex, byteOffset)
// pair, skipping slot 0 of every page.
func slotToAddress(slot uint64) (pageIndex uint64, offset uint32) {
	usable := uint64(slotsPerPage - 1)
	page := slot / usable
	within := slot % usable
	return page, uint32((within + 1) * BucketSize)
}

// AllocateRoot reserves a brand new page and returns the conventional
// root slot within it (offset RootSlotOffset), for Tree.Create.
func (a *BucketAllocator) AllocateRoot() (pageIndex uint64, offset uint32, err error) {
	e, err := a.cache.AllocateNewPage(a.fileID)
	if err != nil {
		return 0, 0, fmt.Errorf("cache: allocate root page: %w", err)
	}
	// Hand back slot 1 as the root and continue the bump pool right after
	// it, with slots 2..slotsPerPage-1 of this same page.
	a.next = e.PageIndex()*uint64(slotsPerPage-1) + 1
	return e.PageIndex(), RootSlotOffset, nil
}

// Allocate hands out the next free bucket slot, growing the file with a
// fresh page whenever the current one is exhausted.
func (a *BucketAllocator) Allocate() (pageIndex uint64, offset uint32, err error) {
	usable := uint64(slotsPerPage - 1)
	page := a.next / usable
	within := a.next % usable

	numPages, err := a.cache.NumPages(a.fileID)
	if err != nil {
		return 0, 0, err
	}
	if page >= numPages {
		if _, err := a.cache.AllocateNewPage(a.fileID); err != nil {
			return 0, 0, fmt.Errorf("cache: allocate page for slot: %w", err)
		}
	}

	a.next++
	return page, uint32((within + 1) * BucketSize), nil
}
