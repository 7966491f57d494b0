package bonsai

import "fmt"

// Pointer addresses a bucket: a page index plus the byte offset of the
// bucket's slot within that page (spec §3's BucketPointer). It is an
// immutable value; every bonsai operation that needs to describe "where a
// bucket lives" passes one of these around rather than a bare page index.
type Pointer struct {
	PageIndex uint64
	Offset    uint32
}

// Null is the sentinel "no bucket" pointer (spec §3: PageIndex -1,
// Offset 0). PageIndex is unsigned here, so Null uses the max uint64
// rather than -1; IsNull still checks by identity with Null, never by
// comparing PageIndex to a magic number elsewhere.
var Null = Pointer{PageIndex: ^uint64(0), Offset: 0}

// IsNull reports whether p is the sentinel pointer.
func (p Pointer) IsNull() bool { return p == Null }

func (p Pointer) String() string {
	if p.IsNull() {
		return "bonsai.Null"
	}
	return fmt.Sprintf("bonsai.Pointer{page:%d,off:%d}", p.PageIndex, p.Offset)
}
