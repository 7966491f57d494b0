package wal

import (
	"github.com/segmentio/ksuid"
)

// unitIDSize is the wire size of a KSUID.
const unitIDSize = 20

// OperationUnitID identifies one atomic operation unit. It is a KSUID
// rather than a bare counter: KSUIDs are k-sortable, so a replayed log's
// AtomicUnitStart records naturally sort by issue time, and, unlike a
// counter that resets to zero across process restarts, a fresh id does not
// collide with one issued before the crash (spec §4.8, §4.11).
type OperationUnitID struct {
	id ksuid.KSUID
}

// NewOperationUnitID mints a fresh unit id.
func NewOperationUnitID() OperationUnitID {
	return OperationUnitID{id: ksuid.New()}
}

func (u OperationUnitID) String() string { return u.id.String() }

func (u OperationUnitID) Bytes() []byte {
	b := u.id.Bytes()
	return b[:]
}

func unitIDFromBytes(b []byte) OperationUnitID {
	var k ksuid.KSUID
	copy(k[:], b)
	return OperationUnitID{id: k}
}

// Equal reports whether two unit ids are the same.
func (u OperationUnitID) Equal(o OperationUnitID) bool { return u.id == o.id }
