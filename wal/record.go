// Package wal implements the physical write-ahead log consumed by the
// bonsai tree writer: atomic-unit brackets and per-page change records,
// bit-exact enough across a process restart for crash recovery replay
// (spec §4.9, §6).
package wal

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// LSN is a monotonically increasing log sequence number identifying a WAL
// record's position in the log.
type LSN uint64

// NilLSN is the LSN stored on a page that has never been written through
// the WAL (spec §4.9's "new page" case: prevLsn = startLSN instead).
const NilLSN LSN = 0

// RecordType identifies the three record kinds consumed by recovery.
type RecordType uint8

const (
	RecordAtomicUnitStart RecordType = 1
	RecordAtomicUnitEnd   RecordType = 2
	RecordUpdatePage      RecordType = 3
)

// Record is one WAL entry. Only the fields relevant to its Type are
// meaningful; see NewAtomicUnitStart/NewAtomicUnitEnd/NewUpdatePage.
type Record struct {
	Type           RecordType
	UnitID         OperationUnitID
	IsCompat       bool // AtomicUnitStart only
	RolledBack     bool // AtomicUnitEnd only
	FileID         uint32
	PageIndex      uint64
	PageChanges    []byte
	PrevLSN        LSN
	LSN            LSN // assigned by the log on append; populated on read
}

func NewAtomicUnitStart(unitID OperationUnitID, isCompat bool) Record {
	return Record{Type: RecordAtomicUnitStart, UnitID: unitID, IsCompat: isCompat}
}

func NewAtomicUnitEnd(unitID OperationUnitID, rolledBack bool) Record {
	return Record{Type: RecordAtomicUnitEnd, UnitID: unitID, RolledBack: rolledBack}
}

func NewUpdatePage(unitID OperationUnitID, fileID uint32, pageIndex uint64, changes []byte, prevLSN LSN) Record {
	return Record{
		Type:        RecordUpdatePage,
		UnitID:      unitID,
		FileID:      fileID,
		PageIndex:   pageIndex,
		PageChanges: changes,
		PrevLSN:     prevLSN,
	}
}

// encode serializes r without its LSN (the LSN is implicit in the record's
// file offset and assigned by Log.Append on write).
func (r Record) encode() []byte {
	unitBytes := r.UnitID.Bytes()
	size := 1 + len(unitBytes) + 1 + 1 + 4 + 8 + 4 + len(r.PageChanges) + 8 + 8 // +checksum
	buf := make([]byte, size)
	off := 0
	buf[off] = byte(r.Type)
	off++
	copy(buf[off:], unitBytes)
	off += len(unitBytes)
	if r.IsCompat {
		buf[off] = 1
	}
	off++
	if r.RolledBack {
		buf[off] = 1
	}
	off++
	binary.BigEndian.PutUint32(buf[off:], r.FileID)
	off += 4
	binary.BigEndian.PutUint64(buf[off:], r.PageIndex)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], uint32(len(r.PageChanges)))
	off += 4
	copy(buf[off:], r.PageChanges)
	off += len(r.PageChanges)
	binary.BigEndian.PutUint64(buf[off:], uint64(r.PrevLSN))
	off += 8

	sum := xxhash.Sum64(buf[:off])
	binary.BigEndian.PutUint64(buf[off:], sum)
	return buf
}

// decodeRecord parses a record body (without its length prefix, added by the
// log framing) and validates its checksum.
func decodeRecord(buf []byte) (Record, error) {
	const unitLen = unitIDSize
	minLen := 1 + unitLen + 1 + 1 + 4 + 8 + 4 + 8
	if len(buf) < minLen {
		return Record{}, fmt.Errorf("wal: record too short: %d bytes", len(buf))
	}
	var r Record
	off := 0
	r.Type = RecordType(buf[off])
	off++
	r.UnitID = unitIDFromBytes(buf[off : off+unitLen])
	off += unitLen
	r.IsCompat = buf[off] != 0
	off++
	r.RolledBack = buf[off] != 0
	off++
	r.FileID = binary.BigEndian.Uint32(buf[off:])
	off += 4
	r.PageIndex = binary.BigEndian.Uint64(buf[off:])
	off += 8
	changesLen := binary.BigEndian.Uint32(buf[off:])
	off += 4
	if off+int(changesLen)+8 > len(buf) {
		return Record{}, fmt.Errorf("wal: truncated record body")
	}
	if changesLen > 0 {
		r.PageChanges = append([]byte(nil), buf[off:off+int(changesLen)]...)
	}
	off += int(changesLen)
	r.PrevLSN = LSN(binary.BigEndian.Uint64(buf[off:]))
	off += 8

	want := binary.BigEndian.Uint64(buf[off:])
	got := xxhash.Sum64(buf[:off])
	if want != got {
		return Record{}, fmt.Errorf("wal: checksum mismatch: stored %d computed %d", want, got)
	}
	return r, nil
}
