// Package codec provides the key/value serializer registry used by a
// bonsai tree's root bucket (keySerializerId/valueSerializerId) and the
// composite-key comparator used for partial-key range scans.
package codec

import "bytes"

// Sentinel marks a padding Part appended to a short composite key so it can
// be compared against full-arity keys stored in the tree. A Low sentinel
// compares less than any real value; a High sentinel compares greater.
type Sentinel int

const (
	sentinelNone Sentinel = iota
	SentinelLow
	SentinelHigh
)

// Part is one component of a (possibly composite) key. Exactly one of the
// typed fields is meaningful, selected by Kind, unless Sentinel is set, in
// which case the Part carries no value and compares solely by Sentinel.
type Part struct {
	Kind     PartKind
	Int      int64
	Float    float64
	Str      string
	Bytes    []byte
	Sentinel Sentinel
}

// PartKind identifies which field of Part holds the value.
type PartKind int

const (
	KindInt PartKind = iota
	KindFloat
	KindString
	KindBytes
)

func IntPart(v int64) Part    { return Part{Kind: KindInt, Int: v} }
func FloatPart(v float64) Part { return Part{Kind: KindFloat, Float: v} }
func StringPart(v string) Part { return Part{Kind: KindString, Str: v} }
func BytesPart(v []byte) Part  { return Part{Kind: KindBytes, Bytes: v} }

// LowPart and HighPart build sentinel parts used to pad a short composite
// key to a boundary during HIGHEST_BOUNDARY / LOWEST_BOUNDARY partial
// search (spec §4.3).
func LowPart() Part  { return Part{Sentinel: SentinelLow} }
func HighPart() Part { return Part{Sentinel: SentinelHigh} }

// Compare orders two parts. A Low sentinel is less than every non-sentinel
// part and every High sentinel; a High sentinel is greater than every
// non-sentinel part and every Low sentinel. Two sentinels of the same kind
// compare equal.
func (p Part) Compare(o Part) int {
	if p.Sentinel != sentinelNone || o.Sentinel != sentinelNone {
		return compareSentinel(p, o)
	}
	switch p.Kind {
	case KindInt:
		switch {
		case p.Int < o.Int:
			return -1
		case p.Int > o.Int:
			return 1
		default:
			return 0
		}
	case KindFloat:
		switch {
		case p.Float < o.Float:
			return -1
		case p.Float > o.Float:
			return 1
		default:
			return 0
		}
	case KindString:
		if p.Str < o.Str {
			return -1
		} else if p.Str > o.Str {
			return 1
		}
		return 0
	case KindBytes:
		return bytes.Compare(p.Bytes, o.Bytes)
	default:
		return 0
	}
}

func compareSentinel(p, o Part) int {
	ps, os := p.Sentinel, o.Sentinel
	if ps == sentinelNone {
		// p is a real value; o is a sentinel.
		if os == SentinelLow {
			return 1
		}
		return -1
	}
	if os == sentinelNone {
		if ps == SentinelLow {
			return -1
		}
		return 1
	}
	// Both sentinels.
	if ps == os {
		return 0
	}
	if ps == SentinelLow {
		return -1
	}
	return 1
}
