package bonsai

import "github.com/intellect4all/bonsaitree/codec"

// PartialMajor is RangeMajor for a partial composite key: from is padded
// to the tree's full key arity before descending, so "every key starting
// with this prefix or greater" reads correctly even though from itself
// has fewer parts than a stored key (spec §4.3). inclusive selects the
// pad boundary: true pads to the lowest boundary of from's prefix (every
// (from,*) row is included), false pads to the highest boundary (every
// (from,*) row is excluded, matching only strictly greater prefixes,
// spec S4).
func (t *Tree) PartialMajor(from codec.Key, inclusive bool, visit Listener) error {
	mode := codec.ModeLowestBoundary
	if !inclusive {
		mode = codec.ModeHighestBoundary
	}
	padded := from.Padded(t.keyArity, mode)
	return t.RangeMajor(padded, true, visit)
}

// PartialMinor is RangeMinor for a partial composite key: to is padded
// to the tree's full key arity before descending. inclusive selects the
// pad boundary: true pads to the highest boundary of to's prefix (every
// (to,*) row is included), false pads to the lowest boundary (every
// (to,*) row is excluded).
func (t *Tree) PartialMinor(to codec.Key, inclusive bool, visit Listener) error {
	mode := codec.ModeHighestBoundary
	if !inclusive {
		mode = codec.ModeLowestBoundary
	}
	padded := to.Padded(t.keyArity, mode)
	return t.RangeMinor(padded, true, visit)
}

// PartialBetween ranges between two partial composite keys, padding from
// to its lowest boundary and to to its highest boundary so both prefixes
// are fully covered (spec §4.3, scenario S4).
func (t *Tree) PartialBetween(from, to codec.Key, visit Listener) error {
	paddedFrom := from.Padded(t.keyArity, codec.ModeLowestBoundary)
	paddedTo := to.Padded(t.keyArity, codec.ModeHighestBoundary)
	return t.RangeBetween(paddedFrom, true, paddedTo, true, visit)
}
