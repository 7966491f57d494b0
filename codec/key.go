package codec

// Key is a, possibly composite, tree key. Most trees use a single-Part key;
// composite keys (arity > 1) support the partial-key search described in
// spec §4.3.
type Key struct {
	Parts []Part
}

// Simple builds a single-part key from one Part, the common case.
func Simple(p Part) Key { return Key{Parts: []Part{p}} }

// Arity returns the number of real (non-padded) parts this key was built
// with.
func (k Key) Arity() int { return len(k.Parts) }

// Padded returns a copy of k with sentinel parts appended so it has
// exactly arity parts. mode selects which sentinel to pad with; if
// mode is ModeNone or k already has at least arity parts, k is returned
// unchanged (never mutated in place).
func (k Key) Padded(arity int, mode SearchMode) Key {
	if mode == ModeNone || k.Arity() >= arity {
		return k
	}
	out := make([]Part, arity)
	copy(out, k.Parts)
	pad := LowPart()
	if mode == ModeHighestBoundary {
		pad = HighPart()
	}
	for i := k.Arity(); i < arity; i++ {
		out[i] = pad
	}
	return Key{Parts: out}
}

// SearchMode selects how a short composite key is padded to a boundary
// before a tree descent, per spec §4.3.
type SearchMode int

const (
	ModeNone SearchMode = iota
	ModeHighestBoundary
	ModeLowestBoundary
)

// Compare orders two keys positionwise. Keys of unequal length are
// compared up to the shorter length's parts; a shorter key that matches
// every part of a longer key's prefix is considered less than the longer
// key (this only matters for raw, un-padded composite comparisons; range
// scans should pad first via Padded).
func Compare(a, b Key) int {
	n := len(a.Parts)
	if len(b.Parts) < n {
		n = len(b.Parts)
	}
	for i := 0; i < n; i++ {
		if c := a.Parts[i].Compare(b.Parts[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a.Parts) < len(b.Parts):
		return -1
	case len(a.Parts) > len(b.Parts):
		return 1
	default:
		return 0
	}
}
