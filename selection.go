package ledb

// Selection is a set of primaries with an optional complement bit, letting
// filters such as "not field == x" avoid materializing the full universe of
// ids (spec §4.5). The zero value is the empty, non-inverted selection.
type Selection struct {
	ids map[uint32]struct{}
	inv bool
}

// NewSelection builds a Selection from an explicit id set and inversion bit.
func NewSelection(ids map[uint32]struct{}, inv bool) Selection {
	if ids == nil {
		ids = map[uint32]struct{}{}
	}
	return Selection{ids: ids, inv: inv}
}

// SelectionOf builds a non-inverted Selection from a slice of primaries.
func SelectionOf(primaries []uint32) Selection {
	ids := make(map[uint32]struct{}, len(primaries))
	for _, p := range primaries {
		ids[p] = struct{}{}
	}
	return Selection{ids: ids}
}

// Has reports whether id is a member of the selection: (id in H) XOR inv.
func (s Selection) Has(id uint32) bool {
	_, in := s.ids[id]
	return in != s.inv
}

// Len reports the size of the underlying explicit set, not the logical
// selection (which is infinite when inv is true).
func (s Selection) Len() int { return len(s.ids) }

// IDs returns the explicit id set and the inversion bit, letting a caller
// either use the set directly (inv == false) or scan a known universe and
// test Has against it (inv == true).
func (s Selection) IDs() (ids []uint32, inv bool) {
	ids = make([]uint32, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	return ids, s.inv
}

// Not returns the complement of s: ¬(H, inv) = (H, ¬inv).
func (s Selection) Not() Selection {
	return Selection{ids: s.ids, inv: !s.inv}
}

// And returns the intersection of s and other, picking the cheapest of
// intersect/difference/union-of-complements for the given inversion
// quadrant (spec §4.5's eight-case table), with an empty-explicit-set
// shortcut for the two "intersect with the universe" cases.
func (s Selection) And(other Selection) Selection {
	switch {
	case !s.inv && !other.inv:
		return Selection{ids: setIntersect(s.ids, other.ids), inv: false}
	case !s.inv && other.inv && len(other.ids) == 0:
		// a & universe == a
		return Selection{ids: s.ids, inv: false}
	case !s.inv && other.inv:
		// a & !b
		return Selection{ids: setDifference(s.ids, other.ids), inv: false}
	case s.inv && len(s.ids) == 0 && !other.inv:
		// universe & b == b
		return Selection{ids: other.ids, inv: false}
	case s.inv && !other.inv:
		// !a & b == b & !a
		return Selection{ids: setDifference(other.ids, s.ids), inv: false}
	default:
		// !a & !b == !(a | b)
		return Selection{ids: setUnion(s.ids, other.ids), inv: true}
	}
}

// Or returns the union of s and other: a | b == !(!a & !b).
func (s Selection) Or(other Selection) Selection {
	return s.Not().And(other.Not()).Not()
}

func setIntersect(a, b map[uint32]struct{}) map[uint32]struct{} {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	out := make(map[uint32]struct{})
	for id := range small {
		if _, ok := big[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func setDifference(a, b map[uint32]struct{}) map[uint32]struct{} {
	out := make(map[uint32]struct{}, len(a))
	for id := range a {
		if _, ok := b[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func setUnion(a, b map[uint32]struct{}) map[uint32]struct{} {
	out := make(map[uint32]struct{}, len(a)+len(b))
	for id := range a {
		out[id] = struct{}{}
	}
	for id := range b {
		out[id] = struct{}{}
	}
	return out
}
