package ledb

import "testing"

func selEqual(a, b Selection) bool {
	if a.inv != b.inv || len(a.ids) != len(b.ids) {
		return false
	}
	for id := range a.ids {
		if _, ok := b.ids[id]; !ok {
			return false
		}
	}
	return true
}

func TestSelection_AndOr(t *testing.T) {
	s := func(ids ...uint32) Selection { return SelectionOf(ids) }

	cases := []struct {
		name string
		got  Selection
		want Selection
	}{
		{"not_inv_and_empty", s(1, 2, 3, 7, 9).And(Selection{}), Selection{}},
		{"not_inv_and_universe", s(1, 2, 3, 7, 9).And(Selection{}.Not()), s(1, 2, 3, 7, 9)},
		{"not_inv_and_not_inv", s(1, 2, 3, 7, 9).And(s(2, 7, 5, 0, 4, 1)), s(1, 2, 7)},
		{"not_inv_and_inv", s(1, 2, 3, 7, 9).And(s(2, 7, 5, 0, 4, 1).Not()), s(3, 9)},
		{"inv_and_not_inv", s(1, 2, 3, 7, 9).Not().And(s(2, 7, 5, 0, 4, 1)), s(0, 4, 5)},
		{"inv_and_inv", s(1, 2, 3, 7, 9).Not().And(s(2, 7, 5, 0, 4, 1).Not()), s(0, 1, 2, 3, 4, 5, 7, 9).Not()},
		{"not_inv_or_empty", s(1, 2, 3, 7, 9).Or(Selection{}), s(1, 2, 3, 7, 9)},
		{"not_inv_or_universe", s(1, 2, 3, 7, 9).Or(Selection{}.Not()), Selection{}.Not()},
		{"not_inv_or_not_inv", s(1, 2, 3, 7, 9).Or(s(2, 7, 5, 0, 4, 1)), s(0, 1, 2, 3, 4, 5, 7, 9)},
		{"not_inv_or_inv", s(1, 2, 3, 7, 9).Or(s(2, 7, 5, 0, 4, 1).Not()), s(0, 4, 5).Not()},
		{"inv_or_not_inv", s(2, 7, 5, 0, 4, 1).Not().Or(s(1, 2, 3, 7, 9)), s(0, 4, 5).Not()},
		{"inv_or_inv", s(1, 2, 3, 7, 9).Not().Or(s(2, 7, 5, 0, 4, 1).Not()), s(1, 2, 7).Not()},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if !selEqual(c.got, c.want) {
				t.Fatalf("got ids=%v inv=%v, wanted ids=%v inv=%v", c.got.ids, c.got.inv, c.want.ids, c.want.inv)
			}
		})
	}
}

func TestSelection_Has(t *testing.T) {
	s := SelectionOf([]uint32{1, 2, 3})
	if !s.Has(2) || s.Has(5) {
		t.Fatalf("Has on non-inverted selection wrong")
	}
	inv := s.Not()
	if inv.Has(2) || !inv.Has(5) {
		t.Fatalf("Has on inverted selection wrong")
	}
}
