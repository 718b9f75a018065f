package ledb

import (
	"testing"
)

func newTestBucket(t *testing.T) (storage, storageBucket, func() storageBucket) {
	t.Helper()
	st := newMemStorage()
	tx, err := st.BeginTx(true)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	b, err := tx.CreateBucket("idx", "users.email")
	if err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	readBucket := func() storageBucket {
		rtx, err := st.BeginTx(false)
		if err != nil {
			t.Fatalf("BeginTx(read): %v", err)
		}
		return rtx.Bucket("idx", "users.email")
	}
	return st, b, readBucket
}

func primariesOf(s map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

func containsUint32(s []uint32, v uint32) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func TestIndex_UniquePutAndProbe(t *testing.T) {
	idx := NewIndex("users", "email", Unique, KeyText)
	st, b, _ := newTestBucket(t)
	defer st.Close()

	if err := idx.put(b, KDText("a@example.com"), 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := idx.put(b, KDText("b@example.com"), 2); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := idx.put(b, KDText("a@example.com"), 3); err == nil {
		t.Fatalf("put duplicate key on unique index: expected ConstraintConflict")
	} else if kind, ok := KindOf(err); !ok || kind != ConstraintConflict {
		t.Fatalf("put duplicate key kind = (%v,%v)", kind, ok)
	}

	got := idx.probeSet(b, []KeyData{KDText("a@example.com")})
	if len(got) != 1 || !containsUint32(primariesOf(got), 1) {
		t.Fatalf("probeSet = %v, wanted {1}", got)
	}
}

func TestIndex_DuplicateAllowsManyPrimaries(t *testing.T) {
	idx := NewIndex("users", "tag", Duplicate, KeyText)
	st, b, _ := newTestBucket(t)
	defer st.Close()

	for _, p := range []uint32{1, 2, 3} {
		if err := idx.put(b, KDText("vip"), p); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	got := primariesOf(idx.probeSet(b, []KeyData{KDText("vip")}))
	if len(got) != 3 {
		t.Fatalf("probeSet = %v, wanted 3 primaries", got)
	}
	for _, p := range []uint32{1, 2, 3} {
		if !containsUint32(got, p) {
			t.Fatalf("probeSet missing primary %d: %v", p, got)
		}
	}

	if err := idx.put(b, KDText("vip"), 1); err == nil {
		t.Fatalf("put duplicate (key,primary) pair: expected ConstraintConflict")
	}
}

func TestIndex_Maintain_SymmetricDifference(t *testing.T) {
	idx := NewIndex("users", "tags", Duplicate, KeyText)
	st, b, _ := newTestBucket(t)
	defer st.Close()

	old := Map(KV{"tags", ArrayOf([]Value{Text("a"), Text("b")})})
	new_ := Map(KV{"tags", ArrayOf([]Value{Text("b"), Text("c")})})

	if err := idx.maintain(b, Value{}, old, 10); err != nil {
		t.Fatalf("maintain(insert): %v", err)
	}
	if got := primariesOf(idx.probeSet(b, []KeyData{KDText("a")})); len(got) != 1 {
		t.Fatalf("after insert, probe(a) = %v", got)
	}

	if err := idx.maintain(b, old, new_, 10); err != nil {
		t.Fatalf("maintain(update): %v", err)
	}
	if got := primariesOf(idx.probeSet(b, []KeyData{KDText("a")})); len(got) != 0 {
		t.Fatalf("after update, probe(a) = %v, wanted none (removed)", got)
	}
	if got := primariesOf(idx.probeSet(b, []KeyData{KDText("b")})); len(got) != 1 {
		t.Fatalf("after update, probe(b) = %v, wanted 1 (unchanged, untouched)", got)
	}
	if got := primariesOf(idx.probeSet(b, []KeyData{KDText("c")})); len(got) != 1 {
		t.Fatalf("after update, probe(c) = %v, wanted 1 (added)", got)
	}

	if err := idx.maintain(b, new_, Value{}, 10); err != nil {
		t.Fatalf("maintain(delete): %v", err)
	}
	if got := primariesOf(idx.probeSet(b, []KeyData{KDText("b"), KDText("c")})); len(got) != 0 {
		t.Fatalf("after delete, probe(b,c) = %v, wanted none", got)
	}
}

func TestIndex_ProbeRange(t *testing.T) {
	idx := NewIndex("nums", "n", Unique, KeyInt)
	st, b, _ := newTestBucket(t)
	defer st.Close()

	for _, n := range []int64{1, 5, 10, 15, 20} {
		if err := idx.put(b, KDInt(n), uint32(n)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	got := idx.probeRange(b, &Bound{Key: KDInt(5), Inclusive: true}, &Bound{Key: KDInt(15), Inclusive: false})
	if len(got) != 2 || got[0] != 5 || got[1] != 10 {
		t.Fatalf("probeRange[5,15) = %v, wanted [5 10]", got)
	}

	all := idx.probeRange(b, nil, nil)
	if len(all) != 5 {
		t.Fatalf("probeRange(unbounded) = %v, wanted 5 entries", all)
	}
}

func TestIndex_IteratePrimariesOrder(t *testing.T) {
	idx := NewIndex("nums", "n", Unique, KeyInt)
	st, b, _ := newTestBucket(t)
	defer st.Close()

	for _, n := range []int64{3, 1, 2} {
		if err := idx.put(b, KDInt(n), uint32(n)); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	asc := idx.iteratePrimaries(b, false)
	if len(asc) != 3 || asc[0] != 1 || asc[1] != 2 || asc[2] != 3 {
		t.Fatalf("iteratePrimaries(asc) = %v, wanted [1 2 3]", asc)
	}
	desc := idx.iteratePrimaries(b, true)
	if len(desc) != 3 || desc[0] != 3 || desc[1] != 2 || desc[2] != 1 {
		t.Fatalf("iteratePrimaries(desc) = %v, wanted [3 2 1]", desc)
	}
}
