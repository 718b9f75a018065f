package ledb

import "testing"

func newTestCollection(t *testing.T) *Collection {
	t.Helper()
	st := newMemStorage()
	t.Cleanup(func() { st.Close() })
	var gen SerialGenerator
	return NewCollection(st, "things", gen.Gen(), &gen, "id")
}

func TestCollection_InsertGetDelete(t *testing.T) {
	c := newTestCollection(t)

	id, err := c.Insert(Map(KV{"name", Text("ann")}))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 1 {
		t.Fatalf("first id = %d, wanted 1", id)
	}

	id2, err := c.Insert(Map(KV{"name", Text("bob")}))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id2 != 2 {
		t.Fatalf("second id = %d, wanted 2", id2)
	}

	doc, found, err := c.Get(id)
	if err != nil || !found {
		t.Fatalf("Get(%d) = (%v,%v,%v)", id, doc, found, err)
	}
	if name, _ := mustGet(t, doc, "name").AsText(); name != "ann" {
		t.Fatalf("Get(%d).name = %q, wanted ann", id, name)
	}
	if gotID, _ := mustGet(t, doc, "id").AsInteger(); gotID != int64(id) {
		t.Fatalf("Get(%d).id = %d, wanted %d", id, gotID, id)
	}

	deleted, err := c.Delete(id)
	if err != nil || !deleted {
		t.Fatalf("Delete(%d) = (%v,%v)", id, deleted, err)
	}
	if _, found, _ := c.Get(id); found {
		t.Fatalf("Get(%d) after delete still found", id)
	}
	if deleted, _ := c.Delete(id); deleted {
		t.Fatalf("Delete(%d) a second time reported true", id)
	}
}

func TestCollection_Put(t *testing.T) {
	c := newTestCollection(t)
	id, err := c.Insert(Map(KV{"name", Text("ann")}))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	doc := Map(KV{"id", Integer(int64(id))}, KV{"name", Text("annabelle")})
	if err := c.Put(doc); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, found, err := c.Get(id)
	if err != nil || !found {
		t.Fatalf("Get: (%v,%v,%v)", got, found, err)
	}
	if name, _ := mustGet(t, got, "name").AsText(); name != "annabelle" {
		t.Fatalf("name after put = %q, wanted annabelle", name)
	}
}

func TestCollection_EnsureIndexAndFilter(t *testing.T) {
	c := newTestCollection(t)
	if _, err := c.EnsureIndex("age", Unique, KeyInt); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}

	ids := make([]uint32, 0, 3)
	for _, age := range []int64{20, 30, 40} {
		id, err := c.Insert(Map(KV{"age", Integer(age)}))
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
		ids = append(ids, id)
	}

	f := FilterGe("age", KDInt(30))
	docs, err := c.Find(&f, OrderByPrimary(Asc))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Find(age>=30) returned %d docs, wanted 2", len(docs))
	}
	for _, d := range docs {
		if age, _ := mustGet(t, d, "age").AsInteger(); age < 30 {
			t.Fatalf("doc with age %d matched age>=30", age)
		}
	}
}

func TestCollection_EnsureIndexBackfillsExistingDocs(t *testing.T) {
	c := newTestCollection(t)
	id, err := c.Insert(Map(KV{"city", Text("nyc")}))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := c.EnsureIndex("city", Unique, KeyText); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}

	f := FilterEq("city", KDText("nyc"))
	ids, err := c.FindIDs(&f)
	if err != nil {
		t.Fatalf("FindIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("backfilled index lookup = %v, wanted [%d]", ids, id)
	}
}

func TestCollection_DropIndex(t *testing.T) {
	c := newTestCollection(t)
	if _, err := c.EnsureIndex("age", Unique, KeyInt); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	if err := c.DropIndex("age"); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	if len(c.Indexes()) != 0 {
		t.Fatalf("Indexes() after drop = %v, wanted empty", c.Indexes())
	}

	f := FilterEq("age", KDInt(1))
	if _, err := c.FindIDs(&f); err == nil {
		t.Fatalf("FindIDs against dropped index did not error")
	} else if kind, ok := KindOf(err); !ok || kind != MissingIndex {
		t.Fatalf("FindIDs error kind = (%v,%v), wanted MissingIndex", kind, ok)
	}
}

func TestCollection_UpdateAndRemove(t *testing.T) {
	c := newTestCollection(t)
	for _, age := range []int64{10, 20, 30} {
		if _, err := c.Insert(Map(KV{"age", Integer(age)})); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	n, err := c.Update(nil, NewModify().Add("age", ActionAdd(Integer(1))))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n != 3 {
		t.Fatalf("Update touched %d docs, wanted 3", n)
	}

	docs, err := c.Dump()
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	seen := map[int64]bool{}
	for _, d := range docs {
		age, _ := mustGet(t, d, "age").AsInteger()
		seen[age] = true
	}
	for _, want := range []int64{11, 21, 31} {
		if !seen[want] {
			t.Fatalf("Dump after update = %v, missing age %d", docs, want)
		}
	}

	removed, err := c.Remove(nil)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed != 3 {
		t.Fatalf("Remove removed %d docs, wanted 3", removed)
	}
	docs, _ = c.Dump()
	if len(docs) != 0 {
		t.Fatalf("Dump after Remove(nil) = %v, wanted empty", docs)
	}
}

func TestCollection_LoadPreservesIDs(t *testing.T) {
	c := newTestCollection(t)
	if _, err := c.Insert(Map(KV{"name", Text("stale")})); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	docs := []Value{
		Map(KV{"id", Integer(5)}, KV{"name", Text("ann")}),
		Map(KV{"id", Integer(9)}, KV{"name", Text("bob")}),
	}
	n, err := c.Load(docs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Fatalf("Load count = %d, wanted 2", n)
	}

	if _, found, _ := c.Get(5); !found {
		t.Fatalf("Get(5) not found after Load")
	}
	if _, found, _ := c.Get(9); !found {
		t.Fatalf("Get(9) not found after Load")
	}
	if _, found, _ := c.Get(1); found {
		t.Fatalf("Get(1) still found after Load purged the collection")
	}
}

func TestCollection_FindOrderByField(t *testing.T) {
	c := newTestCollection(t)
	if _, err := c.EnsureIndex("age", Duplicate, KeyInt); err != nil {
		t.Fatalf("EnsureIndex: %v", err)
	}
	for _, age := range []int64{30, 10, 20} {
		if _, err := c.Insert(Map(KV{"age", Integer(age)})); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	docs, err := c.Find(nil, OrderByField("age", Asc))
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("Find returned %d docs, wanted 3", len(docs))
	}
	var ages []int64
	for _, d := range docs {
		age, _ := mustGet(t, d, "age").AsInteger()
		ages = append(ages, age)
	}
	if ages[0] != 10 || ages[1] != 20 || ages[2] != 30 {
		t.Fatalf("Find order by age asc = %v, wanted [10 20 30]", ages)
	}
}
