package ledb

import (
	"encoding/json"
	"testing"
)

func TestModify_SetAndDelete(t *testing.T) {
	doc := Map(KV{"name", Text("ann")}, KV{"age", Integer(10)})

	got := NewModify().Add("name", ActionSet(Text("bob"))).Apply(doc)
	if s, _ := mustGet(t, got, "name").AsText(); s != "bob" {
		t.Fatalf("name = %q, wanted bob", s)
	}

	got = NewModify().Add("age", ActionDelete()).Apply(doc)
	v, ok := got.Get("age")
	if !ok || !v.IsNull() {
		t.Fatalf("age after delete = %v, wanted null", v)
	}
}

func TestModify_NumericAddWidening(t *testing.T) {
	doc := Map(KV{"n", Integer(10)})
	got := NewModify().Add("n", ActionAdd(Integer(5))).Apply(doc)
	if n, _ := mustGet(t, got, "n").AsInteger(); n != 15 {
		t.Fatalf("int+int = %d, wanted 15", n)
	}

	got = NewModify().Add("n", ActionAdd(Float(0.5))).Apply(doc)
	if f, _ := mustGet(t, got, "n").AsFloat(); f != 10.5 {
		t.Fatalf("int+float = %v, wanted 10.5", f)
	}
}

func TestModify_FloatCollapsesToInteger(t *testing.T) {
	doc := Map(KV{"n", Float(10.5)})
	got := NewModify().Add("n", ActionAdd(Float(0.5))).Apply(doc)
	v := mustGet(t, got, "n")
	if v.Kind() != KindInteger {
		t.Fatalf("10.5+0.5 kind = %v, wanted Integer (whole-number collapse)", v.Kind())
	}
	if n, _ := v.AsInteger(); n != 11 {
		t.Fatalf("10.5+0.5 = %d, wanted 11", n)
	}
}

func TestModify_StringConcatAndBytesAppend(t *testing.T) {
	doc := Map(KV{"s", Text("foo")}, KV{"b", Bytes([]byte{1, 2})})
	got := NewModify().Add("s", ActionAdd(Text("bar"))).Apply(doc)
	if s, _ := mustGet(t, got, "s").AsText(); s != "foobar" {
		t.Fatalf("string concat = %q, wanted foobar", s)
	}
	got = NewModify().Add("b", ActionAdd(Bytes([]byte{3, 4}))).Apply(doc)
	by, _ := mustGet(t, got, "b").AsBytes()
	if len(by) != 4 || by[2] != 3 || by[3] != 4 {
		t.Fatalf("bytes append = %v, wanted [1 2 3 4]", by)
	}
}

func TestModify_Toggle(t *testing.T) {
	doc := Map(KV{"active", Bool(true)})
	got := NewModify().Add("active", ActionToggle()).Apply(doc)
	if b, _ := mustGet(t, got, "active").AsBool(); b {
		t.Fatalf("toggle true = %v, wanted false", b)
	}
}

func TestModify_Replace(t *testing.T) {
	doc := Map(KV{"s", Text("hello world")})
	act, err := ActionReplace("o", "0")
	if err != nil {
		t.Fatalf("ActionReplace: %v", err)
	}
	got := NewModify().Add("s", act).Apply(doc)
	if s, _ := mustGet(t, got, "s").AsText(); s != "hell0 w0rld" {
		t.Fatalf("replace = %q, wanted hell0 w0rld", s)
	}
}

func TestModify_ArrayAddIsSetLike(t *testing.T) {
	doc := Map(KV{"tags", ArrayOf([]Value{Text("a"), Text("b")})})
	got := NewModify().Add("tags", ActionAdd(ArrayOf([]Value{Text("b"), Text("c")}))).Apply(doc)
	arr, _ := mustGet(t, got, "tags").AsArray()
	if len(arr) != 3 {
		t.Fatalf("array add = %v, wanted 3 elements (b not duplicated)", arr)
	}
}

func TestModify_ArraySub(t *testing.T) {
	doc := Map(KV{"tags", ArrayOf([]Value{Text("a"), Text("b"), Text("c")})})
	got := NewModify().Add("tags", ActionSub(ArrayOf([]Value{Text("b")}))).Apply(doc)
	arr, _ := mustGet(t, got, "tags").AsArray()
	if len(arr) != 2 {
		t.Fatalf("array sub = %v, wanted 2 elements", arr)
	}
}

func TestModify_ArraySplice(t *testing.T) {
	doc := Map(KV{"items", ArrayOf([]Value{Integer(1), Integer(2), Integer(3), Integer(4)})})

	// insert at offset 1, deleting through index 2 (exclusive end)
	got := NewModify().Add("items", ActionSplice(1, 2, []Value{Integer(99)})).Apply(doc)
	arr, _ := mustGet(t, got, "items").AsArray()
	wantInts(t, arr, []int64{1, 99, 3, 4})

	// negative offsets count from the end: -2 resolves to the last index,
	// -1 resolves to one past the last index, so this removes only the
	// final element.
	got = NewModify().Add("items", ActionSplice(-2, -1, nil)).Apply(doc)
	arr, _ = mustGet(t, got, "items").AsArray()
	wantInts(t, arr, []int64{1, 2, 3})
}

func TestModify_ArrayBroadcast(t *testing.T) {
	doc := Map(KV{"nums", ArrayOf([]Value{Integer(1), Integer(2), Integer(3)})})
	got := NewModify().Add("nums", ActionMul(Integer(10))).Apply(doc)
	arr, _ := mustGet(t, got, "nums").AsArray()
	wantInts(t, arr, []int64{10, 20, 30})
}

func TestModify_ObjectMerge(t *testing.T) {
	doc := Map(KV{"profile", Map(KV{"a", Integer(1)})})
	got := NewModify().Add("profile", ActionMerge(Map(KV{"b", Integer(2)}))).Apply(doc)
	profile := mustGet(t, got, "profile")
	if a, _ := mustGetFrom(t, profile, "a").AsInteger(); a != 1 {
		t.Fatalf("merged profile.a = %d, wanted 1 (preserved)", a)
	}
	if b, _ := mustGetFrom(t, profile, "b").AsInteger(); b != 2 {
		t.Fatalf("merged profile.b = %d, wanted 2 (added)", b)
	}
}

func TestModify_MergeNoOpIfNotMap(t *testing.T) {
	doc := Map(KV{"n", Integer(5)})
	got := NewModify().Add("n", ActionMerge(Map(KV{"x", Integer(1)}))).Apply(doc)
	if n, _ := mustGet(t, got, "n").AsInteger(); n != 5 {
		t.Fatalf("merge on non-Map field mutated value: %d", n)
	}
}

func TestModify_NestedPath(t *testing.T) {
	doc := Map(KV{"address", Map(KV{"city", Text("nyc")})})
	got := NewModify().Add("address.city", ActionSet(Text("sf"))).Apply(doc)
	city := mustGetFrom(t, mustGet(t, got, "address"), "city")
	if s, _ := city.AsText(); s != "sf" {
		t.Fatalf("nested set = %q, wanted sf", s)
	}
}

func TestModify_JSONRoundTrip_SingleAction(t *testing.T) {
	m := NewModify().Add("name", ActionSet(Text("bob")))
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"name":{"$set":"bob"}}` {
		t.Fatalf("Marshal single action = %s", data)
	}
	var got Modify
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got.fields["name"]) != 1 || got.fields["name"][0].Kind != ActSet {
		t.Fatalf("round trip single action = %+v", got.fields)
	}
}

func TestModify_JSONRoundTrip_MultipleActions(t *testing.T) {
	m := NewModify().Add("n", ActionAdd(Integer(1))).Add("n", ActionMul(Integer(2)))
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Modify
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal(%s): %v", data, err)
	}
	if len(got.fields["n"]) != 2 {
		t.Fatalf("round trip multiple actions = %+v, wanted 2", got.fields["n"])
	}
}

func mustGet(t *testing.T, v Value, key string) Value {
	t.Helper()
	got, ok := v.Get(key)
	if !ok {
		t.Fatalf("missing key %q in %v", key, v)
	}
	return got
}

func mustGetFrom(t *testing.T, v Value, key string) Value {
	return mustGet(t, v, key)
}

func wantInts(t *testing.T, arr []Value, want []int64) {
	t.Helper()
	if len(arr) != len(want) {
		t.Fatalf("length = %d, wanted %d (%v)", len(arr), len(want), want)
	}
	for i, w := range want {
		n, ok := arr[i].AsInteger()
		if !ok || n != w {
			t.Fatalf("arr[%d] = %v, wanted %d", i, arr[i], w)
		}
	}
}
