package ledb

import "testing"

func TestDocCodec_RoundTrip(t *testing.T) {
	c := NewDocCodec("id")
	doc := Map(
		KV{"id", Integer(7)},
		KV{"name", Text("ann")},
		KV{"tags", ArrayOf([]Value{Text("a"), Text("b")})},
		KV{"score", Float(3.5)},
	)

	primary, payload, err := c.EncodeDoc(doc, RequirePrimary)
	if err != nil {
		t.Fatalf("EncodeDoc: %v", err)
	}
	if primary != 7 {
		t.Fatalf("primary = %d, wanted 7", primary)
	}

	got, err := c.DecodeDoc(primary, payload)
	if err != nil {
		t.Fatalf("DecodeDoc: %v", err)
	}
	if !got.Equal(doc) {
		t.Fatalf("DecodeDoc(EncodeDoc(doc)) = %v, wanted %v", got, doc)
	}
}

func TestDocCodec_AllowMissingPrimary(t *testing.T) {
	c := NewDocCodec("id")
	doc := Map(KV{"name", Text("ann")})

	primary, payload, err := c.EncodeDoc(doc, AllowMissingPrimary)
	if err != nil {
		t.Fatalf("EncodeDoc: %v", err)
	}
	if primary != 0 {
		t.Fatalf("primary = %d, wanted 0", primary)
	}

	got, err := c.DecodeDoc(42, payload)
	if err != nil {
		t.Fatalf("DecodeDoc: %v", err)
	}
	if id, ok := got.Get("id"); !ok {
		t.Fatalf("decoded doc missing id field")
	} else if n, _ := id.AsInteger(); n != 42 {
		t.Fatalf("id = %d, wanted 42", n)
	}
}

func TestDocCodec_Errors(t *testing.T) {
	c := NewDocCodec("id")

	t.Run("not an object", func(t *testing.T) {
		_, _, err := c.EncodeDoc(Integer(1), RequirePrimary)
		if kind, ok := KindOf(err); !ok || kind != EncodingFailure {
			t.Fatalf("EncodeDoc(scalar) kind = (%v, %v), wanted (EncodingFailure, true)", kind, ok)
		}
	})

	t.Run("missing primary without AllowMissingPrimary", func(t *testing.T) {
		_, _, err := c.EncodeDoc(Map(KV{"name", Text("x")}), RequirePrimary)
		if err == nil {
			t.Fatalf("EncodeDoc with no id: expected error")
		}
	})

	t.Run("non-integer primary", func(t *testing.T) {
		_, _, err := c.EncodeDoc(Map(KV{"id", Text("seven")}), RequirePrimary)
		if err == nil {
			t.Fatalf("EncodeDoc with string id: expected error")
		}
	})

	t.Run("primary out of range", func(t *testing.T) {
		_, _, err := c.EncodeDoc(Map(KV{"id", Integer(0)}), RequirePrimary)
		if err == nil {
			t.Fatalf("EncodeDoc with id=0: expected error")
		}
		_, _, err = c.EncodeDoc(Map(KV{"id", Integer(1 << 40)}), RequirePrimary)
		if err == nil {
			t.Fatalf("EncodeDoc with id>u32 max: expected error")
		}
	})
}

func TestDocCodec_CustomPrimaryField(t *testing.T) {
	c := NewDocCodec("_key")
	doc := Map(KV{"_key", Integer(3)}, KV{"v", Integer(9)})

	primary, payload, err := c.EncodeDoc(doc, RequirePrimary)
	if err != nil {
		t.Fatalf("EncodeDoc: %v", err)
	}
	got, err := c.DecodeDoc(primary, payload)
	if err != nil {
		t.Fatalf("DecodeDoc: %v", err)
	}
	if !got.Equal(doc) {
		t.Fatalf("round trip with custom primary field failed: got %v, wanted %v", got, doc)
	}
}
