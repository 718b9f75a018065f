package ledb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Value is the generic tagged-value domain every document lives in: Null,
// Bool, Integer, Float, Text, Bytes, Array and Map. It is the Go analogue
// of a JSON/CBOR value, with the numeric split (Integer vs Float) kept
// distinct all the way down to the wire encoding so index keys never lose
// type information silently.
type Value struct {
	kind  valueKind
	b     bool
	i     int64
	f     float64
	s     string
	by    []byte
	arr   []Value
	m     map[string]Value
	mKeys []string // insertion order, for stable iteration/encoding
}

type valueKind uint8

const (
	KindNull valueKind = iota
	KindBool
	KindInteger
	KindFloat
	KindText
	KindBytes
	KindArray
	KindMap
)

func (k valueKind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindInteger:
		return "Integer"
	case KindFloat:
		return "Float"
	case KindText:
		return "Text"
	case KindBytes:
		return "Bytes"
	case KindArray:
		return "Array"
	case KindMap:
		return "Map"
	default:
		return "Unknown"
	}
}

func Null() Value                 { return Value{kind: KindNull} }
func Bool(v bool) Value           { return Value{kind: KindBool, b: v} }
func Integer(v int64) Value       { return Value{kind: KindInteger, i: v} }
func Float(v float64) Value       { return Value{kind: KindFloat, f: v} }
func Text(v string) Value         { return Value{kind: KindText, s: v} }
func Bytes(v []byte) Value        { return Value{kind: KindBytes, by: v} }
func Array(vs ...Value) Value     { return Value{kind: KindArray, arr: vs} }
func ArrayOf(vs []Value) Value    { return Value{kind: KindArray, arr: vs} }

// Map builds a Map value from an ordered list of key/value pairs, preserving
// the order given (later duplicate keys overwrite earlier ones in place).
func Map(pairs ...KV) Value {
	v := Value{kind: KindMap, m: make(map[string]Value, len(pairs))}
	for _, p := range pairs {
		v.Set(p.K, p.V)
	}
	return v
}

// KV is one key/value pair used to build a Map value.
type KV struct {
	K string
	V Value
}

func (v Value) Kind() valueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool)       { return v.b, v.kind == KindBool }
func (v Value) AsInteger() (int64, bool)   { return v.i, v.kind == KindInteger }
func (v Value) AsFloat() (float64, bool)   { return v.f, v.kind == KindFloat }
func (v Value) AsText() (string, bool)     { return v.s, v.kind == KindText }
func (v Value) AsBytes() ([]byte, bool)    { return v.by, v.kind == KindBytes }
func (v Value) AsArray() ([]Value, bool)   { return v.arr, v.kind == KindArray }

// Set inserts or overwrites a key in a Map value. It panics if v is not a Map;
// callers that don't know the kind should check Kind() first.
func (v *Value) Set(key string, val Value) {
	if v.kind != KindMap {
		panic("ledb: Value.Set on a non-Map value")
	}
	if _, exists := v.m[key]; !exists {
		v.mKeys = append(v.mKeys, key)
	}
	v.m[key] = val
}

// Get looks up a key in a Map value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	val, ok := v.m[key]
	return val, ok
}

// Delete removes a key from a Map value, if present.
func (v *Value) Delete(key string) {
	if v.kind != KindMap {
		return
	}
	if _, ok := v.m[key]; !ok {
		return
	}
	delete(v.m, key)
	for i, k := range v.mKeys {
		if k == key {
			v.mKeys = append(v.mKeys[:i], v.mKeys[i+1:]...)
			break
		}
	}
}

// Keys returns a Map value's keys in insertion order.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	return v.mKeys
}

// Len returns the number of elements/entries for Array/Map, or 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindMap:
		return len(v.mKeys)
	default:
		return 0
	}
}

// Equal reports deep structural equality, used by the round-trip testable
// property (spec §8.3) and by Modify's set-style Array Add/Sub.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindInteger:
		return v.i == other.i
	case KindFloat:
		return v.f == other.f || (math.IsNaN(v.f) && math.IsNaN(other.f))
	case KindText:
		return v.s == other.s
	case KindBytes:
		return string(v.by) == string(other.by)
	case KindArray:
		if len(v.arr) != len(other.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(other.arr[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.mKeys) != len(other.mKeys) {
			return false
		}
		for k, vv := range v.m {
			ov, ok := other.m[k]
			if !ok || !vv.Equal(ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindText:
		return v.s
	case KindBytes:
		return fmt.Sprintf("%x", v.by)
	case KindArray:
		return fmt.Sprintf("Array(%d)", len(v.arr))
	case KindMap:
		return fmt.Sprintf("Map(%d)", len(v.mKeys))
	default:
		return "?"
	}
}

// MarshalJSON renders a Value using its natural JSON shape: Integer/Float
// as a JSON number, Text as a string, Bool as a boolean, Array/Map as their
// JSON counterparts. Bytes has no native JSON representation and is
// rendered as a base64 string by encoding/json's standard []byte handling;
// round-tripping a Bytes value through JSON therefore yields a Text value,
// matching the wire JSON surface's restriction that Bytes never appears
// there (spec §6 describes only the query/REST surface, not raw payloads).
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(valueToJSONAny(v))
}

func valueToJSONAny(v Value) any {
	switch v.Kind() {
	case KindNull:
		return nil
	case KindBool:
		b, _ := v.AsBool()
		return b
	case KindInteger:
		n, _ := v.AsInteger()
		return n
	case KindFloat:
		f, _ := v.AsFloat()
		return f
	case KindText:
		s, _ := v.AsText()
		return s
	case KindBytes:
		by, _ := v.AsBytes()
		return by
	case KindArray:
		arr, _ := v.AsArray()
		out := make([]any, len(arr))
		for i, e := range arr {
			out[i] = valueToJSONAny(e)
		}
		return out
	case KindMap:
		out := make(map[string]any, v.Len())
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			out[k] = valueToJSONAny(e)
		}
		return out
	default:
		return nil
	}
}

// UnmarshalJSON parses a JSON value into a Value, preserving the
// Integer/Float split based on whether the JSON number has a
// fractional/exponent part.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var tok any
	if err := dec.Decode(&tok); err != nil {
		return newErr(EncodingFailure, "Value.UnmarshalJSON", err, "invalid JSON value")
	}
	*v = jsonAnyToValue(tok)
	return nil
}

func jsonAnyToValue(tok any) Value {
	switch x := tok.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case json.Number:
		if isIntegerLiteral(string(x)) {
			if n, err := x.Int64(); err == nil {
				return Integer(n)
			}
		}
		f, _ := x.Float64()
		return Float(f)
	case string:
		return Text(x)
	case []any:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = jsonAnyToValue(e)
		}
		return ArrayOf(out)
	case map[string]any:
		v := Map()
		for k, e := range x {
			v.Set(k, jsonAnyToValue(e))
		}
		return v
	default:
		return Null()
	}
}

// KeyType is the logical type of an index's keys (spec §3).
type KeyType int

const (
	KeyInt KeyType = iota
	KeyFloat
	KeyText
	KeyBytes
	KeyBool
)

// textual encodings used by the catalog grammar (spec §6): int/flt/str/raw/bool.
func (t KeyType) catalogName() string {
	switch t {
	case KeyInt:
		return "int"
	case KeyFloat:
		return "flt"
	case KeyText:
		return "str"
	case KeyBytes:
		return "raw"
	case KeyBool:
		return "bool"
	default:
		panic("ledb: invalid KeyType")
	}
}

func parseKeyType(s string) (KeyType, bool) {
	switch s {
	case "int":
		return KeyInt, true
	case "flt":
		return KeyFloat, true
	case "str":
		return KeyText, true
	case "raw":
		return KeyBytes, true
	case "bool":
		return KeyBool, true
	default:
		return 0, false
	}
}

func (t KeyType) String() string {
	switch t {
	case KeyInt:
		return "Int"
	case KeyFloat:
		return "Float"
	case KeyText:
		return "Text"
	case KeyBytes:
		return "Bytes"
	case KeyBool:
		return "Bool"
	default:
		return "Unknown"
	}
}

// KeyData is a typed scalar used as an index key at runtime (spec §3).
// Exactly one of the fields is meaningful, selected by Type.
type KeyData struct {
	Type KeyType
	I    int64
	F    float64
	S    string
	B    []byte
	Bl   bool
}

func KDInt(v int64) KeyData    { return KeyData{Type: KeyInt, I: v} }
func KDFloat(v float64) KeyData { return KeyData{Type: KeyFloat, F: v} }
func KDText(v string) KeyData  { return KeyData{Type: KeyText, S: v} }
func KDBytes(v []byte) KeyData { return KeyData{Type: KeyBytes, B: v} }
func KDBool(v bool) KeyData    { return KeyData{Type: KeyBool, Bl: v} }

// keyDataFromValue maps a terminal generic Value to a KeyData in its native
// type, mirroring original_source/ledb/src/value.rs::KeyData::from_val: only
// scalar kinds convert, everything else (Null, Array, Map) yields ok=false.
func keyDataFromValue(v Value) (KeyData, bool) {
	switch v.kind {
	case KindInteger:
		return KDInt(v.i), true
	case KindFloat:
		return KDFloat(v.f), true
	case KindText:
		return KDText(v.s), true
	case KindBytes:
		return KDBytes(v.by), true
	case KindBool:
		return KDBool(v.b), true
	default:
		return KeyData{}, false
	}
}

// intoType applies the coercion lattice of spec §4.1: Int->Float always
// converts; Float->Int rounds to nearest and fails for NaN and ±Inf; String parses to
// Int/Float/Bool or fails; Int/Float/Bool format to String; Bytes never
// coerces. ok=false means "drop this candidate key silently" per spec.
func (k KeyData) intoType(t KeyType) (KeyData, bool) {
	if k.Type == t {
		return k, true
	}
	switch k.Type {
	case KeyInt:
		switch t {
		case KeyFloat:
			return KDFloat(float64(k.I)), true
		case KeyText:
			return KDText(strconv.FormatInt(k.I, 10)), true
		}
	case KeyFloat:
		switch t {
		case KeyInt:
			if math.IsNaN(k.F) || math.IsInf(k.F, 0) {
				return KeyData{}, false
			}
			return KDInt(int64(math.Round(k.F))), true
		case KeyText:
			return KDText(strconv.FormatFloat(k.F, 'g', -1, 64)), true
		}
	case KeyText:
		switch t {
		case KeyInt:
			n, err := strconv.ParseInt(k.S, 10, 64)
			if err != nil {
				return KeyData{}, false
			}
			return KDInt(n), true
		case KeyFloat:
			f, err := strconv.ParseFloat(k.S, 64)
			if err != nil {
				return KeyData{}, false
			}
			return KDFloat(f), true
		case KeyBool:
			b, err := strconv.ParseBool(k.S)
			if err != nil {
				return KeyData{}, false
			}
			return KDBool(b), true
		}
	case KeyBool:
		switch t {
		case KeyText:
			return KDText(strconv.FormatBool(k.Bl)), true
		}
	case KeyBytes:
		// Binary never coerces.
	}
	return KeyData{}, false
}

func (k KeyData) String() string {
	switch k.Type {
	case KeyInt:
		return strconv.FormatInt(k.I, 10)
	case KeyFloat:
		return strconv.FormatFloat(k.F, 'g', -1, 64)
	case KeyText:
		return k.S
	case KeyBytes:
		return fmt.Sprintf("%x", k.B)
	case KeyBool:
		return strconv.FormatBool(k.Bl)
	default:
		return "?"
	}
}
