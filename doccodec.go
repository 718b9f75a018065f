package ledb

import (
	"bytes"
	"math"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// DocCodec serializes documents to and from the compact self-describing
// binary form stored in the primary bucket, and splits the configured
// primary-field out of (or back into) the generic Value, per spec §4.2.
//
// A single DocCodec instance is safe for concurrent use; it pools its
// msgpack encoders/decoders the way the teacher's encoding layer pooled
// *msgpack.Encoder/*msgpack.Decoder around bytes.Buffer, rather than
// allocating one per call.
type DocCodec struct {
	primaryField string

	encPool sync.Pool
	decPool sync.Pool
}

// NewDocCodec builds a DocCodec keyed on the given primary-field name
// (e.g. "id"). An empty name defaults to "id".
func NewDocCodec(primaryField string) *DocCodec {
	if primaryField == "" {
		primaryField = "id"
	}
	c := &DocCodec{primaryField: primaryField}
	c.encPool.New = func() any {
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetSortMapKeys(true)
		return &pooledEncoder{enc: enc, buf: &buf}
	}
	c.decPool.New = func() any {
		return msgpack.NewDecoder(bytes.NewReader(nil))
	}
	return c
}

type pooledEncoder struct {
	enc *msgpack.Encoder
	buf *bytes.Buffer
}

// EncodePayload serializes a bare Value (no primary splitting) to bytes.
// Used by EncodeDoc and anywhere a raw Value needs a byte form without the
// document-primary contract; index keys are encoded by encodeKey instead.
func (c *DocCodec) EncodePayload(v Value) ([]byte, error) {
	pe := c.encPool.Get().(*pooledEncoder)
	defer c.encPool.Put(pe)
	pe.buf.Reset()
	if err := pe.enc.Encode(valueToWire(v)); err != nil {
		return nil, newErr(EncodingFailure, "DocCodec.EncodePayload", err, "msgpack encode failed")
	}
	out := make([]byte, pe.buf.Len())
	copy(out, pe.buf.Bytes())
	return out, nil
}

// DecodePayload is the inverse of EncodePayload.
func (c *DocCodec) DecodePayload(raw []byte) (Value, error) {
	dec := c.decPool.Get().(*msgpack.Decoder)
	defer c.decPool.Put(dec)
	dec.Reset(bytes.NewReader(raw))
	var w any
	if err := dec.Decode(&w); err != nil {
		return Value{}, newErr(EncodingFailure, "DocCodec.DecodePayload", err, "msgpack decode failed")
	}
	return wireToValue(w), nil
}

// SplitMode controls how EncodeDoc treats the primary field.
type SplitMode int

const (
	// RequirePrimary rejects a missing or non-integer primary.
	RequirePrimary SplitMode = iota
	// AllowMissingPrimary accepts a missing-or-null primary, used when the
	// caller (Collection.Insert) is about to allocate one itself.
	AllowMissingPrimary
)

// EncodeDoc converts a generic value to a storable record: requires a
// top-level Map, splits out the configured primary field, and returns the
// Primary (0 if absent and mode is AllowMissingPrimary) plus the encoded
// remainder payload.
func (c *DocCodec) EncodeDoc(doc Value, mode SplitMode) (primary uint32, payload []byte, err error) {
	if doc.Kind() != KindMap {
		return 0, nil, newErr(EncodingFailure, "DocCodec.EncodeDoc", nil, "NotAnObject: top-level value is %s, not Map", doc.Kind())
	}

	idVal, hasID := doc.Get(c.primaryField)
	rest := Map()
	for _, k := range doc.Keys() {
		if k == c.primaryField {
			continue
		}
		v, _ := doc.Get(k)
		rest.Set(k, v)
	}

	switch {
	case !hasID || idVal.IsNull():
		if mode != AllowMissingPrimary {
			return 0, nil, newErr(EncodingFailure, "DocCodec.EncodeDoc", nil, "PrimaryNotInteger: missing %q field", c.primaryField)
		}
		primary = 0
	default:
		n, ok := idVal.AsInteger()
		if !ok {
			return 0, nil, newErr(EncodingFailure, "DocCodec.EncodeDoc", nil, "PrimaryNotInteger: %q field is %s, not Integer", c.primaryField, idVal.Kind())
		}
		if n < 1 || n > math.MaxUint32 {
			return 0, nil, newErr(EncodingFailure, "DocCodec.EncodeDoc", nil, "PrimaryOutOfRange: %d is not in 1..=%d", n, uint32(math.MaxUint32))
		}
		primary = uint32(n)
	}

	payload, encErr := c.EncodePayload(rest)
	if encErr != nil {
		return 0, nil, encErr
	}
	return primary, payload, nil
}

// DecodeDoc is the inverse of EncodeDoc: it decodes the payload and injects
// the primary back under the configured field name.
func (c *DocCodec) DecodeDoc(primary uint32, payload []byte) (Value, error) {
	v, err := c.DecodePayload(payload)
	if err != nil {
		return Value{}, err
	}
	if v.Kind() != KindMap {
		return Value{}, newErr(EncodingFailure, "DocCodec.DecodeDoc", nil, "NotAnObject: decoded payload is %s, not Map", v.Kind())
	}
	v.Set(c.primaryField, Integer(int64(primary)))
	return v, nil
}

// valueToWire converts a Value into the plain Go types understood by
// vmihailenco/msgpack (maps, slices, primitives), preserving the
// Integer/Float split by returning int64 for Integer and float64 for Float;
// msgpack itself already distinguishes int and float families at the wire
// level, so no wrapping or extra tagging is needed beyond using the right
// native Go type per Value kind.
func valueToWire(v Value) any {
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
			out[i] = valueToWire(e)
		}
		return out
	case KindMap:
		out := make(map[string]any, v.Len())
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			out[k] = valueToWire(e)
		}
		return out
	default:
		return nil
	}
}

// wireToValue is the inverse of valueToWire, decoding whatever concrete Go
// type msgpack produced (it decodes generic maps as map[string]interface{}
// and integers as int64/uint64 depending on sign and magnitude).
func wireToValue(w any) Value {
	switch x := w.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(x)
	case int8:
		return Integer(int64(x))
	case int16:
		return Integer(int64(x))
	case int32:
		return Integer(int64(x))
	case int64:
		return Integer(x)
	case int:
		return Integer(int64(x))
	case uint8:
		return Integer(int64(x))
	case uint16:
		return Integer(int64(x))
	case uint32:
		return Integer(int64(x))
	case uint64:
		return Integer(int64(x))
	case uint:
		return Integer(int64(x))
	case float32:
		return Float(float64(x))
	case float64:
		return Float(x)
	case string:
		return Text(x)
	case []byte:
		return Bytes(x)
	case []any:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = wireToValue(e)
		}
		return ArrayOf(out)
	case map[string]any:
		v := Map()
		for k, e := range x {
			v.Set(k, wireToValue(e))
		}
		return v
	case map[any]any:
		v := Map()
		for k, e := range x {
			ks, _ := k.(string)
			v.Set(ks, wireToValue(e))
		}
		return v
	default:
		return Null()
	}
}
