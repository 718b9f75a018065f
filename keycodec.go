package ledb

import (
	"encoding/binary"
	"math"
)

// encodeKey turns a KeyData into a byte slice whose lexicographic order
// matches the logical order of the value (spec §4.1). This is the one place
// in the codebase allowed to reach below the engine's default byte-compare
// ordering: Int and Float both need a transform, Text/Bytes/Bool don't.
func encodeKey(k KeyData) []byte {
	switch k.Type {
	case KeyInt:
		return encodeIntKey(k.I)
	case KeyFloat:
		return encodeFloatKey(k.F)
	case KeyText:
		return []byte(k.S)
	case KeyBytes:
		return append([]byte(nil), k.B...)
	case KeyBool:
		if k.Bl {
			return []byte{1}
		}
		return []byte{0}
	default:
		panic("ledb: invalid KeyType")
	}
}

// decodeKey is the inverse of encodeKey for a given KeyType.
func decodeKey(t KeyType, raw []byte) (KeyData, error) {
	switch t {
	case KeyInt:
		if len(raw) != 8 {
			return KeyData{}, dataErrf(raw, 0, nil, "invalid int key length %d", len(raw))
		}
		return KDInt(decodeIntKey(raw)), nil
	case KeyFloat:
		if len(raw) != 8 {
			return KeyData{}, dataErrf(raw, 0, nil, "invalid float key length %d", len(raw))
		}
		return KDFloat(decodeFloatKey(raw)), nil
	case KeyText:
		return KDText(string(raw)), nil
	case KeyBytes:
		return KDBytes(append([]byte(nil), raw...)), nil
	case KeyBool:
		if len(raw) != 1 {
			return KeyData{}, dataErrf(raw, 0, nil, "invalid bool key length %d", len(raw))
		}
		return KDBool(raw[0] != 0), nil
	default:
		return KeyData{}, dataErrf(raw, 0, nil, "invalid KeyType %d", t)
	}
}

// encodeIntKey flips the sign bit of a two's-complement int64 so that
// unsigned big-endian byte order equals signed numeric order: the most
// negative value (sign bit 1, rest 0) becomes all-zero bytes, and the most
// positive value (sign bit 0, rest 1) becomes all-0xFF bytes.
func encodeIntKey(v int64) []byte {
	u := uint64(v) ^ (1 << 63)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], u)
	return b[:]
}

func decodeIntKey(raw []byte) int64 {
	u := binary.BigEndian.Uint64(raw)
	return int64(u ^ (1 << 63))
}

// encodeFloatKey implements the transmute-then-sign-aware-XOR scheme from
// original_source/ledb/src/float.rs: reinterpret the IEEE-754 bits as an
// int64, and if that int64 is negative, flip every bit below the sign bit.
// This produces a total order matching numeric float comparison, with
// negative zero equal to positive zero (both encode to the all-zero-magnitude
// pattern) and NaN fixed to sort after all real values (spec's pinned-down
// Open Question): NaN's bit pattern has the highest exponent+mantissa, so
// under this transform it lands at the top of the key space for any sign,
// and by normalizing NaN's sign bit to 0 before transforming we guarantee it
// sorts above +Inf rather than merely alongside it.
func encodeFloatKey(f float64) []byte {
	if math.IsNaN(f) {
		f = math.NaN() // canonical positive NaN bit pattern from math.NaN()
	}
	if f == 0 {
		f = 0 // normalize -0.0 to +0.0 before transmuting
	}
	bits := math.Float64bits(f)
	signed := int64(bits)
	if signed < 0 {
		signed ^= 0x7fffffffffffffff
	}
	// signed is now totally ordered under *signed* int64 comparison; apply
	// the same sign-bit flip used for plain integers so that unsigned
	// big-endian byte comparison (what the storage engine uses) agrees.
	return encodeIntKey(signed)
}

func decodeFloatKey(raw []byte) float64 {
	signed := decodeIntKey(raw)
	if signed < 0 {
		signed ^= 0x7fffffffffffffff
	}
	return math.Float64frombits(uint64(signed))
}
