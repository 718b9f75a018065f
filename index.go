package ledb

import (
	"bytes"
	"encoding/binary"
)

// Index is a per-(collection,path) secondary structure mapping KeyData to
// one or more primaries, backed by a single storageBucket (spec §4.4).
// Unique indexes store the primary as the bucket value directly; Duplicate
// indexes append the primary onto the encoded key and store an empty
// value, emulating a multi-value index on top of a single-value-per-key
// bucket.
type Index struct {
	Collection string
	Path       string
	Kind       IndexKind
	KeyType    KeyType
}

func NewIndex(collection, path string, kind IndexKind, keyType KeyType) *Index {
	return &Index{Collection: collection, Path: path, Kind: kind, KeyType: keyType}
}

func primaryBytes(primary uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], primary)
	return b[:]
}

func decodePrimaryBytes(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

func dupKey(raw []byte, primary uint32) []byte {
	out := make([]byte, len(raw)+4)
	copy(out, raw)
	binary.BigEndian.PutUint32(out[len(raw):], primary)
	return out
}

func keyPart(k []byte, kind IndexKind) []byte {
	if kind == Duplicate && len(k) >= 4 {
		return k[:len(k)-4]
	}
	return k
}

func hasPrefix(k, prefix []byte) bool {
	return len(k) >= len(prefix) && bytes.Equal(k[:len(prefix)], prefix)
}

func (idx *Index) put(bucket storageBucket, kd KeyData, primary uint32) error {
	raw := encodeKey(kd)
	switch idx.Kind {
	case Unique:
		if bucket.Get(raw) != nil {
			return newErr(ConstraintConflict, "Index.put", nil, "duplicate key %v on unique index %s.%s", kd, idx.Collection, idx.Path)
		}
		return bucket.Put(raw, primaryBytes(primary))
	default: // Duplicate
		key := dupKey(raw, primary)
		if bucket.Get(key) != nil {
			return newErr(ConstraintConflict, "Index.put", nil, "duplicate (key,primary) pair on index %s.%s", idx.Collection, idx.Path)
		}
		return bucket.Put(key, []byte{})
	}
}

func (idx *Index) remove(bucket storageBucket, kd KeyData, primary uint32) error {
	raw := encodeKey(kd)
	if idx.Kind == Unique {
		return bucket.Delete(raw)
	}
	return bucket.Delete(dupKey(raw, primary))
}

// maintain updates the index after a document write: it extracts OldKeys
// and NewKeys from oldDoc/newDoc (either may be the zero Value, meaning "no
// document") and applies only their symmetric difference, leaving unchanged
// keys untouched (spec §4.4).
func (idx *Index) maintain(bucket storageBucket, oldDoc, newDoc Value, primary uint32) error {
	var oldKeys, newKeys []KeyData
	if !oldDoc.IsNull() {
		oldKeys = extractKeys(oldDoc, idx.Path, idx.KeyType)
	}
	if !newDoc.IsNull() {
		newKeys = extractKeys(newDoc, idx.Path, idx.KeyType)
	}

	oldSet := keySetByEncoding(oldKeys)
	newSet := keySetByEncoding(newKeys)

	for enc, kd := range oldSet {
		if _, stillPresent := newSet[enc]; !stillPresent {
			if err := idx.remove(bucket, kd, primary); err != nil {
				return err
			}
		}
	}
	for enc, kd := range newSet {
		if _, alreadyPresent := oldSet[enc]; !alreadyPresent {
			if err := idx.put(bucket, kd, primary); err != nil {
				return err
			}
		}
	}
	return nil
}

func keySetByEncoding(keys []KeyData) map[string]KeyData {
	out := make(map[string]KeyData, len(keys))
	for _, k := range keys {
		out[string(encodeKey(k))] = k
	}
	return out
}

// probeSet coerces each candidate key to the index's KeyType and collects
// the union of matching primaries (spec §4.4). Keys that fail to coerce
// are silently skipped.
func (idx *Index) probeSet(bucket storageBucket, keys []KeyData) map[uint32]struct{} {
	out := make(map[uint32]struct{})
	for _, k := range keys {
		coerced, ok := k.intoType(idx.KeyType)
		if !ok {
			continue
		}
		raw := encodeKey(coerced)
		if idx.Kind == Unique {
			if v := bucket.Get(raw); v != nil {
				out[decodePrimaryBytes(v)] = struct{}{}
			}
			continue
		}
		cur := bucket.Cursor()
		for ck, _ := cur.Seek(raw); ck != nil && hasPrefix(ck, raw); ck, _ = cur.Next() {
			if len(ck) == len(raw)+4 {
				out[decodePrimaryBytes(ck[len(raw):])] = struct{}{}
			}
		}
	}
	return out
}

// Bound is one end of a range probe: a key with an inclusive/exclusive
// flag. A nil Bound means unbounded on that side (spec §4.4).
type Bound struct {
	Key       KeyData
	Inclusive bool
}

// probeRange scans the index in ascending key order from lo (or the start)
// to hi (or the end), honoring each bound's inclusivity, and returns every
// matching primary in ascending key order. For Duplicate indexes every
// primary stored at a matching key is included.
func (idx *Index) probeRange(bucket storageBucket, lo, hi *Bound) []uint32 {
	var out []uint32
	cur := bucket.Cursor()

	var k, v []byte
	if lo != nil {
		coerced, ok := lo.Key.intoType(idx.KeyType)
		if !ok {
			return nil
		}
		raw := encodeKey(coerced)
		k, v = cur.Seek(raw)
		if !lo.Inclusive {
			for k != nil && bytes.Equal(keyPart(k, idx.Kind), raw) {
				k, v = cur.Next()
			}
		}
	} else {
		k, v = cur.First()
	}

	var hiRaw []byte
	if hi != nil {
		coerced, ok := hi.Key.intoType(idx.KeyType)
		if !ok {
			return out
		}
		hiRaw = encodeKey(coerced)
	}

	for k != nil {
		if hiRaw != nil {
			cmp := bytes.Compare(keyPart(k, idx.Kind), hiRaw)
			if cmp > 0 || (cmp == 0 && !hi.Inclusive) {
				break
			}
		}
		if idx.Kind == Unique {
			out = append(out, decodePrimaryBytes(v))
		} else if len(k) >= 4 {
			out = append(out, decodePrimaryBytes(k[len(k)-4:]))
		}
		k, v = cur.Next()
	}
	return out
}

// iteratePrimaries returns every primary in the index in ascending (or, if
// desc, descending) key order, for index-ordered finds.
func (idx *Index) iteratePrimaries(bucket storageBucket, desc bool) []uint32 {
	var out []uint32
	cur := bucket.Cursor()

	var k, v []byte
	if desc {
		k, v = cur.Last()
	} else {
		k, v = cur.First()
	}
	for k != nil {
		if idx.Kind == Unique {
			out = append(out, decodePrimaryBytes(v))
		} else if len(k) >= 4 {
			out = append(out, decodePrimaryBytes(k[len(k)-4:]))
		}
		if desc {
			k, v = cur.Prev()
		} else {
			k, v = cur.Next()
		}
	}
	return out
}
