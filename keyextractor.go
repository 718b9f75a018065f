package ledb

import "strings"

// extractKeys walks doc along the dotted field path, broadcasting through
// arrays at every step, and returns the deduplicated set of KeyData values
// of the given KeyType that index this document (spec §4.3). Values that
// fail to coerce to typ are silently dropped, per the coercion lattice.
func extractKeys(doc Value, path string, typ KeyType) []KeyData {
	seen := make(map[string]struct{})
	var out []KeyData
	segments := strings.Split(path, ".")
	extractFieldValues(doc, segments, typ, seen, &out)
	return out
}

func extractFieldValues(v Value, path []string, typ KeyType, seen map[string]struct{}, out *[]KeyData) {
	if len(path) == 0 {
		extractFieldPrimitives(v, typ, seen, out)
		return
	}
	switch v.Kind() {
	case KindArray:
		arr, _ := v.AsArray()
		for _, elem := range arr {
			extractFieldValues(elem, path, typ, seen, out)
		}
	case KindMap:
		child, ok := v.Get(path[0])
		if !ok {
			return
		}
		extractFieldValues(child, path[1:], typ, seen, out)
	default:
		// scalar with remaining path segments: no match, yield nothing.
	}
}

func extractFieldPrimitives(v Value, typ KeyType, seen map[string]struct{}, out *[]KeyData) {
	if v.Kind() == KindArray {
		arr, _ := v.AsArray()
		for _, elem := range arr {
			extractFieldPrimitives(elem, typ, seen, out)
		}
		return
	}
	kd, ok := keyDataFromValue(v)
	if !ok {
		return
	}
	coerced, ok := kd.intoType(typ)
	if !ok {
		return
	}
	dedupKey := string(encodeKey(coerced))
	if _, dup := seen[dedupKey]; dup {
		return
	}
	seen[dedupKey] = struct{}{}
	*out = append(*out, coerced)
}
