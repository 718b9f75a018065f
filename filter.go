package ledb

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// IndexSource resolves a field path to the Index maintaining it and the
// storageBucket backing that index within the current transaction. It is
// implemented by txIndexSource in collection.go (spec §4.6's req_index).
type IndexSource interface {
	LookupIndex(path string) (*Index, storageBucket, bool)
}

// CompKind is the comparison operator of a filter leaf (spec §4.6/§6).
type CompKind int

const (
	CompEq CompKind = iota
	CompIn
	CompLt
	CompLe
	CompGt
	CompGe
	CompBetween
	CompHas
)

// CondKind is the boolean combinator of an internal filter node.
type CondKind int

const (
	condLeaf CondKind = iota
	CondNot
	CondAnd
	CondOr
)

// Filter is the query tree of spec §4.6: a leaf compares one field path
// against one or more KeyData values via an index; an internal node
// combines child filters with Not/And/Or.
type Filter struct {
	Cond CondKind

	// valid when Cond == condLeaf
	Path   string
	Comp   CompKind
	Val    KeyData
	Vals   []KeyData
	Lo, Hi KeyData
	LoIncl bool
	HiIncl bool

	// valid when Cond != condLeaf
	Not      *Filter
	Children []Filter
}

func FilterEq(path string, val KeyData) Filter {
	return Filter{Path: path, Comp: CompEq, Val: val}
}

func FilterIn(path string, vals []KeyData) Filter {
	return Filter{Path: path, Comp: CompIn, Vals: vals}
}

func FilterLt(path string, val KeyData) Filter { return Filter{Path: path, Comp: CompLt, Val: val} }
func FilterLe(path string, val KeyData) Filter { return Filter{Path: path, Comp: CompLe, Val: val} }
func FilterGt(path string, val KeyData) Filter { return Filter{Path: path, Comp: CompGt, Val: val} }
func FilterGe(path string, val KeyData) Filter { return Filter{Path: path, Comp: CompGe, Val: val} }

func FilterBetween(path string, lo KeyData, loIncl bool, hi KeyData, hiIncl bool) Filter {
	return Filter{Path: path, Comp: CompBetween, Lo: lo, LoIncl: loIncl, Hi: hi, HiIncl: hiIncl}
}

func FilterHas(path string) Filter {
	return Filter{Path: path, Comp: CompHas}
}

func FilterNot(f Filter) Filter {
	return Filter{Cond: CondNot, Not: &f}
}

func FilterAnd(fs ...Filter) Filter {
	return Filter{Cond: CondAnd, Children: fs}
}

func FilterOr(fs ...Filter) Filter {
	return Filter{Cond: CondOr, Children: fs}
}

// Apply folds the filter tree down to a Selection of matching primaries
// (spec §4.6), resolving each leaf's field path to an Index via src.
func (f Filter) Apply(src IndexSource) (Selection, error) {
	switch f.Cond {
	case CondNot:
		sel, err := f.Not.Apply(src)
		if err != nil {
			return Selection{}, err
		}
		return sel.Not(), nil
	case CondAnd:
		res := Selection{}.Not() // universe
		for _, child := range f.Children {
			sel, err := child.Apply(src)
			if err != nil {
				return Selection{}, err
			}
			res = res.And(sel)
		}
		return res, nil
	case CondOr:
		res := Selection{} // empty
		for _, child := range f.Children {
			sel, err := child.Apply(src)
			if err != nil {
				return Selection{}, err
			}
			res = res.Or(sel)
		}
		return res, nil
	}

	idx, bucket, ok := src.LookupIndex(f.Path)
	if !ok {
		return Selection{}, newErr(MissingIndex, "Filter.Apply", nil, "no index on field %q", f.Path)
	}

	switch f.Comp {
	case CompEq:
		return NewSelection(idx.probeSet(bucket, []KeyData{f.Val}), false), nil
	case CompIn:
		return NewSelection(idx.probeSet(bucket, f.Vals), false), nil
	case CompGt:
		return SelectionOf(idx.probeRange(bucket, &Bound{f.Val, false}, nil)), nil
	case CompGe:
		return SelectionOf(idx.probeRange(bucket, &Bound{f.Val, true}, nil)), nil
	case CompLt:
		return SelectionOf(idx.probeRange(bucket, nil, &Bound{f.Val, false})), nil
	case CompLe:
		return SelectionOf(idx.probeRange(bucket, nil, &Bound{f.Val, true})), nil
	case CompBetween:
		return SelectionOf(idx.probeRange(bucket, &Bound{f.Lo, f.LoIncl}, &Bound{f.Hi, f.HiIncl})), nil
	case CompHas:
		return SelectionOf(idx.probeRange(bucket, nil, nil)), nil
	default:
		return Selection{}, newErr(EncodingFailure, "Filter.Apply", nil, "invalid filter comparison %d", f.Comp)
	}
}

// --- JSON wire encoding (spec §6) ---
//
// Leaf:     { "field.path": { "$op": value } }
// Between:  { "field.path": { "$bw": [lo, loIncl, hi, hiIncl] } }
// Internal: {"$not": F}, {"$and":[F...]}, {"$or":[F...]}

func (f Filter) MarshalJSON() ([]byte, error) {
	switch f.Cond {
	case CondNot:
		return json.Marshal(map[string]Filter{"$not": *f.Not})
	case CondAnd:
		return json.Marshal(map[string][]Filter{"$and": f.Children})
	case CondOr:
		return json.Marshal(map[string][]Filter{"$or": f.Children})
	}

	op, val, err := f.compToJSON()
	if err != nil {
		return nil, err
	}
	inner := map[string]any{op: val}
	return json.Marshal(map[string]any{f.Path: inner})
}

func (f Filter) compToJSON() (string, any, error) {
	switch f.Comp {
	case CompEq:
		return "$eq", keyDataToJSON(f.Val), nil
	case CompIn:
		vals := make([]any, len(f.Vals))
		for i, v := range f.Vals {
			vals[i] = keyDataToJSON(v)
		}
		return "$in", vals, nil
	case CompLt:
		return "$lt", keyDataToJSON(f.Val), nil
	case CompLe:
		return "$le", keyDataToJSON(f.Val), nil
	case CompGt:
		return "$gt", keyDataToJSON(f.Val), nil
	case CompGe:
		return "$ge", keyDataToJSON(f.Val), nil
	case CompBetween:
		return "$bw", []any{keyDataToJSON(f.Lo), f.LoIncl, keyDataToJSON(f.Hi), f.HiIncl}, nil
	case CompHas:
		return "$has", true, nil
	default:
		return "", nil, fmt.Errorf("ledb: invalid filter comparison %d", f.Comp)
	}
}

func (f *Filter) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&probe); err != nil {
		return newErr(EncodingFailure, "Filter.UnmarshalJSON", err, "invalid filter JSON")
	}
	if len(probe) != 1 {
		return newErr(EncodingFailure, "Filter.UnmarshalJSON", nil, "filter object must have exactly one key, got %d", len(probe))
	}

	for key, raw := range probe {
		switch key {
		case "$not":
			var inner Filter
			if err := json.Unmarshal(raw, &inner); err != nil {
				return err
			}
			*f = Filter{Cond: CondNot, Not: &inner}
			return nil
		case "$and", "$or":
			var children []Filter
			if err := json.Unmarshal(raw, &children); err != nil {
				return err
			}
			cond := CondAnd
			if key == "$or" {
				cond = CondOr
			}
			*f = Filter{Cond: cond, Children: children}
			return nil
		default:
			return f.unmarshalLeaf(key, raw)
		}
	}
	return nil
}

func (f *Filter) unmarshalLeaf(path string, raw json.RawMessage) error {
	var opMap map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&opMap); err != nil {
		return newErr(EncodingFailure, "Filter.UnmarshalJSON", err, "invalid filter leaf for %q", path)
	}
	if len(opMap) != 1 {
		return newErr(EncodingFailure, "Filter.UnmarshalJSON", nil, "filter leaf %q must have exactly one operator", path)
	}
	for op, val := range opMap {
		switch op {
		case "$eq":
			kd, err := keyDataFromJSON(val)
			if err != nil {
				return err
			}
			*f = FilterEq(path, kd)
		case "$in":
			var rawVals []json.RawMessage
			if err := json.Unmarshal(val, &rawVals); err != nil {
				return newErr(EncodingFailure, "Filter.UnmarshalJSON", err, "$in value must be an array")
			}
			vals := make([]KeyData, len(rawVals))
			for i, rv := range rawVals {
				kd, err := keyDataFromJSON(rv)
				if err != nil {
					return err
				}
				vals[i] = kd
			}
			*f = FilterIn(path, vals)
		case "$lt", "$le", "$gt", "$ge":
			kd, err := keyDataFromJSON(val)
			if err != nil {
				return err
			}
			switch op {
			case "$lt":
				*f = FilterLt(path, kd)
			case "$le":
				*f = FilterLe(path, kd)
			case "$gt":
				*f = FilterGt(path, kd)
			case "$ge":
				*f = FilterGe(path, kd)
			}
		case "$bw":
			var parts []json.RawMessage
			if err := json.Unmarshal(val, &parts); err != nil || len(parts) != 4 {
				return newErr(EncodingFailure, "Filter.UnmarshalJSON", err, "$bw value must be a 4-element array")
			}
			lo, err := keyDataFromJSON(parts[0])
			if err != nil {
				return err
			}
			hi, err := keyDataFromJSON(parts[2])
			if err != nil {
				return err
			}
			var loIncl, hiIncl bool
			if err := json.Unmarshal(parts[1], &loIncl); err != nil {
				return newErr(EncodingFailure, "Filter.UnmarshalJSON", err, "$bw loIncl must be a bool")
			}
			if err := json.Unmarshal(parts[3], &hiIncl); err != nil {
				return newErr(EncodingFailure, "Filter.UnmarshalJSON", err, "$bw hiIncl must be a bool")
			}
			*f = FilterBetween(path, lo, loIncl, hi, hiIncl)
		case "$has":
			*f = FilterHas(path)
		default:
			return newErr(EncodingFailure, "Filter.UnmarshalJSON", nil, "unknown filter operator %q", op)
		}
		return nil
	}
	return nil
}

// keyDataToJSON renders a KeyData as the plain JSON value spec §6 expects:
// bare number/string/bool, matching the field's native JSON representation.
func keyDataToJSON(kd KeyData) any {
	switch kd.Type {
	case KeyInt:
		return kd.I
	case KeyFloat:
		return kd.F
	case KeyText:
		return kd.S
	case KeyBool:
		return kd.Bl
	case KeyBytes:
		return kd.B
	default:
		return nil
	}
}

// keyDataFromJSON infers a KeyData's KeyType from the shape of the raw JSON
// token: numbers without a fractional/exponent part decode as KeyInt,
// numbers with one as KeyFloat, matching the Integer/Float split of the
// generic value domain (spec §3). The field's actual index KeyType is
// applied later via KeyData.intoType during Apply/probeSet.
func keyDataFromJSON(raw json.RawMessage) (KeyData, error) {
	var tok any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&tok); err != nil {
		return KeyData{}, newErr(EncodingFailure, "keyDataFromJSON", err, "invalid filter value")
	}
	switch v := tok.(type) {
	case json.Number:
		if isIntegerLiteral(string(v)) {
			n, err := v.Int64()
			if err == nil {
				return KDInt(n), nil
			}
		}
		f, err := v.Float64()
		if err != nil {
			return KeyData{}, newErr(EncodingFailure, "keyDataFromJSON", err, "invalid numeric filter value %q", v)
		}
		return KDFloat(f), nil
	case string:
		return KDText(v), nil
	case bool:
		return KDBool(v), nil
	case nil:
		return KeyData{}, newErr(EncodingFailure, "keyDataFromJSON", nil, "filter value must not be null")
	default:
		return KeyData{}, newErr(EncodingFailure, "keyDataFromJSON", nil, "unsupported filter value type %T", tok)
	}
}

func isIntegerLiteral(s string) bool {
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'E' {
			return false
		}
	}
	return true
}
