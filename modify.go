package ledb

import (
	"encoding/json"
	"math"
	"regexp"
)

// ActionKind is the operator tag of one Modify action (spec §4.8).
type ActionKind int

const (
	ActSet ActionKind = iota
	ActDelete
	ActAdd
	ActSub
	ActMul
	ActDiv
	ActToggle
	ActReplace
	ActSplice
	ActMerge
)

func (k ActionKind) jsonTag() string {
	switch k {
	case ActSet:
		return "$set"
	case ActDelete:
		return "$delete"
	case ActAdd:
		return "$add"
	case ActSub:
		return "$sub"
	case ActMul:
		return "$mul"
	case ActDiv:
		return "$div"
	case ActToggle:
		return "$toggle"
	case ActReplace:
		return "$replace"
	case ActSplice:
		return "$splice"
	case ActMerge:
		return "$merge"
	default:
		return "?"
	}
}

// epsilon matches Rust's std::f64::EPSILON: after applying a numeric
// action, a Float whose value is within epsilon of its truncation
// collapses back to Integer (spec §4.8's numeric-widen/collapse rule).
const epsilon = 2.220446049250313e-16

// Action is one modification to apply to a field (spec §4.8): Set/Delete
// apply at any value type; Add/Sub/Mul/Div/Toggle/Replace are
// primitive-typed; Add/Sub/Splice on an Array and Merge on a Map are
// collection-typed and no-ops against a value of any other shape.
type Action struct {
	Kind ActionKind

	Val         Value          // Set, Add, Sub, Mul, Div, Merge
	Regex       *regexp.Regexp // Replace
	RegexSource string         // Replace, kept for JSON round-tripping
	Subst       string         // Replace
	Off, End    int            // Splice
	Ins         []Value        // Splice
}

func ActionSet(v Value) Action    { return Action{Kind: ActSet, Val: v} }
func ActionDelete() Action        { return Action{Kind: ActDelete} }
func ActionAdd(v Value) Action    { return Action{Kind: ActAdd, Val: v} }
func ActionSub(v Value) Action    { return Action{Kind: ActSub, Val: v} }
func ActionMul(v Value) Action    { return Action{Kind: ActMul, Val: v} }
func ActionDiv(v Value) Action    { return Action{Kind: ActDiv, Val: v} }
func ActionToggle() Action        { return Action{Kind: ActToggle} }
func ActionMerge(v Value) Action  { return Action{Kind: ActMerge, Val: v} }

func ActionSplice(off, end int, ins []Value) Action {
	return Action{Kind: ActSplice, Off: off, End: end, Ins: ins}
}

// ActionReplace compiles pattern and builds a $replace action; invalid
// regex patterns are reported immediately rather than at apply time.
func ActionReplace(pattern, subst string) (Action, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Action{}, newErr(EncodingFailure, "ActionReplace", err, "invalid regular expression %q", pattern)
	}
	return Action{Kind: ActReplace, Regex: re, RegexSource: pattern, Subst: subst}, nil
}

// Modify is `{path -> []Action}` (spec §4.8).
type Modify struct {
	fields map[string][]Action
}

// NewModify builds an empty Modify.
func NewModify() *Modify { return &Modify{fields: map[string][]Action{}} }

// Add appends action to the list of actions for field.
func (m *Modify) Add(field string, action Action) *Modify {
	if m.fields == nil {
		m.fields = map[string][]Action{}
	}
	m.fields[field] = append(m.fields[field], action)
	return m
}

// Apply walks val recursively, applying every matching action at each
// field path (spec §4.8), and returns the modified value. val is not
// mutated in place.
func (m *Modify) Apply(val Value) Value {
	return modifyValue(m.fields, "", val)
}

func modifyValue(mods map[string][]Action, pfx string, val Value) Value {
	if acts, ok := mods[pfx]; ok {
		for _, act := range acts {
			switch act.Kind {
			case ActSet:
				val = act.Val
			case ActDelete:
				val = Null()
			}
		}
	}

	switch val.Kind() {
	case KindInteger, KindFloat, KindText, KindBool, KindBytes:
		return modifyPrimitive(mods, pfx, val)
	case KindArray:
		return modifyArray(mods, pfx, val)
	case KindMap:
		return modifyMap(mods, pfx, val)
	default:
		return val
	}
}

func modifyArray(mods map[string][]Action, pfx string, val Value) Value {
	arr, _ := val.AsArray()
	vec := append([]Value(nil), arr...)

	if acts, ok := mods[pfx]; ok {
		for _, act := range acts {
			switch act.Kind {
			case ActAdd:
				if act.Val.Kind() != KindArray {
					continue
				}
				elms, _ := act.Val.AsArray()
				for _, elm := range elms {
					if !containsValue(vec, elm) {
						vec = append(vec, elm)
					}
				}
			case ActSub:
				if act.Val.Kind() != KindArray {
					continue
				}
				elms, _ := act.Val.AsArray()
				for _, elm := range elms {
					if i := indexOfValue(vec, elm); i >= 0 {
						vec = append(vec[:i], vec[i+1:]...)
					}
				}
			case ActSplice:
				beg := clampSpliceIndex(act.Off, len(vec))
				end := clampSpliceIndex(act.End, len(vec))
				if beg > end {
					beg, end = end, beg
				}
				out := append([]Value{}, vec[:beg]...)
				out = append(out, act.Ins...)
				out = append(out, vec[end:]...)
				vec = out
			}
		}
	}

	out := make([]Value, len(vec))
	for i, e := range vec {
		out[i] = modifyValue(mods, pfx, e)
	}
	return ArrayOf(out)
}

// clampSpliceIndex resolves a possibly-negative splice offset (counted
// from the end, -1 meaning the end and -2 the last element) to an in-bounds index,
// matching the original_source splice semantics.
func clampSpliceIndex(off, n int) int {
	var idx int
	if off >= 0 {
		idx = off
	} else {
		idx = n - (-1 - off)
		if idx < 0 {
			idx = 0
		}
	}
	if idx > n {
		idx = n
	}
	return idx
}

func containsValue(vec []Value, v Value) bool {
	return indexOfValue(vec, v) >= 0
}

func indexOfValue(vec []Value, v Value) int {
	for i, e := range vec {
		if e.Equal(v) {
			return i
		}
	}
	return -1
}

func modifyMap(mods map[string][]Action, pfx string, val Value) Value {
	keys := append([]string(nil), val.Keys()...)
	values := make(map[string]Value, len(keys))
	for _, k := range keys {
		v, _ := val.Get(k)
		values[k] = v
	}

	if acts, ok := mods[pfx]; ok {
		for _, act := range acts {
			if act.Kind != ActMerge || act.Val.Kind() != KindMap {
				continue
			}
			for _, k := range act.Val.Keys() {
				mv, _ := act.Val.Get(k)
				if _, exists := values[k]; !exists {
					keys = append(keys, k)
				}
				values[k] = mv
			}
		}
	}

	out := Map()
	for _, k := range keys {
		field := nestedField(pfx, k)
		out.Set(k, modifyValue(mods, field, values[k]))
	}
	return out
}

func nestedField(pfx, key string) string {
	if pfx == "" {
		return key
	}
	return pfx + "." + key
}

func modifyPrimitive(mods map[string][]Action, pfx string, val Value) Value {
	if acts, ok := mods[pfx]; ok {
		for _, act := range acts {
			next, applied := applyPrimitiveAction(val, act)
			if applied {
				val = next
			}
		}
	}

	if f, ok := val.AsFloat(); ok {
		if math.Abs(math.Trunc(f)-f) < epsilon {
			return Integer(int64(f))
		}
	}
	return val
}

func applyPrimitiveAction(val Value, act Action) (Value, bool) {
	switch act.Kind {
	case ActAdd:
		return numericOrConcat(val, act.Val, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b })
	case ActSub:
		return numericOrConcat(val, act.Val, func(a, b int64) int64 { return a - b }, func(a, b float64) float64 { return a - b })
	case ActMul:
		return numeric(val, act.Val, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b })
	case ActDiv:
		return numeric(val, act.Val, func(a, b int64) int64 { return a / b }, func(a, b float64) float64 { return a / b })
	case ActToggle:
		if b, ok := val.AsBool(); ok {
			return Bool(!b), true
		}
		return val, false
	case ActReplace:
		if s, ok := val.AsText(); ok && act.Regex != nil {
			return Text(act.Regex.ReplaceAllString(s, act.Subst)), true
		}
		return val, false
	default:
		return val, false
	}
}

// numericOrConcat applies Add/Sub's numeric widening for Integer/Float
// operands, and additionally implements Add's string-concat and
// byte-append special cases (Sub has no string/bytes counterpart).
func numericOrConcat(val, arg Value, intOp func(a, b int64) int64, floatOp func(a, b float64) float64) (Value, bool) {
	if s, ok := val.AsText(); ok {
		if a, ok := arg.AsText(); ok {
			return Text(s + a), true
		}
		return val, false
	}
	if by, ok := val.AsBytes(); ok {
		if a, ok := arg.AsBytes(); ok {
			out := make([]byte, 0, len(by)+len(a))
			out = append(out, by...)
			out = append(out, a...)
			return Bytes(out), true
		}
		return val, false
	}
	return numeric(val, arg, intOp, floatOp)
}

func numeric(val, arg Value, intOp func(a, b int64) int64, floatOp func(a, b float64) float64) (Value, bool) {
	vi, vIsInt := val.AsInteger()
	vf, vIsFloat := val.AsFloat()
	ai, aIsInt := arg.AsInteger()
	af, aIsFloat := arg.AsFloat()

	switch {
	case vIsInt && aIsInt:
		return Integer(intOp(vi, ai)), true
	case vIsInt && aIsFloat:
		return Float(floatOp(float64(vi), af)), true
	case vIsFloat && aIsInt:
		return Float(floatOp(vf, float64(ai))), true
	case vIsFloat && aIsFloat:
		return Float(floatOp(vf, af)), true
	default:
		return val, false
	}
}

// --- JSON wire encoding (spec §6/§4.8) ---

func (m Modify) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.fields))
	for field, acts := range m.fields {
		if len(acts) == 0 {
			continue
		}
		var raw json.RawMessage
		var err error
		if len(acts) == 1 {
			raw, err = json.Marshal(acts[0])
		} else {
			raw, err = json.Marshal(acts)
		}
		if err != nil {
			return nil, err
		}
		out[field] = raw
	}
	return json.Marshal(out)
}

func (m *Modify) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return newErr(EncodingFailure, "Modify.UnmarshalJSON", err, "invalid modify JSON")
	}
	fields := make(map[string][]Action, len(raw))
	for field, r := range raw {
		var multi []Action
		if err := json.Unmarshal(r, &multi); err == nil {
			fields[field] = multi
			continue
		}
		var single Action
		if err := json.Unmarshal(r, &single); err != nil {
			return newErr(EncodingFailure, "Modify.UnmarshalJSON", err, "invalid actions for field %q", field)
		}
		fields[field] = []Action{single}
	}
	m.fields = fields
	return nil
}

func (a Action) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case ActDelete, ActToggle:
		return json.Marshal(map[string]any{a.Kind.jsonTag(): nil})
	case ActSet, ActAdd, ActSub, ActMul, ActDiv, ActMerge:
		return json.Marshal(map[string]Value{a.Kind.jsonTag(): a.Val})
	case ActReplace:
		return json.Marshal(map[string][2]string{a.Kind.jsonTag(): {a.RegexSource, a.Subst}})
	case ActSplice:
		arr := make([]any, 2+len(a.Ins))
		arr[0] = a.Off
		arr[1] = a.End
		for i, v := range a.Ins {
			arr[2+i] = v
		}
		return json.Marshal(map[string][]any{a.Kind.jsonTag(): arr})
	default:
		return nil, newErr(EncodingFailure, "Action.MarshalJSON", nil, "invalid action kind %d", a.Kind)
	}
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return newErr(EncodingFailure, "Action.UnmarshalJSON", err, "invalid action JSON")
	}
	if len(probe) != 1 {
		return newErr(EncodingFailure, "Action.UnmarshalJSON", nil, "action object must have exactly one key, got %d", len(probe))
	}
	for tag, raw := range probe {
		switch tag {
		case "$set":
			var v Value
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			*a = ActionSet(v)
		case "$delete":
			*a = ActionDelete()
		case "$add":
			var v Value
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			*a = ActionAdd(v)
		case "$sub":
			var v Value
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			*a = ActionSub(v)
		case "$mul":
			var v Value
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			*a = ActionMul(v)
		case "$div":
			var v Value
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			*a = ActionDiv(v)
		case "$toggle":
			*a = ActionToggle()
		case "$replace":
			var pair [2]string
			if err := json.Unmarshal(raw, &pair); err != nil {
				return newErr(EncodingFailure, "Action.UnmarshalJSON", err, "$replace value must be [pattern, substitution]")
			}
			act, err := ActionReplace(pair[0], pair[1])
			if err != nil {
				return err
			}
			*a = act
		case "$splice":
			var arr []json.RawMessage
			if err := json.Unmarshal(raw, &arr); err != nil || len(arr) < 2 {
				return newErr(EncodingFailure, "Action.UnmarshalJSON", err, "$splice value must be [off, end, ...values]")
			}
			var off, end int
			if err := json.Unmarshal(arr[0], &off); err != nil {
				return newErr(EncodingFailure, "Action.UnmarshalJSON", err, "$splice off must be an integer")
			}
			if err := json.Unmarshal(arr[1], &end); err != nil {
				return newErr(EncodingFailure, "Action.UnmarshalJSON", err, "$splice end must be an integer")
			}
			ins := make([]Value, len(arr)-2)
			for i, r := range arr[2:] {
				if err := json.Unmarshal(r, &ins[i]); err != nil {
					return err
				}
			}
			*a = ActionSplice(off, end, ins)
		case "$merge":
			var v Value
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			*a = ActionMerge(v)
		default:
			return newErr(EncodingFailure, "Action.UnmarshalJSON", nil, "unknown modify action %q", tag)
		}
		return nil
	}
	return nil
}
