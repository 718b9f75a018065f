package ledb

import (
	"encoding/json"
	"fmt"
)

// OrderKind is the sort direction of an Order (spec §4.6/§6).
type OrderKind int

const (
	Asc OrderKind = iota
	Desc
)

func (k OrderKind) jsonTag() string {
	if k == Desc {
		return "$desc"
	}
	return "$asc"
}

// Order selects how Collection.Find iterates matching documents: by
// primary key, or by an indexed field's key order (spec §4.6).
type Order struct {
	Field string // "" means order by primary
	Kind  OrderKind
}

// OrderByPrimary is the default ordering.
func OrderByPrimary(kind OrderKind) Order { return Order{Kind: kind} }

// OrderByField orders by an indexed field's key order.
func OrderByField(field string, kind OrderKind) Order { return Order{Field: field, Kind: kind} }

func (o Order) IsPrimary() bool { return o.Field == "" }

// MarshalJSON renders "$asc"/"$desc" for primary order, or
// {"field.path": "$asc"|"$desc"} for index order (spec §6).
func (o Order) MarshalJSON() ([]byte, error) {
	if o.IsPrimary() {
		return json.Marshal(o.Kind.jsonTag())
	}
	return json.Marshal(map[string]string{o.Field: o.Kind.jsonTag()})
}

func (o *Order) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		kind, err := parseOrderKind(bare)
		if err != nil {
			return err
		}
		*o = Order{Kind: kind}
		return nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return newErr(EncodingFailure, "Order.UnmarshalJSON", err, "invalid order JSON")
	}
	if len(m) != 1 {
		return newErr(EncodingFailure, "Order.UnmarshalJSON", nil, "order object must have exactly one key, got %d", len(m))
	}
	for field, tag := range m {
		kind, err := parseOrderKind(tag)
		if err != nil {
			return err
		}
		*o = Order{Field: field, Kind: kind}
	}
	return nil
}

func parseOrderKind(tag string) (OrderKind, error) {
	switch tag {
	case "$asc":
		return Asc, nil
	case "$desc":
		return Desc, nil
	default:
		return 0, newErr(EncodingFailure, "parseOrderKind", nil, "unknown order tag %q", tag)
	}
}

func (o Order) String() string {
	if o.IsPrimary() {
		return fmt.Sprintf("Order(primary,%v)", o.Kind)
	}
	return fmt.Sprintf("Order(%s,%v)", o.Field, o.Kind)
}

func (k OrderKind) String() string {
	if k == Desc {
		return "Desc"
	}
	return "Asc"
}
