// Package tree models extraction output as a tagged variant so the enricher can
// dispatch on Kind instead of probing runtime types. Objects keep their key order.
package tree

import (
	"encoding/json"
	"strconv"
	"strings"
)

type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Object
	Array
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Object:
		return "object"
	case Array:
		return "array"
	default:
		return "unknown"
	}
}

// Member is one key of an Object.
type Member struct {
	Key   string
	Value Value
}

// Value is an immutable JSON-like node. The zero Value is null.
type Value struct {
	kind    Kind
	b       bool
	num     json.Number
	str     string
	members []Member
	items   []Value
}

func NullValue() Value           { return Value{} }
func BoolValue(b bool) Value     { return Value{kind: Bool, b: b} }
func StringValue(s string) Value { return Value{kind: String, str: s} }
func NumberValue(n json.Number) Value {
	return Value{kind: Number, num: n}
}

// FloatValue stores f using the shortest representation that round-trips.
func FloatValue(f float64) Value {
	return NumberValue(json.Number(strconv.FormatFloat(f, 'f', -1, 64)))
}

func IntValue(i int64) Value { return NumberValue(json.Number(strconv.FormatInt(i, 10))) }

func ObjectValue(members ...Member) Value {
	if members == nil {
		members = []Member{}
	}
	return Value{kind: Object, members: members}
}

func ArrayValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: Array, items: items}
}

func (v Value) Kind() Kind          { return v.kind }
func (v Value) IsNull() bool        { return v.kind == Null }
func (v Value) IsScalar() bool      { return v.kind != Object && v.kind != Array }
func (v Value) Bool() bool          { return v.b }
func (v Value) Number() json.Number { return v.num }
func (v Value) Str() string         { return v.str }
func (v Value) Members() []Member   { return v.members }
func (v Value) Items() []Value      { return v.items }
func (v Value) Len() int {
	switch v.kind {
	case Object:
		return len(v.members)
	case Array:
		return len(v.items)
	}
	return 0
}

// Get returns the value stored under key in an Object.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

func (v Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// With returns a copy of the object with key set; existing keys keep their position.
func (v Value) With(key string, val Value) Value {
	members := make([]Member, 0, len(v.members)+1)
	replaced := false
	for _, m := range v.members {
		if m.Key == key {
			m.Value = val
			replaced = true
		}
		members = append(members, m)
	}
	if !replaced {
		members = append(members, Member{Key: key, Value: val})
	}
	return Value{kind: Object, members: members}
}

// Text renders a scalar the way it is compared against OCR text.
// Containers fall back to their compact JSON encoding.
func (v Value) Text() string {
	switch v.kind {
	case Null:
		return ""
	case Bool:
		return strconv.FormatBool(v.b)
	case Number:
		return v.num.String()
	case String:
		return v.str
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

// IsBlank reports whether the value carries nothing to locate: null or a whitespace-only string.
func (v Value) IsBlank() bool {
	switch v.kind {
	case Null:
		return true
	case String:
		return strings.TrimSpace(v.str) == ""
	}
	return false
}

// Equal reports deep equality; object members must appear in the same order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == o.b
	case Number:
		return v.num == o.num
	case String:
		return v.str == o.str
	case Object:
		if len(v.members) != len(o.members) {
			return false
		}
		for i := range v.members {
			if v.members[i].Key != o.members[i].Key || !v.members[i].Value.Equal(o.members[i].Value) {
				return false
			}
		}
		return true
	case Array:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}
