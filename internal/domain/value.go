package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a tagged-union representation of an arbitrary JSON-like document.
// Provider payloads are decoded into it once, and the date inference scan
// operates on Values only, independent of any serialization format.
//
// Numbers keep their original literal text alongside the parsed float so the
// digit-count heuristics in dateinfer.go see exactly what the provider sent
// (a float64 round-trip would turn 20240115123045 into scientific notation
// in some formatters).
type Value struct {
	kind    Kind
	boolVal bool
	numVal  float64
	literal string // number literal or string content
	arr     []Value
	obj     map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, boolVal: b} }

// Number wraps a float64. The literal is derived with strconv; use
// NumberLiteral when the original text matters.
func Number(f float64) Value {
	return Value{kind: KindNumber, numVal: f, literal: strconv.FormatFloat(f, 'f', -1, 64)}
}

// NumberLiteral wraps a numeric value while preserving its source text.
func NumberLiteral(lit string) (Value, error) {
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return Value{}, fmt.Errorf("invalid number literal %q: %w", lit, err)
	}
	return Value{kind: KindNumber, numVal: f, literal: lit}, nil
}

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, literal: s} }

// Array wraps an ordered sequence of Values.
func Array(items ...Value) Value { return Value{kind: KindArray, arr: items} }

// Object wraps a map of Values.
func Object(fields map[string]Value) Value { return Value{kind: KindObject, obj: fields} }

// Kind reports which variant this Value holds.
func (v Value) Kind() Kind { return v.kind }

// StringVal returns the string content; valid only for KindString.
func (v Value) StringVal() string { return v.literal }

// NumberVal returns the parsed number; valid only for KindNumber.
func (v Value) NumberVal() float64 { return v.numVal }

// BoolVal returns the boolean; valid only for KindBool.
func (v Value) BoolVal() bool { return v.boolVal }

// Items returns the element slice; valid only for KindArray.
func (v Value) Items() []Value { return v.arr }

// Fields returns the member map; valid only for KindObject.
func (v Value) Fields() map[string]Value { return v.obj }

// scalarText returns the text form the date heuristics should inspect, and
// whether this Value is a scalar at all.
func (v Value) scalarText() (string, bool) {
	switch v.kind {
	case KindString, KindNumber:
		return v.literal, true
	default:
		return "", false
	}
}

// ValueFromJSON decodes raw JSON bytes into a Value tree. Number literals are
// preserved verbatim via json.Number.
func ValueFromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("decode payload: %w", err)
	}
	return valueFromAny(raw)
}

func valueFromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case json.Number:
		return NumberLiteral(x.String())
	case float64:
		return Number(x), nil
	case []any:
		items := make([]Value, 0, len(x))
		for _, item := range x {
			v, err := valueFromAny(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return Array(items...), nil
	case map[string]any:
		fields := make(map[string]Value, len(x))
		for k, item := range x {
			v, err := valueFromAny(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = v
		}
		return Object(fields), nil
	default:
		return Value{}, fmt.Errorf("unsupported payload node type %T", raw)
	}
}
