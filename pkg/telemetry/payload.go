package telemetry

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/janael-pinheiro/cncjs-mqtt-bridge/pkg/entities"
	"github.com/pkg/errors"
)

const (
	// maxSearchNodes bounds the recursive key search over a single payload.
	maxSearchNodes = 10000
	// maxNestingDepth matches the nesting limit of encoding/json.Unmarshal, which the
	// token API does not enforce.
	maxNestingDepth = 10000
)

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	return [...]string{"null", "bool", "number", "string", "array", "object"}[k]
}

// Field is one object property; objects keep document order.
type Field struct {
	Key   string
	Value Value
}

// Value is a decoded JSON node.
type Value struct {
	Kind   Kind
	Bool   bool
	Text   string // string contents, or the literal of a number
	Items  []Value
	Fields []Field
}

// ParseValue decodes raw JSON into a Value, keeping object keys in document order.
func ParseValue(raw []byte) (Value, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	value, err := decodeValue(decoder, 0)
	if err != nil {
		return Value{}, errors.Wrap(entities.ErrMalformedPayload, err.Error())
	}
	if _, err := decoder.Token(); err != io.EOF {
		return Value{}, errors.Wrap(entities.ErrMalformedPayload, "trailing data after payload")
	}
	return value, nil
}

func decodeValue(decoder *json.Decoder, depth int) (Value, error) {
	token, err := decoder.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := token.(type) {
	case json.Delim:
		if depth >= maxNestingDepth {
			return Value{}, errors.Errorf("nesting exceeds %d levels", maxNestingDepth)
		}
		switch t {
		case '{':
			value := Value{Kind: KindObject}
			for decoder.More() {
				keyToken, err := decoder.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyToken.(string)
				if !ok {
					return Value{}, errors.Errorf("object key %v is not a string", keyToken)
				}
				child, err := decodeValue(decoder, depth+1)
				if err != nil {
					return Value{}, err
				}
				value.Fields = append(value.Fields, Field{Key: key, Value: child})
			}
			_, err := decoder.Token()
			return value, err
		case '[':
			value := Value{Kind: KindArray}
			for decoder.More() {
				child, err := decodeValue(decoder, depth+1)
				if err != nil {
					return Value{}, err
				}
				value.Items = append(value.Items, child)
			}
			_, err := decoder.Token()
			return value, err
		}
		return Value{}, errors.Errorf("unexpected delimiter %v", t)
	case string:
		return Value{Kind: KindString, Text: t}, nil
	case json.Number:
		return Value{Kind: KindNumber, Text: t.String()}, nil
	case bool:
		return Value{Kind: KindBool, Bool: t}, nil
	case nil:
		return Value{Kind: KindNull}, nil
	}
	return Value{}, errors.Errorf("unexpected token %v", token)
}

// Get returns the first property named key of an object.
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindObject {
		return Value{}, false
	}
	for _, field := range v.Fields {
		if field.Key == key {
			return field.Value, true
		}
	}
	return Value{}, false
}

// Path follows nested object keys.
func (v Value) Path(keys ...string) (Value, bool) {
	current := v
	for _, key := range keys {
		next, ok := current.Get(key)
		if !ok {
			return Value{}, false
		}
		current = next
	}
	return current, true
}

// AsFloat coerces numbers and numeric-looking strings.
func (v Value) AsFloat() (float64, bool) {
	if v.Kind != KindNumber && v.Kind != KindString {
		return 0, false
	}
	number, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
	if err != nil {
		return 0, false
	}
	return number, true
}

// AsString returns the text of strings and the literal of numbers.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindNumber && v.Kind != KindString {
		return "", false
	}
	return v.Text, true
}

// Find searches the tree depth-first in pre-order for a property named key whose value
// satisfies accept. Properties are visited in document order; the first match wins.
func (v Value) Find(key string, accept func(Value) bool) (Value, bool) {
	budget := maxSearchNodes
	return find(v, key, accept, &budget)
}

func find(node Value, key string, accept func(Value) bool, budget *int) (Value, bool) {
	if *budget <= 0 {
		return Value{}, false
	}
	*budget--
	switch node.Kind {
	case KindObject:
		for _, field := range node.Fields {
			if field.Key == key && accept(field.Value) {
				return field.Value, true
			}
			if found, ok := find(field.Value, key, accept, budget); ok {
				return found, true
			}
		}
	case KindArray:
		for _, item := range node.Items {
			if found, ok := find(item, key, accept, budget); ok {
				return found, true
			}
		}
	}
	return Value{}, false
}
