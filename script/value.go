package script

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

type goValue struct {
	v any
}

// NewValue wraps a Go value as a Value.
func NewValue(v any) Value {
	return &goValue{v: v}
}

func (v *goValue) Value() any {
	return v.v
}

func (v *goValue) String() string {
	return Stringify(v.v)
}

func (v *goValue) IsTruthy() bool {
	return IsTruthy(v.v)
}

// IsTruthy reports the truthiness of a Go value. Nil, false, zero numbers,
// empty collections, the empty string and "false" are falsy.
func IsTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && strings.ToLower(t) != "false"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// Stringify renders a value for insertion into text. Strings are inserted
// as-is, nil becomes the empty string and everything else is JSON encoded.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
