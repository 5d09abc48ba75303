// Package jsonx is the JSON codec shared by the transport and the query
// types. The backend may emit NaN and Infinity, which encoding/json
// rejects in both directions, so non-finite numbers become null on the
// way out and bare NaN/Infinity/-Infinity tokens become null on the way
// in. The conversion is lossy.
package jsonx

import (
	"bytes"
	"encoding"
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"unsafe"
)

var (
	marshalerType     = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// Marshal encodes v after Sanitize.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(Sanitize(v))
}

// Unmarshal decodes data into out after ReplaceNonFinite.
func Unmarshal(data []byte, out any) error {
	return json.Unmarshal(ReplaceNonFinite(data), out)
}

// Sanitize returns v with every NaN or infinite float replaced by nil. It
// walks maps, slices, arrays, pointers, interfaces and structs; values
// implementing json.Marshaler or encoding.TextMarshaler are returned
// untouched. v itself is never modified; containers are copied only when
// something changed. A struct that holds a non-finite float is turned into
// a map keyed the way encoding/json names its fields.
func Sanitize(v any) any {
	out, _ := sanitize(reflect.ValueOf(v))
	return out
}

func sanitize(rv reflect.Value) (any, bool) {
	if !rv.IsValid() {
		return nil, false
	}
	if rv.Kind() != reflect.Interface && implementsMarshaler(rv.Type()) {
		return rv.Interface(), false
	}
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, true
		}
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return rv.Interface(), false
		}
		inner, changed := sanitize(rv.Elem())
		if changed {
			return inner, true
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
			break
		}
		var out map[string]any
		iter := rv.MapRange()
		for iter.Next() {
			val, changed := sanitize(iter.Value())
			if changed && out == nil {
				out = make(map[string]any, rv.Len())
			}
			if changed {
				out[iter.Key().String()] = val
			}
		}
		if out == nil {
			break
		}
		iter = rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			if _, done := out[k]; !done {
				out[k] = iter.Value().Interface()
			}
		}
		return out, true
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			break
		}
		var out []any
		for i := 0; i < rv.Len(); i++ {
			val, changed := sanitize(rv.Index(i))
			if changed && out == nil {
				out = make([]any, rv.Len())
				for j := 0; j < i; j++ {
					out[j] = rv.Index(j).Interface()
				}
			}
			if out != nil {
				out[i] = val
			}
		}
		if out != nil {
			return out, true
		}
	case reflect.Struct:
		if out, changed := sanitizeStruct(rv); changed {
			return out, true
		}
	}
	return rv.Interface(), false
}

func implementsMarshaler(t reflect.Type) bool {
	return t.Implements(marshalerType) || t.Implements(textMarshalerType) ||
		reflect.PointerTo(t).Implements(marshalerType)
}

// sanitizeStruct flattens rv into a map with encoding/json field naming:
// json tag names, "-", omitempty, omitzero, the string option and promoted
// fields of untagged embedded structs. Shallower fields win over promoted
// ones.
func sanitizeStruct(rv reflect.Value) (map[string]any, bool) {
	if !rv.CanAddr() {
		c := reflect.New(rv.Type()).Elem()
		c.Set(rv)
		rv = c
	}
	out := make(map[string]any, rv.NumField())
	changed := false
	var embedded []reflect.Value
	for i := 0; i < rv.NumField(); i++ {
		sf := rv.Type().Field(i)
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fv := rv.Field(i)

		if sf.Anonymous && name == "" {
			t := sf.Type
			if t.Kind() == reflect.Pointer {
				t = t.Elem()
			}
			if t.Kind() == reflect.Struct && !implementsMarshaler(sf.Type) {
				switch {
				case sf.Type.Kind() == reflect.Pointer:
					if !sf.IsExported() || fv.IsNil() {
						continue
					}
					fv = fv.Elem()
				case !sf.IsExported():
					// Promoted fields of an unexported embedded type are
					// still encoded; reach them through the field address.
					fv = reflect.NewAt(fv.Type(), unsafe.Pointer(fv.UnsafeAddr())).Elem()
				}
				embedded = append(embedded, fv)
				continue
			}
		}
		if !sf.IsExported() {
			continue
		}
		if name == "" {
			name = sf.Name
		}
		if hasOption(opts, "omitempty") && isEmptyValue(fv) {
			continue
		}
		if hasOption(opts, "omitzero") && fv.IsZero() {
			continue
		}

		val, fieldChanged := sanitize(fv)
		changed = changed || fieldChanged
		if hasOption(opts, "string") && !fieldChanged && isScalar(fv.Kind()) {
			if data, err := json.Marshal(val); err == nil {
				val = string(data)
			}
		}
		out[name] = val
	}
	for _, ev := range embedded {
		inner, innerChanged := sanitizeStruct(ev)
		changed = changed || innerChanged
		for k, v := range inner {
			if _, taken := out[k]; !taken {
				out[k] = v
			}
		}
	}
	return out, changed
}

func hasOption(opts, name string) bool {
	for opts != "" {
		var o string
		o, opts, _ = strings.Cut(opts, ",")
		if o == name {
			return true
		}
	}
	return false
}

func isScalar(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// isEmptyValue matches the omitempty rule of encoding/json.
func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Interface, reflect.Pointer:
		return v.IsZero()
	}
	return false
}

var (
	tokNaN    = []byte("NaN")
	tokInf    = []byte("Infinity")
	tokNegInf = []byte("-Infinity")
	tokNull   = []byte("null")
)

// ReplaceNonFinite rewrites NaN, Infinity and -Infinity tokens that appear
// outside string literals to null. data is returned as is when it holds
// none of them.
func ReplaceNonFinite(data []byte) []byte {
	if !bytes.Contains(data, tokNaN) && !bytes.Contains(data, tokInf) {
		return data
	}
	out := make([]byte, 0, len(data))
	inString, escaped := false, false
	for i := 0; i < len(data); {
		c := data[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			i++
			continue
		}
		switch {
		case c == '"':
			inString = true
		case bytes.HasPrefix(data[i:], tokNegInf):
			out = append(out, tokNull...)
			i += len(tokNegInf)
			continue
		case bytes.HasPrefix(data[i:], tokInf):
			out = append(out, tokNull...)
			i += len(tokInf)
			continue
		case bytes.HasPrefix(data[i:], tokNaN):
			out = append(out, tokNull...)
			i += len(tokNaN)
			continue
		}
		out = append(out, c)
		i++
	}
	return out
}
