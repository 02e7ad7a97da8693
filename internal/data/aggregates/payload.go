package aggregates

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"unicode/utf8"

	"gorm.io/datatypes"

	domainagg "github.com/yungbote/docprov-backend/internal/domain/aggregates"
)

// EncodePayload converts v to JSON. A value json.Marshal would reject, alter or loop on
// fails with serialization_failure whose details name the key path and Go type.
func EncodePayload(op, path string, v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	w := payloadWalker{seen: map[visitKey]bool{}}
	if bad, badType := w.find(path, reflect.ValueOf(v)); bad != "" {
		return nil, domainagg.NewErrorWithDetails(domainagg.CodeSerializationFailure, op,
			fmt.Sprintf("value at %s of type %s cannot be stored", bad, badType),
			map[string]any{"key": bad, "type": badType})
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, domainagg.NewErrorWithDetails(domainagg.CodeSerializationFailure, op, err.Error(),
			map[string]any{"key": path, "type": fmt.Sprintf("%T", v)})
	}
	return datatypes.JSON(raw), nil
}

// payloadWalker tracks the maps, slices and pointers on the current path so self-references end the walk.
type payloadWalker struct {
	seen map[visitKey]bool
}

// visitKey includes the length so a slice and an empty reslice of it are distinct.
type visitKey struct {
	ptr uintptr
	n   int
}

const cycleType = "cycle"

func (w payloadWalker) enter(v reflect.Value) (leave func(), cyclic bool) {
	key := visitKey{ptr: v.Pointer()}
	if key.ptr == 0 {
		return func() {}, false
	}
	if v.Kind() == reflect.Slice {
		key.n = v.Len()
	}
	if w.seen[key] {
		return nil, true
	}
	w.seen[key] = true
	return func() { delete(w.seen, key) }, false
}

func (w payloadWalker) find(path string, v reflect.Value) (string, string) {
	if !v.IsValid() || v.Type().Implements(jsonMarshalerType) {
		return "", ""
	}
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return "", ""
		}
		return w.find(path, v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			return "", ""
		}
		leave, cyclic := w.enter(v)
		if cyclic {
			return path, cycleType
		}
		defer leave()
		return w.find(path, v.Elem())
	case reflect.Func, reflect.Chan, reflect.Complex64, reflect.Complex128, reflect.UnsafePointer:
		return path, v.Type().String()
	case reflect.Float32, reflect.Float64:
		if f := v.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return path, v.Type().String()
		}
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return path, v.Type().String()
		}
	case reflect.Map:
		return w.findInMap(path, v)
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice {
			if v.Type().Elem().Kind() == reflect.Uint8 {
				return "", ""
			}
			leave, cyclic := w.enter(v)
			if cyclic {
				return path, cycleType
			}
			defer leave()
		}
		for i := 0; i < v.Len(); i++ {
			if p, t := w.find(fmt.Sprintf("%s[%d]", path, i), v.Index(i)); p != "" {
				return p, t
			}
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() || f.Tag.Get("json") == "-" {
				continue
			}
			if p, ft := w.find(path+"."+f.Name, v.Field(i)); p != "" {
				return p, ft
			}
		}
	}
	return "", ""
}

func (w payloadWalker) findInMap(path string, v reflect.Value) (string, string) {
	switch v.Type().Key().Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return path, v.Type().String()
	}
	if v.IsNil() {
		return "", ""
	}
	leave, cyclic := w.enter(v)
	if cyclic {
		return path, cycleType
	}
	defer leave()

	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j]) })
	for _, k := range keys {
		child := path + "." + fmt.Sprint(k.Interface())
		if k.Kind() == reflect.String && !utf8.ValidString(k.String()) {
			return child, "map key " + k.Type().String()
		}
		if p, t := w.find(child, v.MapIndex(k)); p != "" {
			return p, t
		}
	}
	return "", ""
}

var jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
