package store

import "reflect"

// IsNil reports whether v is nil, including an interface holding a nil
// pointer. Identity keys and owners that are typed nils address the sentinel.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
