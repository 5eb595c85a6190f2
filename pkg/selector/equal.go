package selector

import "reflect"

// Identical reports whether a and b are the same value.
//
// Maps, slices, pointers, channels and funcs compare by reference (a slice
// also by length). Other comparable values compare with ==. Values that are
// not comparable and carry no reference, such as structs holding slices, are
// never identical.
func Identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	return identicalValues(va, vb)
}

func identicalValues(va, vb reflect.Value) bool {
	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Func:
		// Only nil funcs are equal by ==; fall back to code pointers.
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Len() == vb.Len() && (va.Len() == 0 || va.Pointer() == vb.Pointer())
	case reflect.Interface:
		if va.IsNil() || vb.IsNil() {
			return va.IsNil() && vb.IsNil()
		}
		return Identical(va.Elem().Interface(), vb.Elem().Interface())
	}
	if !va.Type().Comparable() {
		return false
	}
	if va.CanInterface() && vb.CanInterface() {
		defer func() { _ = recover() }()
		return va.Interface() == vb.Interface()
	}
	return false
}

// ShallowEqual reports whether a and b hold the same top-level entries.
//
// Values identical per Identical are equal. Maps with string keys are equal
// when they have the same keys and identical values. Structs of the same type
// are equal when each field is identical. Pointers to structs compare the
// pointed-to structs.
func ShallowEqual(a, b any) bool {
	if Identical(a, b) {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	if va.Kind() == reflect.Pointer {
		if va.IsNil() || vb.IsNil() || va.Elem().Kind() != reflect.Struct {
			return false
		}
		va, vb = va.Elem(), vb.Elem()
	}

	switch va.Kind() {
	case reflect.Map:
		if va.IsNil() != vb.IsNil() || va.Len() != vb.Len() {
			return false
		}
		iter := va.MapRange()
		for iter.Next() {
			other := vb.MapIndex(iter.Key())
			if !other.IsValid() || !identicalValues(iter.Value(), other) {
				return false
			}
		}
		return true
	case reflect.Struct:
		for i := 0; i < va.NumField(); i++ {
			fa, fb := va.Field(i), vb.Field(i)
			if !fieldsIdentical(fa, fb) {
				return false
			}
		}
		return true
	}
	return false
}

// fieldsIdentical compares struct fields, including unexported ones, without
// calling Interface on them.
func fieldsIdentical(fa, fb reflect.Value) bool {
	switch fa.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.UnsafePointer, reflect.Func:
		return fa.Pointer() == fb.Pointer()
	case reflect.Slice:
		return fa.Len() == fb.Len() && (fa.Len() == 0 || fa.Pointer() == fb.Pointer())
	case reflect.Bool:
		return fa.Bool() == fb.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fa.Int() == fb.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return fa.Uint() == fb.Uint()
	case reflect.Float32, reflect.Float64:
		return fa.Float() == fb.Float()
	case reflect.Complex64, reflect.Complex128:
		return fa.Complex() == fb.Complex()
	case reflect.String:
		return fa.String() == fb.String()
	case reflect.Interface:
		if fa.IsNil() || fb.IsNil() {
			return fa.IsNil() && fb.IsNil()
		}
		if fa.Elem().Type() != fb.Elem().Type() {
			return false
		}
		return fieldsIdentical(fa.Elem(), fb.Elem())
	case reflect.Struct:
		if fa.Type() != fb.Type() {
			return false
		}
		for i := 0; i < fa.NumField(); i++ {
			if !fieldsIdentical(fa.Field(i), fb.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Array:
		for i := 0; i < fa.Len(); i++ {
			if !fieldsIdentical(fa.Index(i), fb.Index(i)) {
				return false
			}
		}
		return true
	}
	return false
}

// Equal is a typed adapter so Identical and ShallowEqual fit an Equality.
func Equal[T any](fn func(a, b any) bool) func(a, b T) bool {
	return func(a, b T) bool { return fn(a, b) }
}
