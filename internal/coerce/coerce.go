// Package coerce implements the pure-function layer that projects raw
// OPC UA variant values into supervisor tag values and back. Nothing
// here touches a connection, a registry, or the wire; every function
// is a total function of its arguments.
package coerce

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/orangescada/opcua/internal/domain"
)

// ByIndex implements getValueByIndex: project a raw OPC UA value through a
// tag's arrayIndex. A nil raw (never observed) always yields nil. A
// scalar tag (arrayIndex == -1) returns raw unprojected; an indexed tag
// treats raw as a sequence and returns the element, or nil if the index
// falls outside the observed array.
func ByIndex(arrayIndex int, raw any) any {
	if raw == nil {
		return nil
	}
	if arrayIndex == -1 {
		return raw
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	if arrayIndex < 0 || arrayIndex >= rv.Len() {
		return nil
	}
	return rv.Index(arrayIndex).Interface()
}

// ByType implements getValueByType: project a non-nil scalar OPC UA value
// into the supervisor-level representation for the tag's declared type.
func ByType(tagType domain.TagType, v any) any {
	switch tagType {
	case domain.TagTypeDatetime:
		if t, ok := v.(time.Time); ok {
			return EpochMillis(t)
		}
		return v
	case domain.TagTypeBool:
		return boolToInt(truthy(v))
	case domain.TagTypeString:
		return truncate(stringOf(v), 16)
	case domain.TagTypeInt, domain.TagTypeFloat:
		return numericPassthrough(v)
	default:
		return v
	}
}

// SetValue implements getSetValue: project a supervisor-supplied write
// value into the form to hand to the OPC UA client for the tag's declared
// type. Array-indexed writes are completed by the caller via
// ReplaceElement against the NodeRecord's prior originalValue.
func SetValue(tagType domain.TagType, setValue any) (any, error) {
	switch tagType {
	case domain.TagTypeDatetime:
		s, ok := setValue.(string)
		if !ok {
			return nil, fmt.Errorf("%w: datetime write value must be a string, got %T", ErrInvalidDatetime, setValue)
		}
		return ParseWriteDatetime(s)
	case domain.TagTypeBool:
		return truthy(setValue), nil
	default:
		return setValue, nil
	}
}

// ReplaceElement copies original (must be a slice) and replaces the
// element at index with newElem, returning the new slice. Used by writes
// to array-indexed tags: the whole array is written
// back with exactly one element replaced.
func ReplaceElement(original any, index int, newElem any) (any, error) {
	rv := reflect.ValueOf(original)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: originalValue is not an array", domain.ErrWriteFail)
	}
	if index < 0 || index >= rv.Len() {
		return nil, fmt.Errorf("%w: arrayIndex %d out of range (len %d)", domain.ErrConfigError, index, rv.Len())
	}

	out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	reflect.Copy(out, rv)

	elemType := rv.Type().Elem()
	newVal := reflect.ValueOf(newElem)
	if !newVal.Type().AssignableTo(elemType) {
		if newVal.Type().ConvertibleTo(elemType) {
			newVal = newVal.Convert(elemType)
		} else {
			return nil, fmt.Errorf("%w: cannot write %T into array of %s", domain.ErrWriteFail, newElem, elemType)
		}
	}
	out.Index(index).Set(newVal)

	return out.Interface(), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case string:
		return t != "" && t != "0" && t != "false"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return !isZeroNumber(t)
	case float32:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

func isZeroNumber(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() == 0
	}
	return false
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func stringOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

// numericPassthrough applies the 64-bit correction: Int64 and
// Uint64 values are rendered via the fixed-divisor decimal reduction;
// other finite numeric values pass through numerically; non-numeric
// values pass through as strings.
func numericPassthrough(v any) any {
	switch t := v.(type) {
	case int64:
		return Int64DecimalString(t)
	case uint64:
		return Uint64DecimalString(t)
	case int, int8, int16, int32, uint, uint8, uint16, uint32, float32, float64:
		return t
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f
		}
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}
