package decode

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// EnumMapping is a compile-time mapping between an enum-like type T and its
// wire text representation, supplied by the caller. A cell that doesn't
// match any mapped string falls back to parsing it as T's underlying
// integer, the same two-step lookup the source performs (compile-time
// mapping first, underlying-integer parse second).
type EnumMapping[T comparable] struct {
	ToString   map[T]string
	FromString map[string]T
}

// NewEnumMapping builds the reverse lookup from a forward ToString map.
func NewEnumMapping[T comparable](toString map[T]string) EnumMapping[T] {
	from := make(map[string]T, len(toString))
	for k, v := range toString {
		from[v] = k
	}
	return EnumMapping[T]{ToString: toString, FromString: from}
}

// Decode looks up cell in the mapping's FromString table, falling back to
// parsing it as T's underlying integer when no mapped string matches.
func (m EnumMapping[T]) Decode(cell string) (T, error) {
	if v, ok := m.FromString[cell]; ok {
		return v, nil
	}

	var zero T
	n, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
	if err != nil {
		return zero, fmt.Errorf("decode: %q is not a recognised enum value and not a valid underlying integer", cell)
	}
	rt := reflect.TypeOf(zero)
	if !isIntegerKind(rt.Kind()) {
		return zero, fmt.Errorf("decode: %q is not a recognised enum value", cell)
	}
	return reflect.ValueOf(n).Convert(rt).Interface().(T), nil
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

// Encode renders v's wire text representation.
func (m EnumMapping[T]) Encode(v T) (string, error) {
	s, ok := m.ToString[v]
	if !ok {
		return "", fmt.Errorf("decode: enum value %v has no text mapping", v)
	}
	return s, nil
}
