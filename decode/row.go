package decode

import (
	"fmt"
	"reflect"
	"strconv"
)

// fieldTag returns the wire name decode should use for f: its `db` tag if
// present, else its Go name, normalised either way.
func fieldTag(f reflect.StructField) (string, bool) {
	if tag, ok := f.Tag.Lookup("db"); ok {
		if tag == "-" {
			return "", false
		}
		return Normalize(tag), true
	}
	if f.PkgPath != "" {
		return "", false // unexported
	}
	return Normalize(f.Name), true
}

// DecodeRow maps one result row onto dest, a pointer to a struct. It tries
// named matching first (normalising both column and field names), and
// falls back to positional matching — by struct field order against
// column order — only when the column set doesn't fully cover the
// struct's fields by name.
func DecodeRow(columns []string, row []*string, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("decode: dest must be a pointer to struct, got %T", dest)
	}
	sv := rv.Elem()
	st := sv.Type()

	byName := make(map[string]int, len(columns))
	for i, c := range columns {
		byName[Normalize(c)] = i
	}

	type target struct {
		field reflect.Value
		col   int
	}
	var named []target
	namedComplete := true
	for i := 0; i < st.NumField(); i++ {
		name, ok := fieldTag(st.Field(i))
		if !ok {
			continue
		}
		col, found := byName[name]
		if !found {
			namedComplete = false
			break
		}
		named = append(named, target{field: sv.Field(i), col: col})
	}

	if namedComplete && len(named) > 0 {
		for _, t := range named {
			if err := decodeCellInto(row[t.col], t.field); err != nil {
				return err
			}
		}
		return nil
	}

	// Positional fallback: struct field order against column order.
	var positional []reflect.Value
	for i := 0; i < st.NumField(); i++ {
		if _, ok := fieldTag(st.Field(i)); !ok {
			continue
		}
		positional = append(positional, sv.Field(i))
	}
	if len(positional) != len(columns) {
		return fmt.Errorf("decode: %d columns does not match %d struct fields for positional fallback", len(columns), len(positional))
	}
	for i, f := range positional {
		if err := decodeCellInto(row[i], f); err != nil {
			return err
		}
	}
	return nil
}

// DecodeRows maps every row onto a freshly allocated element of *dest,
// which must be a pointer to a slice of struct (or pointer-to-struct).
func DecodeRows(columns []string, rows [][]*string, dest any) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("decode: dest must be a pointer to slice, got %T", dest)
	}
	sv := rv.Elem()
	elemType := sv.Type().Elem()
	elemIsPtr := elemType.Kind() == reflect.Ptr
	structType := elemType
	if elemIsPtr {
		structType = elemType.Elem()
	}

	out := reflect.MakeSlice(sv.Type(), 0, len(rows))
	for _, row := range rows {
		elem := reflect.New(structType)
		if err := DecodeRow(columns, row, elem.Interface()); err != nil {
			return err
		}
		if elemIsPtr {
			out = reflect.Append(out, elem)
		} else {
			out = reflect.Append(out, elem.Elem())
		}
	}
	sv.Set(out)
	return nil
}

// decodeCellInto decodes cell into field according to field's kind. A nil
// cell (SQL NULL) into a non-pointer field is an error unless the field is
// a pointer, which is left nil.
func decodeCellInto(cell *string, field reflect.Value) error {
	if field.Kind() == reflect.Ptr {
		if cell == nil {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		elem := reflect.New(field.Type().Elem())
		if err := decodeCellInto(cell, elem.Elem()); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	if cell == nil {
		return fmt.Errorf("decode: null cell into non-pointer field of kind %s", field.Kind())
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(*cell)
	case reflect.Bool:
		b, err := DecodeBool(*cell)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := DecodeInt64(*cell)
		if err != nil {
			return err
		}
		field.SetInt(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(*cell, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(v)
	case reflect.Float32, reflect.Float64:
		v, err := DecodeFloat64(*cell)
		if err != nil {
			return err
		}
		field.SetFloat(v)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			elems, err := wireDecodeArrayElems(*cell)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(elems))
			return nil
		}
		return fmt.Errorf("decode: unsupported slice element kind %s", field.Type().Elem().Kind())
	default:
		return fmt.Errorf("decode: unsupported field kind %s", field.Kind())
	}
	return nil
}

// wireDecodeArrayElems decodes a PG array literal into []string, treating
// an array NULL element as the empty string (callers needing true
// optionality should use a []*string field instead via DecodeStringArray).
func wireDecodeArrayElems(literal string) ([]string, error) {
	elems, err := DecodeStringArray(&literal)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(elems))
	for i, e := range elems {
		if e != nil {
			out[i] = *e
		}
	}
	return out, nil
}
