package conn

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"github.com/usub/upq/wire"
)

// Param is one text-format bound parameter together with the OID the
// server needs to interpret it correctly.
type Param struct {
	Text []byte // nil means SQL NULL
	OID  wire.Oid
}

// JSON wraps a value that should be bound as a jsonb parameter rather than
// plain text. Json (json, not jsonb) is requested with RawJSON instead.
type JSON struct{ V any }

// RawJSON wraps pre-encoded JSON text bound with the `json` (not `jsonb`) OID.
type RawJSON string

// EncodeParam infers a PostgreSQL OID for a Go value and renders it in
// text format, following the encoding rules: integers by width, floats,
// booleans, strings as text, string slices as PG arrays, optionals
// (nil pointers / nil interfaces) as NULL, and JSON/JSONB wrappers.
func EncodeParam(v any) (Param, error) {
	if v == nil {
		return Param{Text: nil, OID: wire.TextOid}, nil
	}

	switch val := v.(type) {
	case JSON:
		b, err := json.Marshal(val.V)
		if err != nil {
			return Param{}, fmt.Errorf("conn: encoding jsonb parameter: %w", err)
		}
		return Param{Text: b, OID: wire.JSONBOid}, nil
	case RawJSON:
		return Param{Text: []byte(val), OID: wire.JSONOid}, nil
	case []string:
		return encodeArrayParam(val, wire.TextOid)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return Param{Text: nil, OID: wire.TextOid}, nil
		}
		return EncodeParam(rv.Elem().Interface())
	}

	switch rv.Kind() {
	case reflect.Int8, reflect.Int16:
		return Param{Text: []byte(strconv.FormatInt(rv.Int(), 10)), OID: wire.Int2Oid}, nil
	case reflect.Int, reflect.Int32:
		return Param{Text: []byte(strconv.FormatInt(rv.Int(), 10)), OID: wire.Int4Oid}, nil
	case reflect.Int64:
		return Param{Text: []byte(strconv.FormatInt(rv.Int(), 10)), OID: wire.Int8Oid}, nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return Param{Text: []byte(strconv.FormatUint(rv.Uint(), 10)), OID: wire.Int4Oid}, nil
	case reflect.Uint, reflect.Uint64:
		return Param{Text: []byte(strconv.FormatUint(rv.Uint(), 10)), OID: wire.Int8Oid}, nil
	case reflect.Float32:
		return Param{Text: []byte(strconv.FormatFloat(rv.Float(), 'g', -1, 32)), OID: wire.Float4Oid}, nil
	case reflect.Float64:
		return Param{Text: []byte(strconv.FormatFloat(rv.Float(), 'g', -1, 64)), OID: wire.Float8Oid}, nil
	case reflect.Bool:
		if rv.Bool() {
			return Param{Text: []byte("t"), OID: wire.BoolOid}, nil
		}
		return Param{Text: []byte("f"), OID: wire.BoolOid}, nil
	case reflect.String:
		return Param{Text: []byte(rv.String()), OID: wire.TextOid}, nil
	}

	if s, ok := v.(fmt.Stringer); ok {
		return Param{Text: []byte(s.String()), OID: wire.TextOid}, nil
	}

	return Param{}, fmt.Errorf("conn: cannot infer parameter OID for %T", v)
}

func encodeArrayParam(elems []string, scalarOID wire.Oid) (Param, error) {
	arrOID, ok := wire.ArrayOidOf(scalarOID)
	if !ok {
		return Param{}, fmt.Errorf("conn: no array OID for scalar OID %d", scalarOID)
	}
	ptrs := make([]*string, len(elems))
	for i := range elems {
		ptrs[i] = &elems[i]
	}
	return Param{Text: []byte(wire.EncodeArray(ptrs)), OID: arrOID}, nil
}
