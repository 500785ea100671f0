package decode

import "github.com/usub/upq/wire"

// DecodeStringArray decodes a PG array literal cell into its optional
// scalar elements, returning nil for a nil (SQL NULL) cell.
func DecodeStringArray(cell *string) ([]*string, error) {
	if cell == nil {
		return nil, nil
	}
	return wire.DecodeArray(*cell)
}

// DecodeIntArray decodes an integer array cell, rejecting non-numeric
// elements; a nil element (array NULL) is skipped rather than zero-filled,
// so the result holds only the non-NULL elements, in order.
func DecodeIntArray(cell *string) ([]int64, error) {
	elems, err := DecodeStringArray(cell)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(elems))
	for _, e := range elems {
		if e == nil {
			continue
		}
		v, err := DecodeInt64(*e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// EncodeStringArray is the inverse of DecodeStringArray, for building
// array-typed query parameters.
func EncodeStringArray(elems []*string) string {
	return wire.EncodeArray(elems)
}
