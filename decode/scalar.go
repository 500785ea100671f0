// Package decode maps result rows (cells as text) onto Go aggregate types
// by column name (falling back to positional), and decodes individual
// cells into scalars, optionals, arrays, enums, and JSON.
package decode

import (
	"fmt"
	"strconv"
	"strings"
)

// DecodeBool accepts t|true|1 / f|false|0, case-insensitively.
func DecodeBool(cell string) (bool, error) {
	switch strings.ToLower(cell) {
	case "t", "true", "1":
		return true, nil
	case "f", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("decode: %q is not a boolean", cell)
	}
}

// DecodeInt64 parses a base-10 integer cell.
func DecodeInt64(cell string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
}

// DecodeFloat64 parses a locale-independent floating point cell.
func DecodeFloat64(cell string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(cell), 64)
}

// IsNullCell reports whether a cell pointer represents SQL NULL: a nil cell
// is null; an empty string is not, and neither is the four-character text "NULL",
// which only carries that meaning inside array-element context.
func IsNullCell(cell *string) bool {
	return cell == nil
}
