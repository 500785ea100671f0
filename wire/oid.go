package wire

// Oid is a PostgreSQL type OID, used when binding text-format parameters
// so the server knows how to interpret them.
type Oid uint32

// Scalar and array OIDs used for parameter encoding, per the spec's OID
// mapping table.
const (
	BoolOid   Oid = 16
	Int8Oid   Oid = 20
	Int2Oid   Oid = 21
	Int4Oid   Oid = 23
	TextOid   Oid = 25
	JSONOid   Oid = 114
	Float4Oid Oid = 700
	Float8Oid Oid = 701
	JSONBOid  Oid = 3802

	BoolArrayOid   Oid = 1000
	Int2ArrayOid   Oid = 1005
	Int4ArrayOid   Oid = 1007
	TextArrayOid   Oid = 1009
	Int8ArrayOid   Oid = 1016
	Float4ArrayOid Oid = 1021
	Float8ArrayOid Oid = 1022
)

// ArrayOidOf returns the array OID corresponding to a scalar element OID,
// and false if no array form is known for it.
func ArrayOidOf(elem Oid) (Oid, bool) {
	switch elem {
	case BoolOid:
		return BoolArrayOid, true
	case Int2Oid:
		return Int2ArrayOid, true
	case Int4Oid:
		return Int4ArrayOid, true
	case Int8Oid:
		return Int8ArrayOid, true
	case Float4Oid:
		return Float4ArrayOid, true
	case Float8Oid:
		return Float8ArrayOid, true
	case TextOid:
		return TextArrayOid, true
	default:
		return 0, false
	}
}
