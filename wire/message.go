// Package wire implements the client-facing pieces of PostgreSQL wire
// protocol v3: frame constants, error classification, the OID table used
// for parameter encoding, the array literal grammar, and MD5 auth digests.
// Frame encode/decode itself is delegated to pgproto3; this package adds
// the semantics the spec attaches to those frames.
package wire

// Backend message type bytes, named for the role they play on the client
// side of the connection (the teacher's own constants name the same
// bytes from the server's point of view).
const (
	MsgAuthentication    = 'R'
	MsgBackendKeyData    = 'K'
	MsgParameterStatus   = 'S'
	MsgReadyForQuery     = 'Z'
	MsgRowDescription    = 'T'
	MsgDataRow           = 'D'
	MsgCommandComplete   = 'C'
	MsgErrorResponse     = 'E'
	MsgNoticeResponse    = 'N'
	MsgNotification      = 'A'
	MsgCopyInResponse    = 'G'
	MsgCopyOutResponse   = 'H'
	MsgCopyData          = 'd'
	MsgCopyDone          = 'c'
	MsgParseComplete     = '1'
	MsgBindComplete      = '2'
	MsgCloseComplete     = '3'
	MsgNoData            = 'n'
	MsgEmptyQueryResp    = 'I'
	MsgParamDescription  = 't'
	MsgPortalSuspended   = 's'
)

// Frontend message type bytes.
const (
	MsgPassword  = 'p'
	MsgQuery     = 'Q'
	MsgParse     = 'P'
	MsgBind      = 'B'
	MsgDescribe  = 'D'
	MsgExecute   = 'E'
	MsgSync      = 'S'
	MsgTerminate = 'X'
)

// ProtocolVersion3 is the be32 value that opens a StartupMessage.
const ProtocolVersion3 = 196608

// Authentication request sub-codes carried in the first int32 of an 'R' message.
const (
	AuthOK                = 0
	AuthCleartextPassword = 3
	AuthMD5Password       = 5
)

// TxStatus is the single byte reported in ReadyForQuery.
type TxStatus byte

const (
	TxIdle       TxStatus = 'I'
	TxInBlock    TxStatus = 'T'
	TxInFailed   TxStatus = 'E'
)
