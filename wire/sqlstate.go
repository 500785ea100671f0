package wire

import "strings"

// SqlStateClass is the coarse classification of a server SQLSTATE, mirroring
// PgSqlStateClass from the source this protocol was modelled on.
type SqlStateClass uint8

const (
	ClassNone SqlStateClass = iota
	ClassConnectionError
	ClassSyntaxError
	ClassUndefinedObject
	ClassConstraintViolation
	ClassUniqueViolation
	ClassCheckViolation
	ClassNotNullViolation
	ClassForeignKeyViolation
	ClassDeadlock
	ClassSerializationFailure
	ClassPrivilegeError
	ClassDataException
	ClassTransactionState
	ClassInternalError
	ClassOther
)

func (c SqlStateClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassConnectionError:
		return "connection_error"
	case ClassSyntaxError:
		return "syntax_error"
	case ClassUndefinedObject:
		return "undefined_object"
	case ClassConstraintViolation:
		return "constraint_violation"
	case ClassUniqueViolation:
		return "unique_violation"
	case ClassCheckViolation:
		return "check_violation"
	case ClassNotNullViolation:
		return "not_null_violation"
	case ClassForeignKeyViolation:
		return "foreign_key_violation"
	case ClassDeadlock:
		return "deadlock"
	case ClassSerializationFailure:
		return "serialization_failure"
	case ClassPrivilegeError:
		return "privilege_error"
	case ClassDataException:
		return "data_exception"
	case ClassTransactionState:
		return "transaction_state"
	case ClassInternalError:
		return "internal_error"
	default:
		return "other"
	}
}

// ClassifySqlState maps a five-character server SQLSTATE to its coarse
// class, following the table in the wire-protocol error-handling design:
// 08* connection, 23505/23502/23503/23514 specific constraint kinds, 23*
// generic constraint, 40001 serialization failure, 40P01 deadlock, 42P01
// undefined object, 42* syntax, 22* data exception, 25*/40* transaction
// state, 28*/42501 privilege, XX* internal, else other.
func ClassifySqlState(sqlstate string) SqlStateClass {
	if len(sqlstate) != 5 {
		return ClassOther
	}
	switch sqlstate {
	case "23505":
		return ClassUniqueViolation
	case "23502":
		return ClassNotNullViolation
	case "23503":
		return ClassForeignKeyViolation
	case "23514":
		return ClassCheckViolation
	case "40001":
		return ClassSerializationFailure
	case "40P01":
		return ClassDeadlock
	case "42P01":
		return ClassUndefinedObject
	case "42501":
		return ClassPrivilegeError
	}
	class := sqlstate[:2]
	switch class {
	case "08":
		return ClassConnectionError
	case "23":
		return ClassConstraintViolation
	case "42":
		return ClassSyntaxError
	case "22":
		return ClassDataException
	case "25", "40":
		return ClassTransactionState
	case "28":
		return ClassPrivilegeError
	case "XX":
		return ClassInternalError
	default:
		return ClassOther
	}
}

// Heuristic phrases that mark a server error as a fatal connection error
// even when the code isn't already SocketReadFailed/ConnectionClosed.
var fatalErrorPhrases = []string{
	"another command is already in progress",
	"could not receive data from server",
	"server closed the connection unexpectedly",
}

// ContainsFatalPhrase reports whether an error message text matches one of
// the heuristic phrases that indicate the connection's session state can
// no longer be trusted.
func ContainsFatalPhrase(msg string) bool {
	for _, phrase := range fatalErrorPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
