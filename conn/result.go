package conn

import (
	"strconv"
	"strings"

	"github.com/usub/upq/wire"
)

// QueryResult is the uniform result envelope every query operation
// returns: either a populated row set, or a classified failure. A cell is
// either a textual representation or an explicit null (nil pointer) —
// "rows_valid" is false whenever the server returned an error mid-stream,
// even if some rows were already buffered before the error arrived.
type QueryResult struct {
	OK           bool
	Code         wire.ErrorCode
	Err          string
	ErrDetail    wire.ErrorDetail
	RowsValid    bool
	RowsAffected int64
	Columns      []string
	Rows         [][]*string
}

func errorResult(err *wire.OpError) *QueryResult {
	return &QueryResult{
		OK:        false,
		Code:      err.Code,
		Err:       err.Err,
		ErrDetail: err.Detail,
		RowsValid: false,
	}
}

// parseCommandTag extracts the affected-row count from a CommandComplete
// tag such as "INSERT 0 1", "UPDATE 3", "SELECT 5", "DELETE 1", "COPY 10".
func parseCommandTag(tag string) int64 {
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return 0
	}
	last := fields[len(fields)-1]
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
