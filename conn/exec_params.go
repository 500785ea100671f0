package conn

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/usub/upq/metrics"
	"github.com/usub/upq/wire"
)

// ExecParams runs sql as an extended-query Parse/Bind/Describe/Execute/Sync
// batch with params bound as text-format values, their OIDs inferred by
// EncodeParam.
func (c *Conn) ExecParams(ctx context.Context, sql string, params []Param) *QueryResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	result := c.execParams(ctx, sql, params)
	metrics.QueryLatency.WithLabelValues(c.endpoint.Host).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if !result.OK {
		outcome = "error"
	}
	metrics.QueryTotal.WithLabelValues(c.endpoint.Host, outcome).Inc()
	return result
}

func (c *Conn) execParams(ctx context.Context, sql string, params []Param) *QueryResult {
	if c.dead.Load() {
		return errorResult(wire.NewOpError(wire.CodeConnectionClosed, "connection is dead"))
	}

	disarm := c.armCancelWatch(ctx)
	defer disarm()

	oids := make([]uint32, len(params))
	values := make([][]byte, len(params))
	formats := make([]int16, len(params))
	for i, p := range params {
		oids[i] = uint32(p.OID)
		values[i] = p.Text
		formats[i] = 0 // text format
	}

	c.frontend.Send(&pgproto3.Parse{Query: sql, ParameterOIDs: oids})
	c.frontend.Send(&pgproto3.Bind{
		ParameterFormatCodes: formats,
		Parameters:           values,
		ResultFormatCodes:    []int16{0},
	})
	c.frontend.Send(&pgproto3.Describe{ObjectType: 'P'})
	c.frontend.Send(&pgproto3.Execute{})
	c.frontend.Send(&pgproto3.Sync{})

	if err := c.frontend.Flush(); err != nil {
		c.MarkDead()
		return errorResult(wire.WrapOpError(wire.CodeSocketReadFailed, err))
	}

	result := &QueryResult{OK: true, RowsValid: true}
	for {
		msg, err := c.frontend.Receive()
		if err != nil {
			c.MarkDead()
			return errorResult(wire.WrapOpError(wire.CodeSocketReadFailed, err))
		}
		switch m := msg.(type) {
		case *pgproto3.ParameterDescription, *pgproto3.ParseComplete, *pgproto3.BindComplete, *pgproto3.NoData:
			// acknowledgements with no payload to surface
		case *pgproto3.RowDescription:
			result.Columns = columnNames(m)
		case *pgproto3.DataRow:
			result.Rows = append(result.Rows, decodeDataRow(m))
		case *pgproto3.CommandComplete:
			result.RowsAffected = parseCommandTag(string(m.CommandTag))
		case *pgproto3.ErrorResponse:
			detail := detailFromErrorResponse(m)
			result.OK = false
			result.RowsValid = false
			result.Code = wire.CodeServerError
			result.Err = m.Message
			result.ErrDetail = detail
			if wire.ContainsFatalPhrase(m.Message) {
				c.MarkDead()
			}
		case *pgproto3.NotificationResponse:
			c.deliverNotification(m)
		case *pgproto3.ReadyForQuery:
			c.txStatus = wire.TxStatus(m.TxStatus)
			return result
		}
	}
}
