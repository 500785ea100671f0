package conn

import (
	"context"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/usub/upq/wire"
)

// CopyResult is the small result envelope COPY operations return.
type CopyResult struct {
	OK           bool
	Code         wire.ErrorCode
	Err          string
	RowsAffected int64
}

func copyError(err *wire.OpError) CopyResult {
	return CopyResult{OK: false, Code: err.Code, Err: err.Err}
}

// CopyIn is a handle for a COPY ... FROM STDIN in progress. Between
// CopyInStart and Finish any other command on the connection blocks.
type CopyIn struct {
	conn      *Conn
	ctx       context.Context
	disarm    func()
	finished  bool
}

// CopyInStart begins a COPY ... FROM STDIN and blocks other commands on
// this connection until Finish (or Abort) is called.
func (c *Conn) CopyInStart(ctx context.Context, sql string) (*CopyIn, CopyResult) {
	c.mu.Lock()
	if c.dead.Load() {
		c.mu.Unlock()
		return nil, copyError(wire.NewOpError(wire.CodeConnectionClosed, "connection is dead"))
	}

	disarm := c.armCancelWatch(ctx)
	c.frontend.Send(&pgproto3.Query{String: sql})
	if err := c.frontend.Flush(); err != nil {
		c.MarkDead()
		disarm()
		c.mu.Unlock()
		return nil, copyError(wire.WrapOpError(wire.CodeSocketReadFailed, err))
	}

	for {
		msg, err := c.frontend.Receive()
		if err != nil {
			c.MarkDead()
			disarm()
			c.mu.Unlock()
			return nil, copyError(wire.WrapOpError(wire.CodeSocketReadFailed, err))
		}
		switch m := msg.(type) {
		case *pgproto3.CopyInResponse:
			return &CopyIn{conn: c, ctx: ctx, disarm: disarm}, CopyResult{OK: true}
		case *pgproto3.ErrorResponse:
			detail := detailFromErrorResponse(m)
			c.drainToReady()
			disarm()
			c.mu.Unlock()
			return nil, CopyResult{OK: false, Code: wire.CodeServerError, Err: detail.Message}
		}
	}
}

// SendChunk streams a chunk of COPY data to the server.
func (ci *CopyIn) SendChunk(data []byte) CopyResult {
	ci.conn.frontend.Send(&pgproto3.CopyData{Data: data})
	if err := ci.conn.frontend.Flush(); err != nil {
		ci.conn.MarkDead()
		return copyError(wire.WrapOpError(wire.CodeSocketReadFailed, err))
	}
	return CopyResult{OK: true}
}

// Finish signals CopyDone and waits for the server's CommandComplete,
// releasing the connection for other commands. Zero chunks followed by
// Finish succeeds with RowsAffected=0.
func (ci *CopyIn) Finish() CopyResult {
	defer ci.release()

	ci.conn.frontend.Send(&pgproto3.CopyDone{})
	ci.conn.frontend.Send(&pgproto3.Sync{})
	if err := ci.conn.frontend.Flush(); err != nil {
		ci.conn.MarkDead()
		return copyError(wire.WrapOpError(wire.CodeSocketReadFailed, err))
	}

	result := CopyResult{OK: true}
	for {
		msg, err := ci.conn.frontend.Receive()
		if err != nil {
			ci.conn.MarkDead()
			return copyError(wire.WrapOpError(wire.CodeSocketReadFailed, err))
		}
		switch m := msg.(type) {
		case *pgproto3.CommandComplete:
			result.RowsAffected = parseCommandTag(string(m.CommandTag))
		case *pgproto3.ErrorResponse:
			detail := detailFromErrorResponse(m)
			result = CopyResult{OK: false, Code: wire.CodeServerError, Err: detail.Message}
		case *pgproto3.ReadyForQuery:
			ci.conn.txStatus = wire.TxStatus(m.TxStatus)
			return result
		}
	}
}

// Abort cancels an in-progress COPY IN by marking the connection dead —
// per design, whether to attempt a CopyFail message first is left
// unspecified upstream, so the simplest safe choice is taken: the session
// state mid-COPY cannot be trusted after an abandoned operation.
func (ci *CopyIn) Abort() {
	ci.conn.MarkDead()
	ci.release()
}

func (ci *CopyIn) release() {
	if ci.finished {
		return
	}
	ci.finished = true
	ci.disarm()
	ci.conn.mu.Unlock()
}

// drainToReady consumes messages until ReadyForQuery, used to resynchronise
// after an error arrives mid-batch.
func (c *Conn) drainToReady() {
	for {
		msg, err := c.frontend.Receive()
		if err != nil {
			c.MarkDead()
			return
		}
		if rfq, ok := msg.(*pgproto3.ReadyForQuery); ok {
			c.txStatus = wire.TxStatus(rfq.TxStatus)
			return
		}
	}
}

// CopyOut is a handle for a COPY ... TO STDOUT in progress.
type CopyOut struct {
	conn     *Conn
	disarm   func()
	finished bool
}

// CopyOutStart begins a COPY ... TO STDOUT.
func (c *Conn) CopyOutStart(ctx context.Context, sql string) (*CopyOut, CopyResult) {
	c.mu.Lock()
	if c.dead.Load() {
		c.mu.Unlock()
		return nil, copyError(wire.NewOpError(wire.CodeConnectionClosed, "connection is dead"))
	}

	disarm := c.armCancelWatch(ctx)
	c.frontend.Send(&pgproto3.Query{String: sql})
	if err := c.frontend.Flush(); err != nil {
		c.MarkDead()
		disarm()
		c.mu.Unlock()
		return nil, copyError(wire.WrapOpError(wire.CodeSocketReadFailed, err))
	}

	for {
		msg, err := c.frontend.Receive()
		if err != nil {
			c.MarkDead()
			disarm()
			c.mu.Unlock()
			return nil, copyError(wire.WrapOpError(wire.CodeSocketReadFailed, err))
		}
		switch m := msg.(type) {
		case *pgproto3.CopyOutResponse:
			return &CopyOut{conn: c, disarm: disarm}, CopyResult{OK: true}
		case *pgproto3.ErrorResponse:
			detail := detailFromErrorResponse(m)
			c.drainToReady()
			disarm()
			c.mu.Unlock()
			return nil, CopyResult{OK: false, Code: wire.CodeServerError, Err: detail.Message}
		}
	}
}

// ReadChunk returns the next chunk of COPY data, or (nil, true) once the
// server signals CopyDone.
func (co *CopyOut) ReadChunk() ([]byte, bool, CopyResult) {
	for {
		msg, err := co.conn.frontend.Receive()
		if err != nil {
			co.conn.MarkDead()
			return nil, true, copyError(wire.WrapOpError(wire.CodeSocketReadFailed, err))
		}
		switch m := msg.(type) {
		case *pgproto3.CopyData:
			return m.Data, false, CopyResult{OK: true}
		case *pgproto3.CopyDone:
			continue
		case *pgproto3.CommandComplete:
			continue
		case *pgproto3.ReadyForQuery:
			co.conn.txStatus = wire.TxStatus(m.TxStatus)
			co.release()
			return nil, true, CopyResult{OK: true}
		case *pgproto3.ErrorResponse:
			detail := detailFromErrorResponse(m)
			co.release()
			return nil, true, CopyResult{OK: false, Code: wire.CodeServerError, Err: detail.Message}
		}
	}
}

func (co *CopyOut) release() {
	if co.finished {
		return
	}
	co.finished = true
	co.disarm()
	co.conn.mu.Unlock()
}
