package conn

import (
	"context"
	"fmt"
)

// Cursor is a server-side NO SCROLL cursor declared inside its own
// transaction, fetched in chunks.
type Cursor struct {
	conn *Conn
	name string
}

// CursorChunk is one batch of rows fetched from a cursor.
type CursorChunk struct {
	Columns []string
	Rows    [][]*string
	Done    bool
}

// CursorDeclare opens a transaction and declares a NO SCROLL cursor over sql.
func (c *Conn) CursorDeclare(ctx context.Context, name, sql string) *QueryResult {
	res := c.ExecSimple(ctx, "BEGIN")
	if !res.OK {
		return res
	}
	declare := fmt.Sprintf("DECLARE %s NO SCROLL CURSOR FOR %s", name, sql)
	res = c.ExecSimple(ctx, declare)
	if !res.OK {
		return res
	}
	return &QueryResult{OK: true, RowsValid: true}
}

// Cursor returns a handle bound to an already-declared cursor name.
func (c *Conn) Cursor(name string) *Cursor {
	return &Cursor{conn: c, name: name}
}

// FetchChunk fetches up to count rows; Done is true when fewer rows than
// requested came back, or the server reported command-complete with none.
func (cur *Cursor) FetchChunk(ctx context.Context, count int) (*CursorChunk, *QueryResult) {
	sql := fmt.Sprintf("FETCH %d FROM %s", count, cur.name)
	res := cur.conn.ExecSimple(ctx, sql)
	if !res.OK {
		return nil, res
	}
	chunk := &CursorChunk{
		Columns: res.Columns,
		Rows:    res.Rows,
		Done:    len(res.Rows) == 0 || len(res.Rows) < count,
	}
	return chunk, res
}

// Close closes the cursor and commits the transaction it was declared in.
func (cur *Cursor) Close(ctx context.Context) *QueryResult {
	res := cur.conn.ExecSimple(ctx, fmt.Sprintf("CLOSE %s", cur.name))
	if !res.OK {
		return res
	}
	return cur.conn.ExecSimple(ctx, "COMMIT")
}
