// Package txn implements the transaction façade: BEGIN/COMMIT/ROLLBACK/
// ABORT/SAVEPOINT driven on a pinned Connection, with isolation level,
// read-only, deferrable configuration, an emulated-autocommit mode, and
// nested savepoint-scoped subtransactions.
package txn

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/usub/upq/conn"
	"github.com/usub/upq/pool"
	"github.com/usub/upq/wire"
)

// Isolation is the SQL isolation level requested at BEGIN.
type Isolation uint8

const (
	ReadCommitted Isolation = iota
	RepeatableRead
	Serializable
)

func (i Isolation) sqlClause() string {
	switch i {
	case RepeatableRead:
		return "ISOLATION LEVEL REPEATABLE READ"
	case Serializable:
		return "ISOLATION LEVEL SERIALIZABLE"
	default:
		return "ISOLATION LEVEL READ COMMITTED"
	}
}

// Config is the transaction's requested mode.
type Config struct {
	Isolation  Isolation
	ReadOnly   bool
	Deferrable bool
}

var savepointSeq atomic.Uint64

func nextSavepointName() string {
	return fmt.Sprintf("uv_sp_%d", savepointSeq.Add(1))
}

// Transaction holds a pinned Connection for its lifetime. Exactly one of
// {active, committed, rolledBack} holds after commit/rollback/abort; a
// freshly created Transaction is neither active nor terminal.
type Transaction struct {
	pool *pool.Pool
	conn *conn.Conn
	cfg  Config

	active     bool
	committed  bool
	rolledBack bool
	autocommit bool
}

// Begin acquires a Connection from p and starts the transaction per cfg.
// In "emulated autocommit" mode (read_only && !deferrable) no BEGIN is
// sent, but the connection is still held for the transaction's duration.
func Begin(ctx context.Context, p *pool.Pool, cfg Config) (*Transaction, error) {
	c, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	tx := &Transaction{pool: p, conn: c, cfg: cfg}

	if cfg.ReadOnly && !cfg.Deferrable {
		tx.autocommit = true
		tx.active = true
		return tx, nil
	}

	beginSQL := buildBeginSQL(cfg)
	res := c.ExecSimple(ctx, beginSQL)
	if !res.OK {
		if wire.IsFatalConnectionError(wire.NewOpError(res.Code, res.Err)) {
			p.MarkDead(c)
		} else {
			p.Release(c)
		}
		tx.active = false
		return tx, wire.NewOpError(res.Code, res.Err)
	}
	tx.active = true
	return tx, nil
}

func buildBeginSQL(cfg Config) string {
	var b strings.Builder
	b.WriteString("BEGIN ")
	b.WriteString(cfg.Isolation.sqlClause())
	if cfg.ReadOnly {
		b.WriteString(" READ ONLY")
	} else {
		b.WriteString(" READ WRITE")
	}
	if cfg.Deferrable {
		b.WriteString(" DEFERRABLE")
	}
	return b.String()
}

// Active, Committed, RolledBack report the transaction's current state
// classification.
func (t *Transaction) Active() bool     { return t.active }
func (t *Transaction) Committed() bool  { return t.committed }
func (t *Transaction) RolledBack() bool { return t.rolledBack }

// Query delegates to the pinned Connection. If the connection lost its
// link, the transaction transitions to {!active, rolledBack} and
// ConnectionClosed is returned.
func (t *Transaction) Query(ctx context.Context, sql string, params []conn.Param) *conn.QueryResult {
	if t.conn.Dead() {
		t.active = false
		t.rolledBack = true
		return &conn.QueryResult{OK: false, Code: wire.CodeConnectionClosed, Err: "connection closed"}
	}
	var res *conn.QueryResult
	if len(params) == 0 {
		res = t.conn.ExecSimple(ctx, sql)
	} else {
		res = t.conn.ExecParams(ctx, sql, params)
	}
	if !res.OK && wire.IsFatalConnectionError(wire.NewOpError(res.Code, res.Err)) {
		t.pool.MarkDead(t.conn)
		t.active = false
		t.rolledBack = true
	}
	return res
}

// Commit issues COMMIT (or simply releases, in emulated-autocommit mode).
// Returns false if the transaction was not active.
func (t *Transaction) Commit(ctx context.Context) bool {
	if !t.active {
		return false
	}
	if t.autocommit {
		t.active = false
		t.committed = true
		t.pool.Release(t.conn)
		return true
	}
	res := t.conn.ExecSimple(ctx, "COMMIT")
	t.active = false
	if !res.OK {
		t.rolledBack = true
		if wire.IsFatalConnectionError(wire.NewOpError(res.Code, res.Err)) {
			t.pool.MarkDead(t.conn)
		} else {
			t.pool.Release(t.conn)
		}
		return false
	}
	t.committed = true
	t.pool.Release(t.conn)
	return true
}

// Rollback issues ROLLBACK.
func (t *Transaction) Rollback(ctx context.Context) bool {
	return t.terminate(ctx, "ROLLBACK")
}

// Abort issues ABORT (synonymous with ROLLBACK at the server).
func (t *Transaction) Abort(ctx context.Context) bool {
	return t.terminate(ctx, "ABORT")
}

func (t *Transaction) terminate(ctx context.Context, sql string) bool {
	if !t.active {
		return false
	}
	if t.autocommit {
		t.active = false
		t.rolledBack = true
		t.pool.Release(t.conn)
		return true
	}
	res := t.conn.ExecSimple(ctx, sql)
	t.active = false
	t.rolledBack = true
	if !res.OK && wire.IsFatalConnectionError(wire.NewOpError(res.Code, res.Err)) {
		t.pool.MarkDead(t.conn)
	} else {
		t.pool.Release(t.conn)
	}
	return true
}

// Finish rolls back if still active, then releases.
func (t *Transaction) Finish(ctx context.Context) {
	if t.active {
		t.Rollback(ctx)
	}
}

// Subtransaction is a SAVEPOINT-scoped handle sharing the parent's pinned
// Connection; it does not take a separate Connection.
type Subtransaction struct {
	parent *Transaction
	name   string

	active     bool
	committed  bool
	rolledBack bool
}

// MakeSubtx creates a SAVEPOINT handle with a fresh monotonic name.
func (t *Transaction) MakeSubtx() *Subtransaction {
	return &Subtransaction{parent: t, name: nextSavepointName()}
}

func (s *Subtransaction) Begin(ctx context.Context) bool {
	if !s.parent.active {
		return false
	}
	res := s.parent.conn.ExecSimple(ctx, fmt.Sprintf("SAVEPOINT %s", s.name))
	if !res.OK {
		s.fail(res)
		return false
	}
	s.active = true
	return true
}

func (s *Subtransaction) Commit(ctx context.Context) bool {
	if !s.active {
		return false
	}
	res := s.parent.conn.ExecSimple(ctx, fmt.Sprintf("RELEASE SAVEPOINT %s", s.name))
	s.active = false
	if !res.OK {
		s.fail(res)
		return false
	}
	s.committed = true
	return true
}

func (s *Subtransaction) Rollback(ctx context.Context) bool {
	if !s.active {
		return false
	}
	res := s.parent.conn.ExecSimple(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", s.name))
	s.active = false
	if !res.OK {
		s.fail(res)
		return false
	}
	s.rolledBack = true
	return true
}

// fail handles a failed subtransaction operation: only a fatal connection
// error invalidates the whole parent Transaction (marking its Connection
// dead); a plain SQL error (e.g. an unknown savepoint name) leaves the
// parent active and usable.
func (s *Subtransaction) fail(res *conn.QueryResult) {
	s.rolledBack = true
	if wire.IsFatalConnectionError(wire.NewOpError(res.Code, res.Err)) {
		s.parent.pool.MarkDead(s.parent.conn)
		s.parent.active = false
		s.parent.rolledBack = true
	}
}
