// Package conn owns a single PostgreSQL session: startup and
// authentication, simple and extended query execution, COPY streaming,
// server-side cursors, and raw notification draining. A Conn is exclusively
// owned by one caller at a time — the Pool on the idle side, or the
// acquiring task on the in-use side — and carries at most one in-flight
// command.
package conn

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgproto3"
	"go.uber.org/zap"

	"github.com/usub/upq/metrics"
	"github.com/usub/upq/wire"
)

// Notification is one LISTEN/NOTIFY delivery drained off the wire.
type Notification struct {
	Channel   string
	Payload   string
	BackendPID uint32
}

// Conn owns one TCP socket and one server session.
type Conn struct {
	id       string
	endpoint wire.Endpoint
	logger   *zap.Logger

	netConn  net.Conn
	frontend *pgproto3.Frontend

	mu       sync.Mutex // serialises commands: one in-flight at a time
	dead     atomic.Bool
	pid      uint32
	secret   uint32
	params   map[string]string
	txStatus wire.TxStatus

	notifications chan Notification
	inCopy        bool
}

// Dial opens a TCP connection to the endpoint, performs protocol-v3
// startup and authentication, and blocks until ReadyForQuery declares the
// session usable. ctx bounds the whole connect sequence.
func Dial(ctx context.Context, ep wire.Endpoint, logger *zap.Logger) (*Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := &net.Dialer{}
	addr := net.JoinHostPort(ep.Host, ep.Port)
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, wire.WrapOpError(wire.CodeSocketReadFailed, err)
	}

	id := uuid.NewString()
	c := &Conn{
		id:            id,
		endpoint:      ep,
		logger:        logger.With(zap.String("conn_id", id)),
		netConn:       nc,
		frontend:      pgproto3.NewFrontend(nc, nc),
		params:        map[string]string{},
		notifications: make(chan Notification, 64),
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = nc.SetDeadline(deadline)
	}
	defer nc.SetDeadline(time.Time{})

	if err := c.startup(ep); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) startup(ep wire.Endpoint) error {
	params := map[string]string{
		"user":            ep.User,
		"client_encoding": "UTF8",
	}
	if ep.Database != "" {
		params["database"] = ep.Database
	}
	c.frontend.Send(&pgproto3.StartupMessage{
		ProtocolVersion: wire.ProtocolVersion3,
		Parameters:      params,
	})
	if err := c.frontend.Flush(); err != nil {
		return wire.WrapOpError(wire.CodeSocketReadFailed, err)
	}

	for {
		msg, err := c.frontend.Receive()
		if err != nil {
			return wire.WrapOpError(wire.CodeSocketReadFailed, err)
		}
		switch m := msg.(type) {
		case *pgproto3.AuthenticationOk:
			// continue to BackendKeyData/ParameterStatus/ReadyForQuery
		case *pgproto3.AuthenticationCleartextPassword:
			c.frontend.Send(&pgproto3.PasswordMessage{Password: ep.Password})
			if err := c.frontend.Flush(); err != nil {
				return wire.WrapOpError(wire.CodeSocketReadFailed, err)
			}
		case *pgproto3.AuthenticationMD5Password:
			digest := wire.MD5PasswordDigest(ep.User, ep.Password, m.Salt)
			c.frontend.Send(&pgproto3.PasswordMessage{Password: digest})
			if err := c.frontend.Flush(); err != nil {
				return wire.WrapOpError(wire.CodeSocketReadFailed, err)
			}
		case *pgproto3.BackendKeyData:
			c.pid = m.ProcessID
			c.secret = m.SecretKey
		case *pgproto3.ParameterStatus:
			c.params[m.Name] = m.Value
		case *pgproto3.ReadyForQuery:
			c.txStatus = wire.TxStatus(m.TxStatus)
			return nil
		case *pgproto3.ErrorResponse:
			return wire.NewOpError(wire.CodeAuthFailed, errorResponseMessage(m))
		default:
			// ignore unrecognised startup-phase messages
		}
	}
}

func errorResponseMessage(m *pgproto3.ErrorResponse) string {
	if m.Message != "" {
		return m.Message
	}
	return "server returned an error during startup"
}

func detailFromErrorResponse(m *pgproto3.ErrorResponse) wire.ErrorDetail {
	return wire.ErrorDetail{
		SqlState: m.Code,
		Message:  m.Message,
		Detail:   m.Detail,
		Hint:     m.Hint,
		Category: wire.ClassifySqlState(m.Code),
	}
}

// ID is a per-connection identifier useful for logging and metrics labels.
func (c *Conn) ID() string { return c.id }

// Dead reports whether this connection has transitioned to the terminal
// dead state and must never be re-enqueued into a Pool.
func (c *Conn) Dead() bool { return c.dead.Load() }

// MarkDead transitions the connection to the terminal dead state. Safe to
// call more than once.
func (c *Conn) MarkDead() {
	if c.dead.CompareAndSwap(false, true) {
		c.logger.Debug("connection marked dead", zap.String("conn_id", c.id))
	}
}

// Close releases the underlying socket. Safe to call on an already-dead
// connection.
func (c *Conn) Close() error {
	c.MarkDead()
	return c.netConn.Close()
}

// Endpoint returns the endpoint this connection was dialed against.
func (c *Conn) Endpoint() wire.Endpoint { return c.endpoint }

// armCancelWatch ties ctx's cancellation to the socket for the duration of
// a command: if ctx is cancelled before the command completes, the socket
// is closed and the connection marked dead, since the session state mid-op
// becomes unknowable (dropping the operation is not safe to resume from).
// The returned disarm must be called once the command finishes normally.
func (c *Conn) armCancelWatch(ctx context.Context) (disarm func()) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.netConn.SetDeadline(deadline)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.MarkDead()
			_ = c.netConn.Close()
		case <-done:
		}
	}()
	return func() {
		close(done)
		_ = c.netConn.SetDeadline(time.Time{})
	}
}

// ExecSimple sends sql as a single Query frame and collects every result
// in the batch. If the server emits ErrorResponse the final result's
// OK=false and ErrDetail is populated from the error fields.
func (c *Conn) ExecSimple(ctx context.Context, sql string) *QueryResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	result := c.execSimple(ctx, sql)
	metrics.QueryLatency.WithLabelValues(c.endpoint.Host).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if !result.OK {
		outcome = "error"
	}
	metrics.QueryTotal.WithLabelValues(c.endpoint.Host, outcome).Inc()
	return result
}

func (c *Conn) execSimple(ctx context.Context, sql string) *QueryResult {
	if c.dead.Load() {
		return errorResult(wire.NewOpError(wire.CodeConnectionClosed, "connection is dead"))
	}

	disarm := c.armCancelWatch(ctx)
	defer disarm()

	result := &QueryResult{OK: true, RowsValid: true}
	c.frontend.Send(&pgproto3.Query{String: sql})
	if err := c.frontend.Flush(); err != nil {
		c.MarkDead()
		return errorResult(wire.WrapOpError(wire.CodeSocketReadFailed, err))
	}

	for {
		msg, err := c.frontend.Receive()
		if err != nil {
			c.MarkDead()
			return errorResult(wire.WrapOpError(wire.CodeSocketReadFailed, err))
		}
		switch m := msg.(type) {
		case *pgproto3.RowDescription:
			result.Columns = columnNames(m)
			result.Rows = nil
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

func columnNames(rd *pgproto3.RowDescription) []string {
	names := make([]string, len(rd.Fields))
	for i, f := range rd.Fields {
		names[i] = string(f.Name)
	}
	return names
}

func decodeDataRow(dr *pgproto3.DataRow) []*string {
	cells := make([]*string, len(dr.Values))
	for i, v := range dr.Values {
		if v == nil {
			cells[i] = nil
			continue
		}
		s := string(v)
		cells[i] = &s
	}
	return cells
}

func (c *Conn) deliverNotification(m *pgproto3.NotificationResponse) {
	n := Notification{Channel: m.Channel, Payload: m.Payload, BackendPID: m.PID}
	select {
	case c.notifications <- n:
	default:
		c.logger.Warn("notification channel full, dropping", zap.String("channel", m.Channel))
	}
}

// Notifications exposes the channel notification frames are drained onto,
// consumed by the notify package's listener loop.
func (c *Conn) Notifications() <-chan Notification { return c.notifications }

// StartNotifyLoop dedicates this Conn to draining the socket in the
// background for NotificationResponse frames, so LISTEN deliveries arrive
// even with no command in flight. Once started, no other command
// (ExecSimple, ExecParams, COPY, cursors) may be issued on this Conn — a
// listening connection owns the socket's read side for the rest of its
// life. The loop exits when ctx is cancelled or the connection dies; when
// it exits because the connection died, the Notifications channel is closed.
func (c *Conn) StartNotifyLoop(ctx context.Context) {
	go c.notifyLoop(ctx)
}

func (c *Conn) notifyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if c.dead.Load() {
			close(c.notifications)
			return
		}
		msg, err := c.frontend.Receive()
		if err != nil {
			c.MarkDead()
			close(c.notifications)
			return
		}
		switch m := msg.(type) {
		case *pgproto3.NotificationResponse:
			c.deliverNotification(m)
		case *pgproto3.ErrorResponse:
			if wire.ContainsFatalPhrase(m.Message) {
				c.MarkDead()
				close(c.notifications)
				return
			}
		case *pgproto3.ReadyForQuery:
			c.txStatus = wire.TxStatus(m.TxStatus)
		}
	}
}
