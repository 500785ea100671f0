// Package notify implements LISTEN/NOTIFY fan-out: a single-channel
// Listener that drains notification frames off a pinned Connection and
// spawns a handler task per delivery, and a Multiplexer that maintains a
// channel-to-handlers map over one underlying Connection.
package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/usub/upq/conn"
)

// Handler processes one notification. Handlers run detached and must be
// independent — no shared mutable state unless protected externally.
type Handler func(ctx context.Context, channel, payload string, backendPID uint32)

// Listener holds a Connection pinned to LISTEN <channel> and fans out
// incoming NOTIFY deliveries to a single handler.
type Listener struct {
	conn    *conn.Conn
	channel string
	handler Handler
	logger  *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener issues LISTEN <channel> on c and returns a Listener ready to
// be started with Run.
func NewListener(ctx context.Context, c *conn.Conn, channel string, handler Handler, logger *zap.Logger) (*Listener, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	res := c.ExecSimple(ctx, fmt.Sprintf("LISTEN %s", channel))
	if !res.OK {
		return nil, fmt.Errorf("notify: LISTEN %s failed: %s", channel, res.Err)
	}
	c.StartNotifyLoop(context.Background())
	return &Listener{conn: c, channel: channel, handler: handler, logger: logger, done: make(chan struct{})}, nil
}

// Run drains notifications until the connection fails or ctx is cancelled.
// Fatal socket errors terminate the listener — there is no automatic
// reconnect at this layer.
func (l *Listener) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-l.conn.Notifications():
			if !ok {
				return
			}
			channel, payload, pid := n.Channel, n.Payload, n.BackendPID
			go func() {
				defer func() {
					if r := recover(); r != nil {
						l.logger.Error("notification handler panicked", zap.Any("recover", r))
					}
				}()
				l.handler(ctx, channel, payload, pid)
			}()
		}
		if l.conn.Dead() {
			return
		}
	}
}

// Stop ends the listener loop.
func (l *Listener) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
}

// Multiplexer maintains channel -> [handlers] over a single shared
// Connection: adding a handler for a new channel issues LISTEN, adding to
// an existing channel only appends.
type Multiplexer struct {
	conn   *conn.Conn
	logger *zap.Logger

	mu       sync.Mutex
	handlers map[string][]Handler

	cancel context.CancelFunc
}

// NewMultiplexer wraps a Connection for fan-out across many channels.
func NewMultiplexer(c *conn.Conn, logger *zap.Logger) *Multiplexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multiplexer{conn: c, logger: logger, handlers: map[string][]Handler{}}
}

// AddHandler registers handler for channel, issuing LISTEN the first time
// this channel is seen. All channels must be registered before Run starts:
// once running, the Connection's read side belongs to the dispatch loop.
func (m *Multiplexer) AddHandler(ctx context.Context, channel string, handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.handlers[channel]
	if !exists {
		res := m.conn.ExecSimple(ctx, fmt.Sprintf("LISTEN %s", channel))
		if !res.OK {
			return fmt.Errorf("notify: LISTEN %s failed: %s", channel, res.Err)
		}
	}
	m.handlers[channel] = append(m.handlers[channel], handler)
	return nil
}

// Run dispatches one goroutine per registered handler per arriving
// notification. Ordering per channel is FIFO as delivered by the server;
// across channels, no ordering is guaranteed once tasks are detached.
func (m *Multiplexer) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.conn.StartNotifyLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-m.conn.Notifications():
			if !ok {
				return
			}
			m.dispatch(ctx, n.Channel, n.Payload, n.BackendPID)
		}
		if m.conn.Dead() {
			return
		}
	}
}

func (m *Multiplexer) dispatch(ctx context.Context, channel, payload string, pid uint32) {
	m.mu.Lock()
	handlers := append([]Handler(nil), m.handlers[channel]...)
	m.mu.Unlock()

	for _, h := range handlers {
		h := h
		go func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("notification handler panicked", zap.Any("recover", r))
				}
			}()
			h(ctx, channel, payload, pid)
		}()
	}
}

// Stop ends the multiplexer's dispatch loop.
func (m *Multiplexer) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}
