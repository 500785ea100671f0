package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/usub/upq/conn"
	"github.com/usub/upq/internal/pgtest"
	"github.com/usub/upq/wire"
)

func dialTestConn(t *testing.T) (*conn.Conn, *pgtest.FakeServer) {
	t.Helper()
	srv, err := pgtest.Start("LISTEN")
	if err != nil {
		t.Fatalf("pgtest.Start: %v", err)
	}
	host, port := srv.HostPort()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := conn.Dial(ctx, wire.Endpoint{Host: host, Port: port, User: "u", Database: "d"}, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("Dial: %v", err)
	}
	return c, srv
}

func TestListenerDispatchesNotification(t *testing.T) {
	c, srv := dialTestConn(t)
	defer srv.Close()
	defer c.Close()

	raw, ok := srv.WaitReady(2 * time.Second)
	if !ok {
		t.Fatal("server never saw the client complete startup")
	}

	var mu sync.Mutex
	var gotChannel, gotPayload string
	received := make(chan struct{})

	handler := func(ctx context.Context, channel, payload string, pid uint32) {
		mu.Lock()
		gotChannel, gotPayload = channel, payload
		mu.Unlock()
		close(received)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l, err := NewListener(ctx, c, "events", handler, nil)
	if err != nil {
		t.Fatalf("NewListener: %v", err)
	}
	go l.Run(ctx)
	defer l.Stop()

	if !srv.SendNotification(raw, "events", "hello", 42) {
		t.Fatal("failed to send fake NotificationResponse")
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotChannel != "events" || gotPayload != "hello" {
		t.Errorf("got channel=%q payload=%q", gotChannel, gotPayload)
	}
}

func TestMultiplexerDispatchesToAllHandlers(t *testing.T) {
	c, srv := dialTestConn(t)
	defer srv.Close()
	defer c.Close()

	raw, ok := srv.WaitReady(2 * time.Second)
	if !ok {
		t.Fatal("server never saw the client complete startup")
	}

	var count int32
	var mu sync.Mutex
	done := make(chan struct{}, 2)
	handler := func(ctx context.Context, channel, payload string, pid uint32) {
		mu.Lock()
		count++
		mu.Unlock()
		done <- struct{}{}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m := NewMultiplexer(c, nil)
	if err := m.AddHandler(ctx, "orders", handler); err != nil {
		t.Fatalf("AddHandler 1: %v", err)
	}
	if err := m.AddHandler(ctx, "orders", handler); err != nil {
		t.Fatalf("AddHandler 2: %v", err)
	}
	go m.Run(ctx)
	defer m.Stop()

	if !srv.SendNotification(raw, "orders", "payload", 7) {
		t.Fatal("failed to send fake NotificationResponse")
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("not all handlers fired")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("count = %d, want 2 (one per registered handler)", count)
	}
}
