package conn

import (
	"context"
	"testing"
	"time"
)

func TestCopyInRoundTrip(t *testing.T) {
	c, cleanup := dialTestConn(t, "SELECT 1")
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ci, res := c.CopyInStart(ctx, "COPY t FROM STDIN")
	if !res.OK {
		t.Fatalf("CopyInStart: %q", res.Err)
	}

	if res := ci.SendChunk([]byte("1,a\n")); !res.OK {
		t.Fatalf("SendChunk: %q", res.Err)
	}
	if res := ci.SendChunk([]byte("2,b\n")); !res.OK {
		t.Fatalf("SendChunk: %q", res.Err)
	}

	final := ci.Finish()
	if !final.OK {
		t.Fatalf("Finish: %q", final.Err)
	}
	if final.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d, want 1", final.RowsAffected)
	}
}

func TestCopyInAbortMarksConnDead(t *testing.T) {
	c, cleanup := dialTestConn(t, "SELECT 1")
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ci, res := c.CopyInStart(ctx, "COPY t FROM STDIN")
	if !res.OK {
		t.Fatalf("CopyInStart: %q", res.Err)
	}
	ci.Abort()
	if !c.Dead() {
		t.Fatal("expected Abort to mark the connection dead")
	}
}

func TestCopyOutReadsUntilDone(t *testing.T) {
	c, cleanup := dialTestConn(t, "SELECT 1")
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	co, res := c.CopyOutStart(ctx, "COPY t TO STDOUT")
	if !res.OK {
		t.Fatalf("CopyOutStart: %q", res.Err)
	}

	data, done, res := co.ReadChunk()
	if !res.OK {
		t.Fatalf("ReadChunk: %q", res.Err)
	}
	if done {
		t.Fatal("expected the first chunk to carry data, not Done")
	}
	if string(data) != "0,0" {
		t.Errorf("data = %q, want %q", data, "0,0")
	}

	_, done, res = co.ReadChunk()
	if !res.OK {
		t.Fatalf("ReadChunk (final): %q", res.Err)
	}
	if !done {
		t.Fatal("expected the second ReadChunk to report Done")
	}
}
