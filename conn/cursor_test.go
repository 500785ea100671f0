package conn

import (
	"context"
	"testing"
	"time"
)

func TestCursorDeclareAndFetch(t *testing.T) {
	c, cleanup := dialTestConn(t, "SELECT 1")
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if res := c.CursorDeclare(ctx, "cur1", "select * from t"); !res.OK {
		t.Fatalf("CursorDeclare: %q", res.Err)
	}

	cur := c.Cursor("cur1")
	chunk, res := cur.FetchChunk(ctx, 5)
	if !res.OK {
		t.Fatalf("FetchChunk: %q", res.Err)
	}
	if len(chunk.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(chunk.Rows))
	}
	if !chunk.Done {
		t.Error("expected Done=true when fewer rows than requested came back")
	}

	if res := cur.Close(ctx); !res.OK {
		t.Fatalf("Close: %q", res.Err)
	}
}
