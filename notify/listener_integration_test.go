package notify

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

// TestListener_Integration subscribes against a real PostgreSQL via
// DATABASE_URL and verifies payload decoding end to end.
func TestListener_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	listener := NewListener(func(ctx context.Context) (*pgx.Conn, error) {
		return pgx.Connect(ctx, dsn)
	}, nil)

	events := make(chan ChangeEvent, 4)
	listenCtx, stop := context.WithCancel(ctx)
	defer stop()
	go listener.Run(listenCtx, events)

	// Give the listener a moment to issue LISTEN before publishing.
	time.Sleep(500 * time.Millisecond)

	pub, err := pgx.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect publisher: %v", err)
	}
	defer pub.Close(ctx)

	payload := `{"table":"identities","op":"UPDATE","account_id":"acct-42"}`
	if _, err := pub.Exec(ctx, `SELECT pg_notify($1, $2)`, Channel, payload); err != nil {
		t.Fatalf("pg_notify: %v", err)
	}
	// A malformed payload must be skipped, not kill the listener.
	if _, err := pub.Exec(ctx, `SELECT pg_notify($1, 'not json')`, Channel); err != nil {
		t.Fatalf("pg_notify malformed: %v", err)
	}
	if _, err := pub.Exec(ctx, `SELECT pg_notify($1, $2)`, Channel,
		`{"table":"identities","op":"DELETE","account_id":"acct-43"}`); err != nil {
		t.Fatalf("pg_notify second: %v", err)
	}

	want := []ChangeEvent{
		{Table: TableIdentities, Op: OpUpdate, AccountID: "acct-42"},
		{Table: TableIdentities, Op: OpDelete, AccountID: "acct-43"},
	}
	for i, expected := range want {
		select {
		case got := <-events:
			if got != expected {
				t.Fatalf("event %d: expected %+v, got %+v", i, expected, got)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}
