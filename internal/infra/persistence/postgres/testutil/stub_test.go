package testutil

import (
	"context"
	"testing"
)

const upsert = `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`

func TestStubDBCommitsUpserts(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS state (\n\t\tbucket TEXT PRIMARY KEY,\n\t\tpayload JSONB NOT NULL\n\t)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, "inventory", []byte("null")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, ok := conn.Payload("inventory"); ok {
		t.Fatalf("uncommitted upsert must not be visible")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if p, ok := conn.Payload("inventory"); !ok || string(p) != "null" {
		t.Fatalf("expected committed payload, got %q", p)
	}

	conn.Seed("experiments", []byte("{}"))
	rows, err := db.QueryContext(ctx, "SELECT bucket, payload FROM state")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	defer func() { _ = rows.Close() }()
	var got []string
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			t.Fatalf("scan: %v", err)
		}
		got = append(got, bucket+"="+string(payload))
	}
	if len(got) != 2 || got[0] != "experiments={}" || got[1] != "inventory=null" {
		t.Fatalf("unexpected rows %v", got)
	}
	if want := []string{StmtCreate, StmtUpsert, StmtSelect}; len(conn.Execs) != 3 || conn.Execs[0] != want[0] || conn.Execs[1] != want[1] || conn.Execs[2] != want[2] {
		t.Fatalf("unexpected statement log %v", conn.Execs)
	}
}

func TestStubDBRollbackDropsUpserts(t *testing.T) {
	ctx := context.Background()
	db, conn := NewStubDB()
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, "experiments", []byte("{}")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if len(conn.Buckets()) != 0 {
		t.Fatalf("expected nothing committed, got %v", conn.Buckets())
	}
}

func TestStubDBRejectsUnknownStatements(t *testing.T) {
	ctx := context.Background()
	db, _ := NewStubDB()
	defer func() { _ = db.Close() }()

	if _, err := db.ExecContext(ctx, "TRUNCATE TABLE state"); err == nil {
		t.Fatalf("expected truncate to be rejected")
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS state (bucket TEXT, payload TEXT)"); err == nil {
		t.Fatalf("expected a different table layout to be rejected")
	}
	if _, err := db.ExecContext(ctx, upsert, "experiments"); err == nil {
		t.Fatalf("expected missing payload to be rejected")
	}
	if _, err := db.QueryContext(ctx, "SELECT payload FROM state WHERE bucket=$1", "inventory"); err == nil {
		t.Fatalf("expected unsupported select to be rejected")
	}
}
