// Package testutil provides an in-process stand-in for the postgres state
// table used by store tests.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Statement kinds understood by the stub.
const (
	StmtCreate = "create"
	StmtSelect = "select"
	StmtUpsert = "upsert"
)

var driverSeq atomic.Int64

// StubConn emulates the `state(bucket, payload)` table. Upserts issued inside
// a transaction become visible on commit and are dropped on rollback.
type StubConn struct {
	mu      sync.Mutex
	state   map[string][]byte
	pending map[string][]byte
	inTx    bool

	// Execs lists the kind of every statement executed, in order.
	Execs []string

	FailPing   bool
	FailBegin  bool
	FailCreate bool
	FailSelect bool
	FailUpsert bool
	FailCommit bool
	// RowsErr is returned by the select cursor after its last row.
	RowsErr error
}

// NewStubDB registers a fresh driver and returns a sql.DB bound to its
// single connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{state: make(map[string][]byte)}
	name := fmt.Sprintf("stubpg%d", driverSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(1)
	return db, conn
}

// Seed stores a committed row.
func (c *StubConn) Seed(bucket string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[bucket] = append([]byte(nil), payload...)
}

// Payload returns the committed payload of bucket.
func (c *StubConn) Payload(bucket string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.state[bucket]
	return p, ok
}

// Buckets lists committed bucket names in sorted order.
func (c *StubConn) Buckets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.state))
	for b := range c.state {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn. Statements go through ExecContext and
// QueryContext instead.
func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stub: prepared statements are not supported")
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return errors.New("stub: ping refused")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailBegin {
		return nil, errors.New("stub: begin refused")
	}
	c.inTx = true
	c.pending = make(map[string][]byte)
	return stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	kind, err := classify(query)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, kind)
	switch kind {
	case StmtCreate:
		if c.FailCreate {
			return nil, errors.New("stub: create refused")
		}
		return driver.RowsAffected(0), nil
	case StmtUpsert:
		if c.FailUpsert {
			return nil, errors.New("stub: upsert refused")
		}
		bucket, payload, err := upsertArgs(args)
		if err != nil {
			return nil, err
		}
		if c.inTx {
			c.pending[bucket] = payload
		} else {
			c.state[bucket] = payload
		}
		return driver.RowsAffected(1), nil
	default:
		return nil, fmt.Errorf("stub: %s is not an exec statement", kind)
	}
}

// QueryContext implements driver.QueryerContext.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	kind, err := classify(query)
	if err != nil {
		return nil, err
	}
	if kind != StmtSelect {
		return nil, fmt.Errorf("stub: %s is not a query", kind)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Execs = append(c.Execs, kind)
	if c.FailSelect {
		return nil, errors.New("stub: select refused")
	}
	buckets := make([]string, 0, len(c.state))
	for b := range c.state {
		buckets = append(buckets, b)
	}
	sort.Strings(buckets)
	rows := &stubRows{err: c.RowsErr}
	for _, b := range buckets {
		rows.rows = append(rows.rows, []driver.Value{b, append([]byte(nil), c.state[b]...)})
	}
	return rows, nil
}

// classify maps the statements the store issues to a kind. Anything else is
// rejected so a changed query fails loudly.
func classify(query string) (string, error) {
	q := strings.ToUpper(strings.Join(strings.Fields(query), " "))
	switch {
	case strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS STATE ("):
		if !strings.Contains(q, "BUCKET TEXT PRIMARY KEY") || !strings.Contains(q, "PAYLOAD JSONB") {
			return "", fmt.Errorf("stub: unexpected state table layout: %s", query)
		}
		return StmtCreate, nil
	case q == "SELECT BUCKET, PAYLOAD FROM STATE":
		return StmtSelect, nil
	case strings.HasPrefix(q, "INSERT INTO STATE(BUCKET,PAYLOAD) VALUES($1,$2) ON CONFLICT(BUCKET) DO UPDATE"):
		return StmtUpsert, nil
	default:
		return "", fmt.Errorf("stub: unsupported statement: %s", query)
	}
}

func upsertArgs(args []driver.NamedValue) (string, []byte, error) {
	if len(args) != 2 {
		return "", nil, fmt.Errorf("stub: upsert takes 2 args, got %d", len(args))
	}
	bucket, ok := args[0].Value.(string)
	if !ok {
		return "", nil, fmt.Errorf("stub: bucket must be a string, got %T", args[0].Value)
	}
	payload, ok := args[1].Value.([]byte)
	if !ok {
		return "", nil, fmt.Errorf("stub: payload must be bytes, got %T", args[1].Value)
	}
	return bucket, append([]byte(nil), payload...), nil
}

type stubTx struct {
	conn *StubConn
}

func (t stubTx) Commit() error {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endTx()
	if c.FailCommit {
		return errors.New("stub: commit refused")
	}
	for b, p := range c.pending {
		c.state[b] = p
	}
	return nil
}

func (t stubTx) Rollback() error {
	c := t.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTx()
	return nil
}

func (c *StubConn) endTx() {
	c.inTx = false
	c.pending = nil
}

type stubRows struct {
	rows [][]driver.Value
	idx  int
	err  error
}

func (r *stubRows) Columns() []string { return []string{"bucket", "payload"} }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		if r.err != nil {
			return r.err
		}
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
