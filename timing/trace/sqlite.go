// Package trace records cache controller events into a SQLite database.
package trace

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/l0csim/timing/cache"
)

// Event kinds stored in the kind column.
const (
	KindStatus  = "status"
	KindMemReq  = "mem_req"
	KindFill    = "fill"
	KindDeliver = "deliver"
)

type row struct {
	cycle  uint64
	kind   string
	port   int
	slot   int
	reqID  uint64
	addr   uint64
	tag    uint64
	data   uint64
	status string
	txnID  string
}

// SQLiteRecorder is a hook that buffers cache events and writes them in
// batches. Every recorder run gets its own run id, so several runs can share
// one database.
type SQLiteRecorder struct {
	*sql.DB

	path      string
	runID     string
	statement *sql.Stmt
	rows      []row
	batchSize int
}

// NewSQLiteRecorder creates a database at path. The file must not exist.
// Buffered events are flushed when the program exits through atexit.
func NewSQLiteRecorder(path string) (*SQLiteRecorder, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("trace file %s already exists", path)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}

	r := &SQLiteRecorder{
		DB:        db,
		path:      path,
		runID:     xid.New().String(),
		batchSize: 10000,
	}

	if err := r.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	r.statement, err = db.Prepare(`INSERT INTO event
		(run_id, cycle, kind, port, slot, req_id, addr, tag, data, status, txn_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare trace statement: %w", err)
	}

	atexit.Register(func() {
		if err := r.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "trace flush: %v\n", err)
		}
	})

	return r, nil
}

func (r *SQLiteRecorder) createTables() error {
	stmts := []string{
		`CREATE TABLE run
		(
			run_id   VARCHAR(20) NOT NULL PRIMARY KEY,
			metadata TEXT
		);`,
		`CREATE TABLE event
		(
			run_id VARCHAR(20) NOT NULL,
			cycle  INTEGER     NOT NULL,
			kind   VARCHAR(16) NOT NULL,
			port   INTEGER,
			slot   INTEGER,
			req_id INTEGER,
			addr   INTEGER,
			tag    INTEGER,
			data   INTEGER,
			status VARCHAR(32),
			txn_id VARCHAR(20)
		);`,
		`CREATE INDEX event_cycle_index ON event (cycle);`,
		`CREATE INDEX event_kind_index ON event (kind);`,
		`CREATE INDEX event_req_id_index ON event (req_id);`,
	}

	for _, s := range stmts {
		if _, err := r.Exec(s); err != nil {
			return fmt.Errorf("failed to create trace tables: %w", err)
		}
	}

	return nil
}

// Path returns the database file.
func (r *SQLiteRecorder) Path() string {
	return r.path
}

// RunID returns the id that tags this recorder's rows.
func (r *SQLiteRecorder) RunID() string {
	return r.runID
}

// RecordRun stores metadata about the run as JSON.
func (r *SQLiteRecorder) RecordRun(metadata any) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize run metadata: %w", err)
	}

	_, err = r.Exec(`INSERT INTO run (run_id, metadata) VALUES (?, ?)`,
		r.runID, string(data))
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	return nil
}

// Func records one controller event. Positions it does not know are
// ignored.
func (r *SQLiteRecorder) Func(ctx sim.HookCtx) {
	ev, ok := ctx.Detail.(cache.Event)
	if !ok {
		return
	}

	rw := row{cycle: ev.Cycle, port: ev.Port, slot: ev.Slot}

	switch ctx.Pos {
	case cache.HookPosStatus:
		st := ctx.Item.(cache.StatusResp)
		rw.kind = KindStatus
		rw.reqID = st.ID
		rw.status = st.Status.String()
	case cache.HookPosMemReq:
		mr := ctx.Item.(cache.MemReq)
		rw.kind = KindMemReq
		rw.addr = mr.Addr
		rw.tag = mr.Tag
		rw.txnID = mr.TxnID
	case cache.HookPosFill:
		resp := ctx.Item.(cache.MemResp)
		rw.kind = KindFill
		rw.tag = resp.Tag
		rw.data = resp.Data
		rw.txnID = resp.TxnID
	case cache.HookPosDeliver:
		d := ctx.Item.(cache.DataResp)
		rw.kind = KindDeliver
		rw.reqID = d.ID
		rw.data = d.Data
	default:
		return
	}

	r.rows = append(r.rows, rw)
	if len(r.rows) >= r.batchSize {
		if err := r.Flush(); err != nil {
			panic(err)
		}
	}
}

// Flush writes all buffered events in one transaction.
func (r *SQLiteRecorder) Flush() error {
	if len(r.rows) == 0 {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin trace transaction: %w", err)
	}

	stmt := tx.Stmt(r.statement)
	for _, rw := range r.rows {
		_, err := stmt.Exec(r.runID, int64(rw.cycle), rw.kind, rw.port,
			rw.slot, int64(rw.reqID), int64(rw.addr), int64(rw.tag),
			int64(rw.data), rw.status, rw.txnID)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert trace event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace events: %w", err)
	}

	r.rows = r.rows[:0]

	return nil
}

// Close flushes and closes the database.
func (r *SQLiteRecorder) Close() error {
	if err := r.Flush(); err != nil {
		return err
	}

	r.statement.Close()

	return r.DB.Close()
}
