// Package journal keeps an audit log of secure computations in SQLite.
// It records what was computed and the revealed result, never inputs or
// shares.
package journal

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Status values for Entry.Status.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Entry is one computation.
type Entry struct {
	ID        int64
	SessionID string
	Parties   int
	Field     string
	Period    int
	Length    int
	// Result is the revealed EMA. It is zero for failed computations.
	Result   float64
	Status   string
	Error    string
	Started  time.Time
	Finished time.Time
}

// Journal is a SQLite-backed audit log, safe for concurrent use.
type Journal struct {
	db     *sql.DB
	insert *sql.Stmt
	recent *sql.Stmt

	mu     sync.Mutex
	closed bool
}

const schema = `
	CREATE TABLE IF NOT EXISTS computations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		parties INTEGER NOT NULL,
		field TEXT NOT NULL,
		period INTEGER NOT NULL,
		length INTEGER NOT NULL,
		result REAL NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_computations_started ON computations(started_at);
`

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal: empty path")
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "journal: opening %s", path)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "journal: creating schema")
	}

	j := &Journal{db: db}
	j.insert, err = db.Prepare(`INSERT INTO computations
		(session_id, parties, field, period, length, result, status, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "journal: preparing insert")
	}
	j.recent, err = db.Prepare(`SELECT id, session_id, parties, field, period, length,
		result, status, error, started_at, finished_at
		FROM computations ORDER BY started_at DESC, id DESC LIMIT ?`)
	if err != nil {
		j.insert.Close()
		db.Close()
		return nil, errors.Wrap(err, "journal: preparing query")
	}
	return j, nil
}

// Record stores e and returns its ID.
func (j *Journal) Record(ctx context.Context, e Entry) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, errors.New("journal: closed")
	}
	if e.Status == "" {
		e.Status = StatusOK
	}
	res, err := j.insert.ExecContext(ctx, e.SessionID, e.Parties, e.Field, e.Period,
		e.Length, e.Result, e.Status, e.Error, e.Started.UnixNano(), e.Finished.UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, "journal: recording computation")
	}
	return res.LastInsertId()
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, errors.New("journal: closed")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.recent.QueryContext(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "journal: querying")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var started, finished int64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Parties, &e.Field, &e.Period,
			&e.Length, &e.Result, &e.Status, &e.Error, &started, &finished); err != nil {
			return nil, errors.Wrap(err, "journal: scanning row")
		}
		e.Started = time.Unix(0, started)
		e.Finished = time.Unix(0, finished)
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "journal: reading rows")
}

// Close releases the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	j.insert.Close()
	j.recent.Close()
	return j.db.Close()
}
