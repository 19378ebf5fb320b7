// Package elevjournal keeps an SQLite record of one controller run: every
// event handled, every action sent and how the server settled it. Rows are
// tagged with a session id so several runs can share one file.
package elevjournal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"elevdispatch/common"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db      *sql.DB
	session string
}

type EventRecord struct {
	Session     string
	ID          int
	Type        string
	Time        int64
	Description string
	RecordedAt  time.Time
}

type ActionRecord struct {
	Session string
	ID      int
	Type    string
	Params  string
	SentAt  time.Time
	Status  string // empty until settled
	Reason  string
}

// New opens (or creates) the journal at path. An empty session gets a
// fresh random id.
func New(path, session string) (*Store, error) {
	if session == "" {
		session = uuid.NewString()
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, session: session}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Session() string { return s.session }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		row         INTEGER PRIMARY KEY AUTOINCREMENT,
		session     TEXT NOT NULL,
		event_id    INTEGER NOT NULL,
		type        TEXT NOT NULL,
		sim_time    INTEGER NOT NULL,
		description TEXT,
		recorded_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session, row);

	CREATE TABLE IF NOT EXISTS actions (
		session    TEXT NOT NULL,
		action_id  INTEGER NOT NULL,
		type       TEXT NOT NULL,
		params     TEXT NOT NULL,
		sent_at    TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT '',
		reason     TEXT NOT NULL DEFAULT '',
		settled_at TEXT,
		PRIMARY KEY (session, action_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (s *Store) RecordEvent(ev common.Event) error {
	ts := now()
	return retryOp(defaultRetryConfig, func() error {
		_, err := s.db.Exec(
			`INSERT INTO events (session, event_id, type, sim_time, description, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			s.session, ev.ID, ev.Type, ev.Time, string(ev.Description), ts,
		)
		return err
	})
}

// RecordAction stores a sent action. Sending the same id twice in one
// session keeps the first row.
func (s *Store) RecordAction(a common.Action) error {
	params, err := json.Marshal(a.Params)
	if err != nil {
		return fmt.Errorf("encode params of action %d: %w", a.ID, err)
	}
	ts := now()
	return retryOp(defaultRetryConfig, func() error {
		_, err := s.db.Exec(
			`INSERT INTO actions (session, action_id, type, params, sent_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(session, action_id) DO NOTHING`,
			s.session, a.ID, a.Type, string(params), ts,
		)
		return err
	})
}

func (s *Store) RecordOutcome(actionID int, status, reason string) error {
	ts := now()
	return retryOp(defaultRetryConfig, func() error {
		res, err := s.db.Exec(
			`UPDATE actions SET status = ?, reason = ?, settled_at = ?
			 WHERE session = ? AND action_id = ?`,
			status, reason, ts, s.session, actionID,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("outcome for unrecorded action %d", actionID)
		}
		return nil
	})
}

// Events returns up to limit events of this session, oldest first. A limit
// of zero or less means no limit.
func (s *Store) Events(limit int) ([]EventRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT session, event_id, type, sim_time, COALESCE(description, ''), recorded_at
		 FROM events WHERE session = ? ORDER BY row LIMIT ?`,
		s.session, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var r EventRecord
		var at string
		if err := rows.Scan(&r.Session, &r.ID, &r.Type, &r.Time, &r.Description, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.RecordedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Actions returns up to limit actions of this session in id order.
func (s *Store) Actions(limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT session, action_id, type, params, sent_at, status, reason
		 FROM actions WHERE session = ? ORDER BY action_id LIMIT ?`,
		s.session, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var out []ActionRecord
	for rows.Next() {
		var r ActionRecord
		var at string
		if err := rows.Scan(&r.Session, &r.ID, &r.Type, &r.Params, &at, &r.Status, &r.Reason); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		r.SentAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, r)
	}
	return out, rows.Err()
}
