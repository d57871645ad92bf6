// Package journal records decoded finger events in SQLite so sessions can be
// inspected and replayed through the mapper later.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"xtouchd/internal/device"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    started_ns  INTEGER NOT NULL,
    ended_ns    INTEGER,
    protocol    TEXT NOT NULL,
    note        TEXT
);

CREATE TABLE IF NOT EXISTS finger_events (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    INTEGER NOT NULL REFERENCES sessions(id),
    timestamp_ns  INTEGER NOT NULL,
    player        INTEGER NOT NULL,
    finger_id     INTEGER NOT NULL,
    x             INTEGER NOT NULL,
    y             INTEGER NOT NULL,
    pressed       INTEGER NOT NULL,
    zone_mask     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_finger_events_session ON finger_events(session_id, timestamp_ns);
`

// Session is one daemon run.
type Session struct {
	ID        int64
	StartedAt time.Time
	EndedAt   *time.Time
	Protocol  string
	Note      string
}

// Event is one decoded finger report.
type Event struct {
	ID        int64
	SessionID int64
	Time      time.Time
	Player    int
	Finger    device.Finger
	// Mask is the zone mask the finger mapped to when recorded; 0 for
	// releases.
	Mask uint64
}

// Journal is the SQLite event store.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// StartSession opens a new session and returns its id.
func (j *Journal) StartSession(protocol, note string) (int64, error) {
	res, err := j.db.Exec(`INSERT INTO sessions (started_ns, protocol, note) VALUES (?, ?, ?)`,
		time.Now().UnixNano(), protocol, note)
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get session id: %w", err)
	}
	return id, nil
}

// EndSession stamps the session's end time.
func (j *Journal) EndSession(id int64) error {
	if _, err := j.db.Exec(`UPDATE sessions SET ended_ns = ? WHERE id = ?`, time.Now().UnixNano(), id); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// Sessions lists sessions, newest first.
func (j *Journal) Sessions() ([]Session, error) {
	rows, err := j.db.Query(`SELECT id, started_ns, ended_ns, protocol, COALESCE(note, '') FROM sessions ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&s.ID, &started, &ended, &s.Protocol, &s.Note); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		s.StartedAt = time.Unix(0, started)
		if ended.Valid {
			t := time.Unix(0, ended.Int64)
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Insert writes events in one transaction.
func (j *Journal) Insert(events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO finger_events (session_id, timestamp_ns, player, finger_id, x, y, pressed, zone_mask)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		// zone_mask holds the bits of the uint64 mask; SQLite integers are signed.
		if _, err := stmt.Exec(e.SessionID, e.Time.UnixNano(), e.Player, e.Finger.ID,
			e.Finger.X, e.Finger.Y, e.Finger.Pressed, int64(e.Mask)); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return tx.Commit()
}

// Events returns a session's events in time order. A negative player
// selects every player.
func (j *Journal) Events(sessionID int64, player int) ([]Event, error) {
	rows, err := j.db.Query(`
		SELECT id, session_id, timestamp_ns, player, finger_id, x, y, pressed, zone_mask
		FROM finger_events
		WHERE session_id = ? AND (? < 0 OR player = ?)
		ORDER BY timestamp_ns, id`, sessionID, player, player)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ts, mask int64
		if err := rows.Scan(&e.ID, &e.SessionID, &ts, &e.Player, &e.Finger.ID,
			&e.Finger.X, &e.Finger.Y, &e.Finger.Pressed, &mask); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Time = time.Unix(0, ts)
		e.Mask = uint64(mask)
		events = append(events, e)
	}
	return events, rows.Err()
}

// Replay calls fn for each event, pacing calls by the recorded gaps divided
// by speed. speed <= 0 replays without delay.
func Replay(ctx context.Context, events []Event, speed float64, fn func(Event)) error {
	for i, e := range events {
		if speed > 0 && i > 0 {
			gap := time.Duration(float64(e.Time.Sub(events[i-1].Time)) / speed)
			if gap > 0 {
				timer := time.NewTimer(gap)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(e)
	}
	return nil
}
