package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sapo-planner/nudge-controller/internal/logging"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	rules_source  TEXT,
	rule_count    INTEGER NOT NULL,
	started_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS evaluation_passes (
	pass_id        TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL,
	signature      TEXT,
	result         TEXT NOT NULL,
	label_scan_gen INTEGER NOT NULL,
	nudge_count    INTEGER NOT NULL,
	visible_count  INTEGER NOT NULL,
	skips_json     TEXT,
	took_us        INTEGER NOT NULL,
	created_at     TEXT NOT NULL,
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE TABLE IF NOT EXISTS dismissals (
	session_id    TEXT NOT NULL,
	nudge_id      TEXT NOT NULL,
	rule_id       TEXT,
	created_at    TEXT NOT NULL,
	PRIMARY KEY (session_id, nudge_id),
	FOREIGN KEY (session_id) REFERENCES sessions(session_id)
);

CREATE INDEX IF NOT EXISTS idx_passes_session ON evaluation_passes(session_id, created_at);
`
// #endregion schema

// #region store-struct
// Store keeps the nudge audit trail in SQLite. It satisfies the
// orchestrator's Recorder.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// pragmas are per connection, and each ":memory:" connection is its own
	// database
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region sessions
// StartSession registers a session. Starting the same id twice is a no-op.
func (s *Store) StartSession(rec SessionRecord) error {
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	var source interface{}
	if rec.RulesSource != "" {
		source = rec.RulesSource
	}
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (session_id, rules_source, rule_count, started_at)
		 VALUES (?, ?, ?, ?)`,
		rec.SessionID, source, rec.RuleCount, rec.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

// ListSessions returns the most recent sessions with their counts.
func (s *Store) ListSessions(limit int) ([]SessionSummary, error) {
	rows, err := s.db.Query(
		`SELECT s.session_id, s.rules_source, s.rule_count, s.started_at,
		        (SELECT COUNT(*) FROM evaluation_passes p WHERE p.session_id = s.session_id),
		        (SELECT COUNT(*) FROM evaluation_passes p WHERE p.session_id = s.session_id AND p.result = 'memo_hit'),
		        (SELECT COUNT(*) FROM dismissals d WHERE d.session_id = s.session_id)
		 FROM sessions s ORDER BY s.started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var source sql.NullString
		var startedStr string
		if err := rows.Scan(&sum.SessionID, &source, &sum.RuleCount, &startedStr,
			&sum.Passes, &sum.MemoHits, &sum.Dismissals); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if source.Valid {
			sum.RulesSource = source.String
		}
		sum.StartedAt, _ = time.Parse(time.RFC3339Nano, startedStr)
		out = append(out, sum)
	}
	return out, rows.Err()
}
// #endregion sessions

// #region recorder
// RecordPass stores one pass.
func (s *Store) RecordPass(entry logging.PassEntry) error {
	return logging.LogPass(s.db, entry)
}

// RecordDismissal stores one dismissal.
func (s *Store) RecordDismissal(entry logging.DismissalEntry) error {
	return logging.LogDismissal(s.db, entry)
}
// #endregion recorder

// #region list-passes
// ListPasses returns the most recent passes of a session, newest first.
func (s *Store) ListPasses(sessionID string, limit int) ([]PassRecord, error) {
	rows, err := s.db.Query(
		`SELECT pass_id, session_id, signature, result, label_scan_gen, nudge_count,
		        visible_count, skips_json, took_us, created_at
		 FROM evaluation_passes WHERE session_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list passes: %w", err)
	}
	defer rows.Close()

	var out []PassRecord
	for rows.Next() {
		var rec PassRecord
		var sig, skips sql.NullString
		var gen, tookUs int64
		var createdStr string
		if err := rows.Scan(&rec.PassID, &rec.SessionID, &sig, &rec.Result, &gen,
			&rec.NudgeCount, &rec.VisibleCount, &skips, &tookUs, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if sig.Valid {
			rec.Signature = sig.String
		}
		if skips.Valid {
			rec.SkipsJSON = skips.String
		}
		rec.LabelScanGen = uint64(gen)
		rec.Took = time.Duration(tookUs) * time.Microsecond
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}
// #endregion list-passes

// #region list-dismissals
// ListDismissals returns a session's dismissals in the order they happened.
func (s *Store) ListDismissals(sessionID string) ([]DismissalRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, nudge_id, rule_id, created_at
		 FROM dismissals WHERE session_id = ? ORDER BY created_at, rowid`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list dismissals: %w", err)
	}
	defer rows.Close()

	var out []DismissalRecord
	for rows.Next() {
		var rec DismissalRecord
		var rule sql.NullString
		var createdStr string
		if err := rows.Scan(&rec.SessionID, &rec.NudgeID, &rule, &createdStr); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if rule.Valid {
			rec.RuleID = rule.String
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}
// #endregion list-dismissals
