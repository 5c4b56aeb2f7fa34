package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-pass
// LogPass writes one recompute pass to the evaluation_passes table.
func LogPass(db *sql.DB, entry PassEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO evaluation_passes (pass_id, session_id, signature, result, label_scan_gen, nudge_count, visible_count, skips_json, took_us, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.PassID,
		entry.SessionID,
		nullIfEmpty(entry.Signature),
		entry.Result,
		int64(entry.LabelScanGen),
		entry.NudgeCount,
		entry.VisibleCount,
		nullIfEmpty(entry.SkipsJSON),
		entry.TookMicros,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log pass: %w", err)
	}
	return nil
}
// #endregion log-pass

// #region log-dismissal
// LogDismissal writes one dismissed nudge id. Repeat dismissals of the same
// id within a session are ignored.
func LogDismissal(db *sql.DB, entry DismissalEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT OR IGNORE INTO dismissals (session_id, nudge_id, rule_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		entry.SessionID,
		entry.NudgeID,
		nullIfEmpty(entry.RuleID),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log dismissal: %w", err)
	}
	return nil
}
// #endregion log-dismissal

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
// #endregion helpers
