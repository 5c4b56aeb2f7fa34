package logging

import "time"

// #region pass-entry
// PassEntry is a single row in the evaluation_passes table.
type PassEntry struct {
	PassID       string
	SessionID    string
	Signature    string
	Result       string // "evaluated" | "memo_hit" | "disabled"
	LabelScanGen uint64
	NudgeCount   int
	VisibleCount int
	SkipsJSON    string
	TookMicros   int64
	CreatedAt    time.Time
}
// #endregion pass-entry

// #region dismissal-entry
// DismissalEntry is a single row in the dismissals table.
type DismissalEntry struct {
	SessionID string
	NudgeID   string
	RuleID    string
	CreatedAt time.Time
}
// #endregion dismissal-entry

// #region skip-record
// SkipRecord is one rule skipped during a pass, serialized into
// evaluation_passes.skips_json.
type SkipRecord struct {
	RuleID string `json:"rule_id"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}
// #endregion skip-record
