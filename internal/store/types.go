package store

import "time"

// #region session-record
// SessionRecord is one orchestrator session.
type SessionRecord struct {
	SessionID   string
	RulesSource string
	RuleCount   int
	StartedAt   time.Time
}
// #endregion session-record

// #region pass-record
// PassRecord is one stored recompute pass.
type PassRecord struct {
	PassID       string
	SessionID    string
	Signature    string
	Result       string
	LabelScanGen uint64
	NudgeCount   int
	VisibleCount int
	SkipsJSON    string
	Took         time.Duration
	CreatedAt    time.Time
}
// #endregion pass-record

// #region dismissal-record
// DismissalRecord is one stored dismissal.
type DismissalRecord struct {
	SessionID string
	NudgeID   string
	RuleID    string
	CreatedAt time.Time
}
// #endregion dismissal-record

// #region session-summary
// SessionSummary pairs a session with its pass and dismissal counts.
type SessionSummary struct {
	SessionRecord
	Passes     int
	MemoHits   int
	Dismissals int
}
// #endregion session-summary
