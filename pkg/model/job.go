package model

import "time"

// Job is a unit of compute work moving through the carbon-aware lifecycle:
// QUEUED at intake, then DEFERRED or SCHEDULED by the scheduler, RUNNING and
// DONE by a worker.
type Job struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Urgency Urgency   `json:"urgency"`
	Status  JobStatus `json:"status"`

	// Mode is set when the job is scheduled: FAST or ECO. It stays empty
	// while the job is queued or deferred.
	Mode Mode `json:"mode,omitempty"`

	// Decision fields, written atomically by the scheduler. RuleID names the
	// policy rule (or guardrail) behind the decision; Reason is its
	// human-readable explanation including the carbon reading.
	DecisionAt       *time.Time `json:"decision_timestamp,omitempty"`
	CarbonAtDecision *int       `json:"carbon_intensity_at_decision,omitempty"`
	RuleID           string     `json:"policy_rule_id,omitempty"`
	Reason           string     `json:"decision_reason,omitempty"`

	// DeferDeadline is set iff the job is DEFERRED: the latest moment the
	// max-deferral guardrail lets it wait.
	DeferDeadline *time.Time `json:"defer_deadline_ts,omitempty"`

	// Execution outcome, written by the worker on completion.
	DurationMS  int64   `json:"duration_ms,omitempty"`
	EmissionsKG float64 `json:"emissions_kg,omitempty"`
	Result      string  `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Decision is one scheduling outcome for a job. The store persists all of its
// fields in a single write so a reader never observes a half-applied decision.
type Decision struct {
	Status           JobStatus
	Mode             Mode // empty when Status is DEFERRED
	DecisionAt       time.Time
	CarbonAtDecision int
	RuleID           string
	Reason           string
	DeferDeadline    *time.Time // set iff Status is DEFERRED, cleared otherwise
}

// Result is the execution outcome a worker reports when a job finishes.
type Result struct {
	DurationMS  int64
	EmissionsKG float64
	Result      string
	CompletedAt time.Time
}
