package model

// JobStatus represents the lifecycle state of a Job.
type JobStatus string

const (
	StatusQueued    JobStatus = "QUEUED"
	StatusDeferred  JobStatus = "DEFERRED"
	StatusScheduled JobStatus = "SCHEDULED"
	StatusRunning   JobStatus = "RUNNING"
	StatusDone      JobStatus = "DONE"
)

// String returns the string representation of the job status.
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the job is in a final state.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone
}

// ValidJobTransitions defines the allowed status transitions. A job may cycle
// through DEFERRED until released, but must pass through SCHEDULED before
// RUNNING.
var ValidJobTransitions = map[JobStatus][]JobStatus{
	StatusQueued:    {StatusDeferred, StatusScheduled},
	StatusDeferred:  {StatusDeferred, StatusScheduled},
	StatusScheduled: {StatusRunning},
	StatusRunning:   {StatusDone},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range ValidJobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Mode is the execution mode chosen for a job.
type Mode string

const (
	ModeFast Mode = "FAST"
	ModeEco  Mode = "ECO"

	// ModeDefer is a policy outcome that routes a job into the deferred set.
	// It is never persisted as a job's mode.
	ModeDefer Mode = "DEFER"
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	return string(m)
}

// Valid reports whether m is a recognized decision mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeFast, ModeEco, ModeDefer:
		return true
	}
	return false
}

// Urgency tags how a job tolerates waiting. Critical jobs are never deferred.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyFlexible Urgency = "flexible"
)

// String returns the string representation of the urgency.
func (u Urgency) String() string {
	return string(u)
}

// Valid reports whether u is a recognized urgency.
func (u Urgency) Valid() bool {
	return u == UrgencyCritical || u == UrgencyFlexible
}
