package policy

import (
	"fmt"
	"time"

	"github.com/me/gridshift/pkg/model"
)

// RuleSet is the compiled, immutable policy evaluated by the scheduler.
// It is built once at startup from a Config and never mutated afterwards.
type RuleSet struct {
	low         int
	high        int
	maxDeferral time.Duration
	rules       []rule
}

// rule is a compiled (condition, mode, id) tuple.
type rule struct {
	id     string
	mode   model.Mode
	reason string
	cond   condition
}

// carbonCmp enumerates the carbon comparison of a compiled condition.
type carbonCmp int

const (
	cmpNone carbonCmp = iota
	cmpBelow
	cmpAbove
	cmpBetween
)

// condition is the compiled predicate form. The closed set of condition kinds
// (always, urgency-equals, carbon-below, carbon-above, carbon-between, and the
// conjunction of urgency with a carbon range) all reduce to this shape:
// an optional urgency equality AND an optional carbon comparison.
// Both absent means always-true.
type condition struct {
	hasUrgency bool
	urgency    model.Urgency
	cmp        carbonCmp
	lo         int
	hi         int
}

// always reports whether the condition matches every input.
func (c condition) always() bool {
	return !c.hasUrgency && c.cmp == cmpNone
}

// matches evaluates the predicate. An unrecognized comparator never matches,
// so a malformed rule falls through to the mandatory fallback instead of
// crashing the tick.
func (c condition) matches(ci int, urgency model.Urgency) bool {
	if c.hasUrgency && urgency != c.urgency {
		return false
	}
	switch c.cmp {
	case cmpNone:
		return true
	case cmpBelow:
		return ci < c.lo
	case cmpAbove:
		return ci > c.lo
	case cmpBetween:
		return ci >= c.lo && ci <= c.hi
	}
	return false
}

// Low returns the low carbon threshold (green-window boundary).
func (rs *RuleSet) Low() int {
	return rs.low
}

// High returns the high carbon threshold.
func (rs *RuleSet) High() int {
	return rs.high
}

// MaxDeferral returns the maximum time a flexible job may sit in the
// deferred set before the max-deferral guardrail forces it out.
func (rs *RuleSet) MaxDeferral() time.Duration {
	return rs.maxDeferral
}

// Evaluate walks the rules in declaration order and returns the first match.
// The load-time validation guarantees the last rule is always-true, so every
// (ci, urgency) pair produces a decision.
func (rs *RuleSet) Evaluate(ci int, urgency model.Urgency) (model.Mode, string, string) {
	for _, r := range rs.rules {
		if r.cond.matches(ci, urgency) {
			return r.mode, r.id, fmt.Sprintf("%s (carbon intensity %d)", r.reason, ci)
		}
	}
	// Unreachable when the rule set was validated, but never leave a job
	// without a decision.
	last := rs.rules[len(rs.rules)-1]
	return last.mode, last.id, fmt.Sprintf("%s (carbon intensity %d)", last.reason, ci)
}

// Outcome is a complete scheduling decision for one job: the policy result
// with guardrails applied. When a guardrail fires, its rule id and reason
// replace the policy's.
type Outcome struct {
	Mode          model.Mode
	RuleID        string
	Reason        string
	DeferDeadline *time.Time // set iff Mode == DEFER
}

// Decide evaluates the policy and then enforces guardrails, producing the
// decision the scheduler persists. It is a pure function of its inputs, so
// re-evaluating a released job under the same (ci, urgency, now) yields the
// same outcome as a fresh evaluation.
func (rs *RuleSet) Decide(ci int, urgency model.Urgency, existingDeadline *time.Time, now time.Time) Outcome {
	mode, ruleID, reason := rs.Evaluate(ci, urgency)

	ov := Enforce(mode, urgency, existingDeadline, now, rs.maxDeferral)
	out := Outcome{
		Mode:          ov.Mode,
		RuleID:        ruleID,
		Reason:        reason,
		DeferDeadline: ov.DeferDeadline,
	}
	if ov.Fired {
		out.RuleID = ov.RuleID
		out.Reason = ov.Reason
	}
	return out
}
