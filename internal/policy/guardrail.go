package policy

import (
	"fmt"
	"time"

	"github.com/me/gridshift/pkg/model"
)

// Guardrail rule identifiers. These appear in the persisted policy_rule_id
// field when a guardrail overrides the policy decision.
const (
	RuleCriticalOverride = "GUARDRAIL_CRITICAL_OVERRIDE"
	RuleMaxDeferral      = "GUARDRAIL_MAX_DEFERRAL"
)

// Override is the result of running the guardrails over a proposed decision.
// When Fired is true the override's rule id and reason supersede the policy's
// for persistence and explanation.
type Override struct {
	Mode          model.Mode
	DeferDeadline *time.Time
	RuleID        string
	Reason        string
	Fired         bool
}

// Enforce applies the two safety guardrails to a proposed mode, in fixed
// order: critical-override before max-deferral. At most one guardrail fires
// per evaluation.
//
// Critical-override: a critical job proposed for DEFER is forced to ECO with
// no deadline; critical jobs may wait one tick for queue service but never
// enter the unbounded deferred set.
//
// Max-deferral: a fresh DEFER gets a deadline of now + maxDeferral (this is
// bookkeeping, not an override; the policy's rule id stands). A DEFER whose
// existing deadline has passed is forced to ECO, bounding worst-case wait for
// any flexible job.
func Enforce(mode model.Mode, urgency model.Urgency, existingDeadline *time.Time, now time.Time, maxDeferral time.Duration) Override {
	if urgency == model.UrgencyCritical && mode == model.ModeDefer {
		return Override{
			Mode:   model.ModeEco,
			RuleID: RuleCriticalOverride,
			Reason: "critical urgency overrides deferral; executing in ECO mode",
			Fired:  true,
		}
	}

	if mode == model.ModeDefer {
		if existingDeadline == nil {
			deadline := now.Add(maxDeferral)
			return Override{Mode: model.ModeDefer, DeferDeadline: &deadline}
		}
		if !now.Before(*existingDeadline) {
			return Override{
				Mode:   model.ModeEco,
				RuleID: RuleMaxDeferral,
				Reason: fmt.Sprintf("maximum deferral reached (deadline %s); executing in ECO mode", existingDeadline.UTC().Format(time.RFC3339)),
				Fired:  true,
			}
		}
		// Still within the deadline: keep deferring with the original deadline.
		return Override{Mode: model.ModeDefer, DeferDeadline: existingDeadline}
	}

	return Override{Mode: mode}
}
