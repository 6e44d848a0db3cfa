package policy

import (
	"strings"
	"testing"
	"time"

	"github.com/me/gridshift/pkg/model"
)

func TestDefaultPolicyEvaluate(t *testing.T) {
	rs := Default(200, 400, 600)

	tests := []struct {
		name     string
		ci       int
		urgency  model.Urgency
		wantMode model.Mode
		wantRule string
	}{
		{"low carbon fast", 150, model.UrgencyFlexible, model.ModeFast, "LOW_CARBON_FAST"},
		{"just below low", 199, model.UrgencyFlexible, model.ModeFast, "LOW_CARBON_FAST"},
		{"at low boundary defers", 200, model.UrgencyFlexible, model.ModeDefer, "MEDIUM_CARBON_DEFER"},
		{"medium band defers", 300, model.UrgencyFlexible, model.ModeDefer, "MEDIUM_CARBON_DEFER"},
		{"at high boundary defers", 400, model.UrgencyFlexible, model.ModeDefer, "MEDIUM_CARBON_DEFER"},
		{"just above high", 401, model.UrgencyFlexible, model.ModeEco, "HIGH_CARBON_ECO"},
		{"high carbon eco", 550, model.UrgencyFlexible, model.ModeEco, "HIGH_CARBON_ECO"},
		{"critical low carbon fast", 100, model.UrgencyCritical, model.ModeFast, "LOW_CARBON_FAST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, ruleID, reason := rs.Evaluate(tt.ci, tt.urgency)
			if mode != tt.wantMode {
				t.Errorf("mode = %s, want %s", mode, tt.wantMode)
			}
			if ruleID != tt.wantRule {
				t.Errorf("rule = %s, want %s", ruleID, tt.wantRule)
			}
			if !strings.Contains(reason, "carbon intensity") {
				t.Errorf("reason %q does not mention the carbon reading", reason)
			}
		})
	}
}

// Every (carbon, urgency) pair must produce a decision: the fallback rule
// guarantees totality.
func TestEvaluateTotality(t *testing.T) {
	rs := Default(200, 400, 600)
	for _, urgency := range []model.Urgency{model.UrgencyCritical, model.UrgencyFlexible} {
		for ci := 0; ci <= 1000; ci += 25 {
			mode, ruleID, _ := rs.Evaluate(ci, urgency)
			if !mode.Valid() {
				t.Fatalf("ci=%d urgency=%s: invalid mode %q", ci, urgency, mode)
			}
			if ruleID == "" {
				t.Fatalf("ci=%d urgency=%s: empty rule id", ci, urgency)
			}
		}
	}
}

func TestDecideCriticalNeverDeferred(t *testing.T) {
	rs := Default(200, 400, 600)
	now := time.Now().UTC()

	// Medium band proposes DEFER; the critical override must force ECO.
	out := rs.Decide(300, model.UrgencyCritical, nil, now)
	if out.Mode != model.ModeEco {
		t.Errorf("mode = %s, want ECO", out.Mode)
	}
	if out.RuleID != RuleCriticalOverride {
		t.Errorf("rule = %s, want %s", out.RuleID, RuleCriticalOverride)
	}
	if out.DeferDeadline != nil {
		t.Errorf("critical job must not carry a defer deadline")
	}
}

func TestDecideFreshDeferGetsDeadline(t *testing.T) {
	rs := Default(200, 400, 600)
	now := time.Now().UTC()

	out := rs.Decide(300, model.UrgencyFlexible, nil, now)
	if out.Mode != model.ModeDefer {
		t.Fatalf("mode = %s, want DEFER", out.Mode)
	}
	// Deadline assignment is bookkeeping: the policy rule id stands.
	if out.RuleID != "MEDIUM_CARBON_DEFER" {
		t.Errorf("rule = %s, want MEDIUM_CARBON_DEFER", out.RuleID)
	}
	if out.DeferDeadline == nil {
		t.Fatal("fresh DEFER must get a deadline")
	}
	want := now.Add(600 * time.Second)
	if !out.DeferDeadline.Equal(want) {
		t.Errorf("deadline = %s, want %s", out.DeferDeadline, want)
	}
}

func TestDecideKeepsExistingDeadline(t *testing.T) {
	rs := Default(200, 400, 600)
	now := time.Now().UTC()
	deadline := now.Add(5 * time.Minute)

	out := rs.Decide(300, model.UrgencyFlexible, &deadline, now)
	if out.Mode != model.ModeDefer {
		t.Fatalf("mode = %s, want DEFER", out.Mode)
	}
	if out.DeferDeadline == nil || !out.DeferDeadline.Equal(deadline) {
		t.Errorf("re-deferral must keep the original deadline, got %v", out.DeferDeadline)
	}
}

func TestDecideExpiredDeadlineForcesEco(t *testing.T) {
	rs := Default(200, 400, 600)
	now := time.Now().UTC()
	deadline := now.Add(-time.Second)

	out := rs.Decide(300, model.UrgencyFlexible, &deadline, now)
	if out.Mode != model.ModeEco {
		t.Errorf("mode = %s, want ECO", out.Mode)
	}
	if out.RuleID != RuleMaxDeferral {
		t.Errorf("rule = %s, want %s", out.RuleID, RuleMaxDeferral)
	}
	if !strings.Contains(out.Reason, deadline.UTC().Format(time.RFC3339)) {
		t.Errorf("reason %q should include the missed deadline", out.Reason)
	}
	if out.DeferDeadline != nil {
		t.Errorf("forced-out job must not carry a deadline")
	}
}

// Decide is a pure function: the same inputs give the same outcome, so a
// released job re-evaluated in the same tick cannot diverge from a fresh one.
func TestDecideIdempotent(t *testing.T) {
	rs := Default(200, 400, 600)
	now := time.Now().UTC()
	deadline := now.Add(3 * time.Minute)

	a := rs.Decide(450, model.UrgencyFlexible, &deadline, now)
	b := rs.Decide(450, model.UrgencyFlexible, &deadline, now)
	if a != b {
		t.Errorf("Decide not deterministic: %+v vs %+v", a, b)
	}
}
