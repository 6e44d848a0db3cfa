package policy

import (
	"testing"
	"time"

	"github.com/me/gridshift/pkg/model"
)

func TestEnforce(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	maxDeferral := 10 * time.Minute

	tests := []struct {
		name         string
		mode         model.Mode
		urgency      model.Urgency
		deadline     *time.Time
		wantMode     model.Mode
		wantRule     string
		wantFired    bool
		wantDeadline *time.Time
	}{
		{
			name:     "fast passes through",
			mode:     model.ModeFast,
			urgency:  model.UrgencyFlexible,
			wantMode: model.ModeFast,
		},
		{
			name:     "eco passes through",
			mode:     model.ModeEco,
			urgency:  model.UrgencyCritical,
			wantMode: model.ModeEco,
		},
		{
			name:      "critical defer forced to eco",
			mode:      model.ModeDefer,
			urgency:   model.UrgencyCritical,
			wantMode:  model.ModeEco,
			wantRule:  RuleCriticalOverride,
			wantFired: true,
		},
		{
			// Critical-override wins even when the deadline has also passed;
			// at most one guardrail fires.
			name:      "critical defer with expired deadline still critical override",
			mode:      model.ModeDefer,
			urgency:   model.UrgencyCritical,
			deadline:  &past,
			wantMode:  model.ModeEco,
			wantRule:  RuleCriticalOverride,
			wantFired: true,
		},
		{
			name:      "expired deadline forced to eco",
			mode:      model.ModeDefer,
			urgency:   model.UrgencyFlexible,
			deadline:  &past,
			wantMode:  model.ModeEco,
			wantRule:  RuleMaxDeferral,
			wantFired: true,
		},
		{
			name:      "deadline exactly now counts as expired",
			mode:      model.ModeDefer,
			urgency:   model.UrgencyFlexible,
			deadline:  &now,
			wantMode:  model.ModeEco,
			wantRule:  RuleMaxDeferral,
			wantFired: true,
		},
		{
			name:         "deadline in future keeps deferring",
			mode:         model.ModeDefer,
			urgency:      model.UrgencyFlexible,
			deadline:     &future,
			wantMode:     model.ModeDefer,
			wantDeadline: &future,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ov := Enforce(tt.mode, tt.urgency, tt.deadline, now, maxDeferral)
			if ov.Mode != tt.wantMode {
				t.Errorf("mode = %s, want %s", ov.Mode, tt.wantMode)
			}
			if ov.Fired != tt.wantFired {
				t.Errorf("fired = %v, want %v", ov.Fired, tt.wantFired)
			}
			if ov.RuleID != tt.wantRule {
				t.Errorf("rule = %q, want %q", ov.RuleID, tt.wantRule)
			}
			if tt.wantDeadline != nil {
				if ov.DeferDeadline == nil || !ov.DeferDeadline.Equal(*tt.wantDeadline) {
					t.Errorf("deadline = %v, want %v", ov.DeferDeadline, tt.wantDeadline)
				}
			}
		})
	}
}

func TestEnforceFreshDeferDeadline(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ov := Enforce(model.ModeDefer, model.UrgencyFlexible, nil, now, 10*time.Minute)
	if ov.Fired {
		t.Error("deadline assignment must not count as a guardrail firing")
	}
	if ov.Mode != model.ModeDefer {
		t.Errorf("mode = %s, want DEFER", ov.Mode)
	}
	want := now.Add(10 * time.Minute)
	if ov.DeferDeadline == nil || !ov.DeferDeadline.Equal(want) {
		t.Errorf("deadline = %v, want %s", ov.DeferDeadline, want)
	}
}
