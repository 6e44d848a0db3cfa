package policy

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/me/gridshift/pkg/model"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk policy representation. Thresholds, the ordered rule
// list, and the max-deferral guardrail parameter are loaded once at process
// start; reload-on-change is deliberately not supported.
type Config struct {
	Thresholds         Thresholds   `yaml:"thresholds"`
	MaxDeferralSeconds int          `yaml:"max_deferral_seconds"`
	Rules              []RuleConfig `yaml:"rules"`
}

// Thresholds are the two named carbon-intensity boundaries conditions may
// reference by name.
type Thresholds struct {
	Low  *int `yaml:"low"`
	High *int `yaml:"high"`
}

// RuleConfig is one ordered (condition, mode, rule-id) tuple.
type RuleConfig struct {
	ID          string    `yaml:"id"`
	Description string    `yaml:"description"`
	Mode        string    `yaml:"mode"`
	When        Condition `yaml:"when"`
}

// Condition is the structured predicate of a rule. Exactly the closed set of
// kinds is expressible: always, urgency-equals, carbon-below, carbon-above,
// carbon-between, or the conjunction of urgency with one carbon comparison.
// Anything else is a configuration error at load time.
type Condition struct {
	Always        bool          `yaml:"always,omitempty"`
	Urgency       string        `yaml:"urgency,omitempty"`
	CarbonBelow   *CarbonValue  `yaml:"carbon_below,omitempty"`
	CarbonAbove   *CarbonValue  `yaml:"carbon_above,omitempty"`
	CarbonBetween []CarbonValue `yaml:"carbon_between,omitempty"`
}

// CarbonValue is either a literal carbon intensity or a reference to a named
// threshold ("low" or "high").
type CarbonValue struct {
	name    string
	literal int
	isName  bool
}

// UnmarshalYAML accepts an integer literal or a threshold name.
func (v *CarbonValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("carbon value must be an integer or a threshold name")
	}
	if n, err := strconv.Atoi(node.Value); err == nil {
		v.literal = n
		return nil
	}
	v.name = node.Value
	v.isName = true
	return nil
}

// resolve returns the concrete intensity for this value.
func (v CarbonValue) resolve(t Thresholds) (int, error) {
	if !v.isName {
		return v.literal, nil
	}
	switch v.name {
	case "low":
		return *t.Low, nil
	case "high":
		return *t.High, nil
	}
	return 0, fmt.Errorf("unknown threshold %q (known: low, high)", v.name)
}

// Load reads and compiles a policy file. Any validation failure is returned
// as an error; callers treat it as fatal at startup.
func Load(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy %s: %w", path, err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", path, err)
	}
	return rs, nil
}

// Parse compiles a YAML policy document. Unknown fields are rejected so a
// condition outside the closed set fails at startup rather than being guessed
// at evaluation time.
func Parse(data []byte) (*RuleSet, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return Compile(cfg)
}

// Compile validates a Config and produces the immutable RuleSet.
func Compile(cfg Config) (*RuleSet, error) {
	if cfg.Thresholds.Low == nil || cfg.Thresholds.High == nil {
		return nil, fmt.Errorf("thresholds.low and thresholds.high are required")
	}
	low, high := *cfg.Thresholds.Low, *cfg.Thresholds.High
	if low >= high {
		return nil, fmt.Errorf("thresholds.low (%d) must be below thresholds.high (%d)", low, high)
	}
	if cfg.MaxDeferralSeconds <= 0 {
		return nil, fmt.Errorf("max_deferral_seconds must be positive, got %d", cfg.MaxDeferralSeconds)
	}
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("rules must not be empty")
	}

	rs := &RuleSet{
		low:         low,
		high:        high,
		maxDeferral: time.Duration(cfg.MaxDeferralSeconds) * time.Second,
	}

	seen := make(map[string]bool, len(cfg.Rules))
	for i, rc := range cfg.Rules {
		if rc.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if seen[rc.ID] {
			return nil, fmt.Errorf("rule %d: duplicate id %q", i, rc.ID)
		}
		seen[rc.ID] = true

		mode := model.Mode(rc.Mode)
		if !mode.Valid() {
			return nil, fmt.Errorf("rule %s: invalid mode %q (want FAST, ECO or DEFER)", rc.ID, rc.Mode)
		}

		cond, err := compileCondition(rc.When, cfg.Thresholds)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", rc.ID, err)
		}
		if cond.always() && i != len(cfg.Rules)-1 {
			return nil, fmt.Errorf("rule %s: always-true condition makes later rules unreachable", rc.ID)
		}

		reason := rc.Description
		if reason == "" {
			reason = fmt.Sprintf("matched policy rule %s", rc.ID)
		}

		rs.rules = append(rs.rules, rule{id: rc.ID, mode: mode, reason: reason, cond: cond})
	}

	if !rs.rules[len(rs.rules)-1].cond.always() {
		return nil, fmt.Errorf("last rule %s must have an always-true condition (mandatory fallback)", rs.rules[len(rs.rules)-1].id)
	}

	return rs, nil
}

// compileCondition maps a Condition onto the closed predicate set.
func compileCondition(c Condition, t Thresholds) (condition, error) {
	comparators := 0
	if c.CarbonBelow != nil {
		comparators++
	}
	if c.CarbonAbove != nil {
		comparators++
	}
	if len(c.CarbonBetween) > 0 {
		comparators++
	}

	if c.Always {
		if c.Urgency != "" || comparators > 0 {
			return condition{}, fmt.Errorf("always cannot be combined with other predicates")
		}
		return condition{}, nil
	}
	if c.Urgency == "" && comparators == 0 {
		return condition{}, fmt.Errorf("empty condition (use always: true for the fallback rule)")
	}
	if comparators > 1 {
		return condition{}, fmt.Errorf("at most one carbon comparison per condition")
	}

	var out condition
	if c.Urgency != "" {
		u := model.Urgency(c.Urgency)
		if !u.Valid() {
			return condition{}, fmt.Errorf("invalid urgency %q (want critical or flexible)", c.Urgency)
		}
		out.hasUrgency = true
		out.urgency = u
	}

	switch {
	case c.CarbonBelow != nil:
		v, err := c.CarbonBelow.resolve(t)
		if err != nil {
			return condition{}, fmt.Errorf("carbon_below: %w", err)
		}
		out.cmp = cmpBelow
		out.lo = v
	case c.CarbonAbove != nil:
		v, err := c.CarbonAbove.resolve(t)
		if err != nil {
			return condition{}, fmt.Errorf("carbon_above: %w", err)
		}
		out.cmp = cmpAbove
		out.lo = v
	case len(c.CarbonBetween) > 0:
		if len(c.CarbonBetween) != 2 {
			return condition{}, fmt.Errorf("carbon_between wants exactly [low, high], got %d values", len(c.CarbonBetween))
		}
		lo, err := c.CarbonBetween[0].resolve(t)
		if err != nil {
			return condition{}, fmt.Errorf("carbon_between[0]: %w", err)
		}
		hi, err := c.CarbonBetween[1].resolve(t)
		if err != nil {
			return condition{}, fmt.Errorf("carbon_between[1]: %w", err)
		}
		if lo >= hi {
			return condition{}, fmt.Errorf("carbon_between bounds inverted: [%d, %d]", lo, hi)
		}
		out.cmp = cmpBetween
		out.lo = lo
		out.hi = hi
	}

	return out, nil
}

// Default returns the built-in policy: FAST below the low threshold, ECO
// above the high threshold, DEFER in the medium band. Thresholds follow the
// LOW_THRESHOLD / HIGH_THRESHOLD defaults of 200 and 400 gCO2/kWh.
func Default(low, high, maxDeferralSeconds int) *RuleSet {
	rs, err := Compile(Config{
		Thresholds:         Thresholds{Low: &low, High: &high},
		MaxDeferralSeconds: maxDeferralSeconds,
		Rules: []RuleConfig{
			{
				ID:          "LOW_CARBON_FAST",
				Description: "carbon intensity below low threshold",
				Mode:        string(model.ModeFast),
				When:        Condition{CarbonBelow: &CarbonValue{name: "low", isName: true}},
			},
			{
				ID:          "HIGH_CARBON_ECO",
				Description: "carbon intensity above high threshold",
				Mode:        string(model.ModeEco),
				When:        Condition{CarbonAbove: &CarbonValue{name: "high", isName: true}},
			},
			{
				ID:          "MEDIUM_CARBON_DEFER",
				Description: "carbon intensity in medium band",
				Mode:        string(model.ModeDefer),
				When:        Condition{Always: true},
			},
		},
	})
	if err != nil {
		// The built-in policy is static; a compile failure is a programming error.
		panic(fmt.Sprintf("default policy: %v", err))
	}
	return rs
}
