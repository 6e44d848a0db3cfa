package config

import (
	"testing"
	"time"
)

func TestEnvString(t *testing.T) {
	t.Setenv("GRIDSHIFT_TEST_STR", "")
	if got := EnvString("GRIDSHIFT_TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("unset = %q, want fallback", got)
	}
	t.Setenv("GRIDSHIFT_TEST_STR", "value")
	if got := EnvString("GRIDSHIFT_TEST_STR", "fallback"); got != "value" {
		t.Errorf("set = %q, want value", got)
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("GRIDSHIFT_TEST_INT", "")
	if got := EnvInt("GRIDSHIFT_TEST_INT", 42); got != 42 {
		t.Errorf("unset = %d, want 42", got)
	}
	t.Setenv("GRIDSHIFT_TEST_INT", "250")
	if got := EnvInt("GRIDSHIFT_TEST_INT", 42); got != 250 {
		t.Errorf("set = %d, want 250", got)
	}
	t.Setenv("GRIDSHIFT_TEST_INT", "not-a-number")
	if got := EnvInt("GRIDSHIFT_TEST_INT", 42); got != 42 {
		t.Errorf("unparseable = %d, want 42", got)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("GRIDSHIFT_TEST_DUR", "5s")
	if got := EnvDuration("GRIDSHIFT_TEST_DUR", time.Second); got != 5*time.Second {
		t.Errorf("set = %s, want 5s", got)
	}
	t.Setenv("GRIDSHIFT_TEST_DUR", "soon")
	if got := EnvDuration("GRIDSHIFT_TEST_DUR", time.Second); got != time.Second {
		t.Errorf("unparseable = %s, want 1s", got)
	}
}

func TestDefaultSchedulerConfigEnv(t *testing.T) {
	t.Setenv("LOW_THRESHOLD", "180")
	t.Setenv("HIGH_THRESHOLD", "380")
	t.Setenv("MAX_DEFERRAL_SECONDS", "900")
	t.Setenv("TICK_INTERVAL", "10s")
	t.Setenv("CARBON_FIXED", "250")

	cfg := DefaultSchedulerConfig()
	if cfg.LowThreshold != 180 || cfg.HighThreshold != 380 {
		t.Errorf("thresholds = (%d, %d)", cfg.LowThreshold, cfg.HighThreshold)
	}
	if cfg.MaxDeferralSeconds != 900 {
		t.Errorf("max deferral = %d", cfg.MaxDeferralSeconds)
	}
	if cfg.TickInterval != 10*time.Second {
		t.Errorf("tick = %s", cfg.TickInterval)
	}
	if cfg.CarbonFixed != 250 {
		t.Errorf("carbon fixed = %d", cfg.CarbonFixed)
	}
}
