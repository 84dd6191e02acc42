package main

import "testing"

func TestEnvOrInt(t *testing.T) {
	t.Setenv("BLACKBOXD_TEST_INT", "42")
	if got := envOrInt("BLACKBOXD_TEST_INT", 7); got != 42 {
		t.Errorf("envOrInt = %d, want 42", got)
	}
	t.Setenv("BLACKBOXD_TEST_INT", "not-a-number")
	if got := envOrInt("BLACKBOXD_TEST_INT", 7); got != 7 {
		t.Errorf("envOrInt with bad value = %d, want fallback 7", got)
	}
	if got := envOrInt("BLACKBOXD_TEST_INT_UNSET", 7); got != 7 {
		t.Errorf("envOrInt unset = %d, want fallback 7", got)
	}
}

func TestFlagEnvDefaults(t *testing.T) {
	t.Setenv("BLACKBOXD_MAX_MODELS", "5")
	t.Setenv("BLACKBOXD_BASE_PORT", "9100")

	cmd := newRootCmd()
	if got := cmd.Flags().Lookup("max-models").DefValue; got != "5" {
		t.Errorf("max-models default = %s, want 5", got)
	}
	if got := cmd.Flags().Lookup("base-port").DefValue; got != "9100" {
		t.Errorf("base-port default = %s, want 9100", got)
	}
}
