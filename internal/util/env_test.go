package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value    string
		def      bool
		expected bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"yes", false, true},
		{"ON", false, true},
		{"false", true, false},
		{"0", true, false},
		{"off", true, false},
		{"garbage", true, true},
		{"garbage", false, false},
		{"", true, true},
	}
	for _, tc := range cases {
		if tc.value != "" {
			t.Setenv("TEST_BOOL", tc.value)
		}
		got := ParseBoolEnv("TEST_BOOL", tc.def)
		if got != tc.expected {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, expected %v", tc.value, tc.def, got, tc.expected)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := ParseIntEnv("TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("TEST_INT", "not-a-number")
	if got := ParseIntEnv("TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
	if got := ParseIntEnv("TEST_INT_UNSET", 9); got != 9 {
		t.Errorf("expected default 9, got %d", got)
	}
}

func TestParseFloatEnv(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.75")
	if got := ParseFloatEnv("TEST_FLOAT", 0.5); got != 0.75 {
		t.Errorf("expected 0.75, got %f", got)
	}
	t.Setenv("TEST_FLOAT", "bad")
	if got := ParseFloatEnv("TEST_FLOAT", 0.5); got != 0.5 {
		t.Errorf("expected default 0.5, got %f", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("TEST_DUR", "15s")
	if got := ParseDurationEnv("TEST_DUR", time.Minute); got != 15*time.Second {
		t.Errorf("expected 15s, got %v", got)
	}
	t.Setenv("TEST_DUR", "nope")
	if got := ParseDurationEnv("TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("expected default 1m, got %v", got)
	}
}
