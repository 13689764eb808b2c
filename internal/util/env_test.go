package util

import (
	"testing"
	"time"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("SA_TEST_STRING", "  value ")
	if got := EnvOrDefault("SA_TEST_STRING", "x"); got != "value" {
		t.Errorf("EnvOrDefault = %q, want value", got)
	}
	t.Setenv("SA_TEST_STRING", "   ")
	if got := EnvOrDefault("SA_TEST_STRING", "x"); got != "x" {
		t.Errorf("EnvOrDefault blank = %q, want x", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"true", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"0", true, false},
		{"off", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("SA_TEST_BOOL", tt.value)
		if got := ParseBoolEnv("SA_TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Second},
		{"250ms", 250 * time.Millisecond},
		{"30m", 30 * time.Minute},
		{"0s", 0},
		{"-1s", time.Second},
		{"soon", time.Second},
	}
	for _, tt := range tests {
		t.Setenv("SA_TEST_DURATION", tt.value)
		if got := ParseDurationEnv("SA_TEST_DURATION", time.Second); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 10},
		{"42", 42},
		{" 7 ", 7},
		{"-3", 10},
		{"many", 10},
	}
	for _, tt := range tests {
		t.Setenv("SA_TEST_INT", tt.value)
		if got := ParseIntEnv("SA_TEST_INT", 10); got != tt.want {
			t.Errorf("ParseIntEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
