package security

import (
	"strings"
	"testing"
)

func TestValidateQuestion(t *testing.T) {
	tests := []struct {
		name     string
		question string
		wantErr  bool
	}{
		{"valid simple", "find logs for IP 203.0.113.5", false},
		{"valid unicode", "IP是203.96.238.136在哪些账号上使用过？", false},
		{"valid at max", strings.Repeat("a", MaxQuestionLength), false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", MaxQuestionLength+1), true},
		{"invalid utf8", "\xff\xfe", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuestion(tt.question)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateQuestion() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateIP(t *testing.T) {
	tests := []struct {
		ip      string
		wantErr bool
	}{
		{"203.0.113.5", false},
		{"49.85.111.170", false},
		{"2001:db8::1", false},
		{"", true},
		{"203.0.113", true},
		{"256.1.1.1", true},
		{"not-an-ip", true},
		{"203.0.113.5/24", true},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			err := ValidateIP(tt.ip)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIP(%q) error = %v, wantErr %v", tt.ip, err, tt.wantErr)
			}
		})
	}
}

func TestValidateIndexPattern(t *testing.T) {
	tests := []struct {
		pattern string
		wantErr bool
	}{
		{"email_user_action_2026*", false},
		{"arp_vpn*", false},
		{"logs-2025.10.01", false},
		{"", true},
		{"Email_Access", true},
		{"bad index", true},
		{"a/b", true},
		{strings.Repeat("a", MaxIndexPatternLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			err := ValidateIndexPattern(tt.pattern)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIndexPattern(%q) error = %v, wantErr %v", tt.pattern, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTopK(t *testing.T) {
	tests := []struct {
		topK    int
		wantErr bool
	}{
		{1, false},
		{DefaultTopK, false},
		{MaxTopK, false},
		{0, true},
		{-1, true},
		{MaxTopK + 1, true},
	}

	for _, tt := range tests {
		err := ValidateTopK(tt.topK)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTopK(%d) error = %v, wantErr %v", tt.topK, err, tt.wantErr)
		}
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "ip", Value: "x", Constraint: "must be valid"}
	want := "validation failed for ip: must be valid (got: x)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
