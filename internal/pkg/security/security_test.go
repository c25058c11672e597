package security

import (
	"strings"
	"testing"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "hello", "hello"},
		{"newline", "a\nb", "a\\nb"},
		{"carriage return", "a\rb", "a\\rb"},
		{"tab", "a\tb", "a\\tb"},
		{"control removed", "a\x00b", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeForLog(tt.input); got != tt.want {
				t.Errorf("SanitizeForLog(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeForLog_Truncates(t *testing.T) {
	got := SanitizeForLogWithLength(strings.Repeat("x", 50), 10)
	if got != strings.Repeat("x", 10)+"..." {
		t.Errorf("SanitizeForLogWithLength() = %q", got)
	}
}

func TestMaskSensitiveMap(t *testing.T) {
	m := map[string]string{
		"url":      "http://es:9200",
		"username": "elastic",
		"password": "hunter2",
		"api_key":  "sk-123",
	}

	masked := MaskSensitiveMap(m)

	if masked["url"] != "http://es:9200" {
		t.Errorf("url = %s, want unchanged", masked["url"])
	}
	if masked["username"] != "elastic" {
		t.Errorf("username = %s, want unchanged", masked["username"])
	}
	if masked["password"] != "[REDACTED]" {
		t.Errorf("password = %s, want [REDACTED]", masked["password"])
	}
	if masked["api_key"] != "[REDACTED]" {
		t.Errorf("api_key = %s, want [REDACTED]", masked["api_key"])
	}
	if m["password"] != "hunter2" {
		t.Error("MaskSensitiveMap must not modify its input")
	}
}

func TestMaskSensitiveMap_Nil(t *testing.T) {
	if MaskSensitiveMap(nil) != nil {
		t.Error("MaskSensitiveMap(nil) should return nil")
	}
}

func TestSanitizeQuestion(t *testing.T) {
	got := SanitizeQuestion("  find logs\nfor IP\x07 1.2.3.4  ")
	want := "find logs for IP 1.2.3.4"
	if got != want {
		t.Errorf("SanitizeQuestion() = %q, want %q", got, want)
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"redis password", "redis://:hunter2@127.0.0.1:6379/0", "redis://:xxxxx@127.0.0.1:6379/0"},
		{"basic auth", "http://elastic:changeme@es:9200", "http://elastic:xxxxx@es:9200"},
		{"query token", "http://embed/v1?api_key=abc&model=m", "http://embed/v1?api_key=%5BREDACTED%5D&model=m"},
		{"no credentials", "http://es:9200", "http://es:9200"},
		{"empty", "", ""},
		{"unparsable", "://bad", "[REDACTED]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactURL(tt.raw); got != tt.want {
				t.Errorf("RedactURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
