package validation

import (
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		username string
		ok       bool
	}{
		{name: "simple", username: "alice", ok: true},
		{name: "with number", username: "bob2", ok: true},
		{name: "dotted", username: "carol.ames", ok: true},
		{name: "minimum length", username: "abc", ok: true},
		{name: "maximum length", username: strings.Repeat("a", 32), ok: true},
		{name: "empty", username: "", ok: false},
		{name: "too short", username: "ab", ok: false},
		{name: "too long", username: strings.Repeat("a", 33), ok: false},
		{name: "uppercase", username: "Alice", ok: false},
		{name: "space", username: "al ice", ok: false},
		{name: "symbol", username: "al!ce", ok: false},
		{name: "leading dot", username: ".alice", ok: false},
		{name: "trailing hyphen", username: "alice-", ok: false},
		{name: "reserved admin", username: "admin", ok: false},
		{name: "reserved me", username: "me", ok: false},
		{name: "reserved messages", username: "messages", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUsername(tc.username)
			if tc.ok && err != nil {
				t.Fatalf("expected valid username, got error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected invalid username, got nil error")
			}
		})
	}
}

func TestNormalizeUsername(t *testing.T) {
	t.Parallel()

	if got := NormalizeUsername("  Alice "); got != "alice" {
		t.Fatalf("expected alice, got %q", got)
	}
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	if err := ValidatePassword("short"); err == nil {
		t.Fatal("expected short password to be rejected")
	}
	if err := ValidatePassword("password123"); err != nil {
		t.Fatalf("expected valid password, got %v", err)
	}
	if err := ValidatePassword(strings.Repeat("x", 73)); err == nil {
		t.Fatal("expected overlong password to be rejected")
	}
}
