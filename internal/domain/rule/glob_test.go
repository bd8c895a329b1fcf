package rule

import "testing"

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		want    bool
	}{
		{"*", "anything", true},
		{"*", "a/b", false},
		{"**", "a/b/c", true},
		{"fleet_*", "fleet_ssh_exec", true},
		{"fleet_*", "other_tool", false},
		{"fleet_?", "fleet_1", true},
		{"fleet_?", "fleet_12", false},
		{"FLEET_*", "fleet_ssh", true}, // case-insensitive
		{"exact", "exact", true},
		{"exact", "Exact", true},
		{"exact", "exactly", false},
		{"*.health", "svc.health", true},
		{"*.health", "svc/sub.health", false},
	}
	for _, tt := range tests {
		if got := MatchGlob(tt.pattern, tt.input); got != tt.want {
			t.Errorf("MatchGlob(%q, %q) = %v, want %v", tt.pattern, tt.input, got, tt.want)
		}
	}
}
