package store

import "testing"

func TestValidAssignmentTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"check_in", "assigned", true},
		{"check_in", "checked_in", false},
		{"check_in", "cancelled", false},
		{"check_out", "checked_in", true},
		{"check_out", "assigned", false},
		{"complete", "checked_out", true},
		{"complete", "checked_in", false},
		{"complete", "completed", false},
		{"cancel", "assigned", true},
		{"cancel", "checked_in", true},
		{"cancel", "checked_out", false},
		{"cancel", "completed", false},
		{"no_show", "assigned", true},
		{"no_show", "checked_in", false},
		{"unknown", "assigned", false},
	}

	for _, tt := range cases {
		if got := ValidAssignmentTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidAssignmentTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestValidShiftTransition(t *testing.T) {
	cases := []struct {
		action string
		from   string
		valid  bool
	}{
		{"publish", "draft", true},
		{"publish", "open", false},
		{"cancel", "draft", true},
		{"cancel", "open", true},
		{"cancel", "filled", true},
		{"cancel", "completed", false},
		{"complete", "open", true},
		{"complete", "filled", true},
		{"complete", "draft", false},
		{"unknown", "open", false},
	}

	for _, tt := range cases {
		if got := ValidShiftTransition(tt.action, tt.from); got != tt.valid {
			t.Fatalf("ValidShiftTransition(%q, %q)=%v, want %v", tt.action, tt.from, got, tt.valid)
		}
	}
}

func TestValidTimeEvent(t *testing.T) {
	cases := []struct {
		last  string
		next  string
		valid bool
	}{
		{"", "clock_in", true},
		{"", "clock_out", false},
		{"", "break_start", false},
		{"clock_in", "break_start", true},
		{"clock_in", "clock_out", true},
		{"clock_in", "clock_in", false},
		{"clock_in", "break_end", false},
		{"break_start", "break_end", true},
		{"break_start", "clock_out", true},
		{"break_start", "break_start", false},
		{"break_end", "break_start", true},
		{"break_end", "clock_out", true},
		{"break_end", "break_end", false},
		{"clock_out", "clock_in", false},
		{"clock_out", "break_start", false},
	}

	for _, tt := range cases {
		if got := ValidTimeEvent(tt.last, tt.next); got != tt.valid {
			t.Fatalf("ValidTimeEvent(%q, %q)=%v, want %v", tt.last, tt.next, got, tt.valid)
		}
	}
}
