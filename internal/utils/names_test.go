package utils

import "testing"

func TestFullName(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"Jane", "Doe"}, "Jane Doe"},
		{[]string{" Jane ", ""}, "Jane"},
		{[]string{"", "Doe"}, "Doe"},
		{[]string{"Mary  Ann", "Smith"}, "Mary Ann Smith"},
		{nil, ""},
	}
	for _, tc := range tests {
		if got := FullName(tc.in...); got != tc.want {
			t.Errorf("FullName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDigits(t *testing.T) {
	if got := Digits("(555) 010-2000"); got != "5550102000" {
		t.Fatalf("got %q", got)
	}
}
