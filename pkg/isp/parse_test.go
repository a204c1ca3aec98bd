package isp

import (
	"regexp"
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"500", 500, true},
		{"500.00", 500, true},
		{"123,45", 123.45, true},
		{"-150.5", -150.5, true},
		{" 1 234,56 ", 1234.56, true},
		{"2 000", 2000, true}, // non-breaking space
		{"", 0, false},
		{"руб.", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseAmount(c.in)
		if ok != c.ok {
			t.Errorf("ParseAmount(%q) ok = %v, want %v", c.in, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("ParseAmount(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseRuDate(t *testing.T) {
	d, ok := ParseRuDate("25.12.2025")
	if !ok {
		t.Fatal("expected 25.12.2025 to parse")
	}
	want := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)
	if !d.Equal(want) {
		t.Errorf("got %v, want %v", d, want)
	}

	if _, ok := ParseRuDate("2025-12-25"); ok {
		t.Error("ISO dates must not parse")
	}
	if _, ok := ParseRuDate(""); ok {
		t.Error("empty string must not parse")
	}
}

func TestFirstMatch(t *testing.T) {
	re := regexp.MustCompile(`value="([^"]+)"`)
	if got := FirstMatch(re, `<input value=" abc ">`); got != "abc" {
		t.Errorf("got %q, want %q", got, "abc")
	}
	if got := FirstMatch(re, `<input>`); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}
