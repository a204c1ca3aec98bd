package isp

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FirstMatch returns the first capture group of re in s, trimmed, or
// "" when there is no match. The regex must have a capture group.
func FirstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ParseAmount parses a currency amount the way the cabinets print
// them: optional sign, comma or dot decimal separator, embedded
// regular or non-breaking spaces as thousand groups.
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseRuDate parses the DD.MM.YYYY dates the cabinets use.
func ParseRuDate(s string) (time.Time, bool) {
	t, err := time.Parse("02.01.2006", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
