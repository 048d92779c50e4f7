package normalize

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"20060102",
	"02.01.2006",
}

// ParseDate accepts YYYY-MM-DD, DD/MM/YYYY, compact YYYYMMDD and DD.MM.YYYY.
// Timestamps with a time part are cut to the date. The result is midnight UTC;
// unparseable input yields the zero time.
func ParseDate(raw string) time.Time {
	s := strings.TrimSpace(raw)
	if len(s) > 10 && (s[4] == '-' || s[2] == '/' || s[2] == '.') {
		s = s[:10]
	}
	for _, layout := range dateLayouts {
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// Day truncates a timestamp to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatCompactDate renders YYYYMMDD, the form upstream gateways expect.
func FormatCompactDate(t time.Time) string {
	return t.Format("20060102")
}
