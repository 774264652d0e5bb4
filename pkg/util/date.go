package util

import (
    "fmt"
    "strings"
    "time"
)

// ParseClock parses "HH:MM" (or "HH:MM:SS") into an offset from local midnight.
func ParseClock(s string) (time.Duration, error) {
    s = strings.TrimSpace(s)
    for _, layout := range []string{"15:04", "15:04:05"} {
        if t, err := time.Parse(layout, s); err == nil {
            return time.Duration(t.Hour())*time.Hour +
                time.Duration(t.Minute())*time.Minute +
                time.Duration(t.Second())*time.Second, nil
        }
    }
    return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
}

// SinceMidnight returns how far t is past midnight in t's own location.
func SinceMidnight(t time.Time) time.Duration {
    h, m, s := t.Clock()
    return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
        time.Duration(s)*time.Second + time.Duration(t.Nanosecond())
}

// ParseWeekday accepts full or three-letter English day names, case-insensitive.
func ParseWeekday(s string) (time.Weekday, error) {
    name := strings.ToLower(strings.TrimSpace(s))
    for d := time.Sunday; d <= time.Saturday; d++ {
        full := strings.ToLower(d.String())
        if name == full || name == full[:3] {
            return d, nil
        }
    }
    return 0, fmt.Errorf("invalid weekday %q", s)
}

// SameDate reports whether a and b fall on the same calendar day in loc.
func SameDate(a, b time.Time, loc *time.Location) bool {
    ay, am, ad := a.In(loc).Date()
    by, bm, bd := b.In(loc).Date()
    return ay == by && am == bm && ad == bd
}
