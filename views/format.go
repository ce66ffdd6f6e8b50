package views

import (
	"fmt"
	"time"
)

var monthsPtBR = [...]string{"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"}

// FormatDate renders t as "dd MMM yyyy" with Portuguese month abbreviations,
// e.g. "15 mar 2021".
func FormatDate(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return fmt.Sprintf("%02d %s %d", t.Day(), monthsPtBR[t.Month()-1], t.Year())
}

// FormatTime renders t as "HH:mm".
func FormatTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("15:04")
}

// Datetime renders t for a <time datetime> attribute.
func Datetime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
