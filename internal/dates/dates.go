// Package dates normalizes the date strings published by the supported
// newspapers into time.Time values.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Order tells the parser how to read ambiguous numeric dates.
type Order int

const (
	DMY Order = iota
	YMD
)

func (o Order) String() string {
	if o == YMD {
		return "YMD"
	}
	return "DMY"
}

// ParseError is returned for strings that cannot be turned into a timestamp.
type ParseError struct {
	Raw   string
	Order Order
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse date %q (%s): %v", e.Raw, e.Order, e.Err)
	}
	return fmt.Sprintf("parse date %q (%s)", e.Raw, e.Order)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Separators published around dates that carry no date information.
var separators = []string{"às", "•", "|", ","}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
}

var (
	numericDate = regexp.MustCompile(`(\d{1,4})[/.\-](\d{1,2})[/.\-](\d{1,4})`)
	namedDate   = regexp.MustCompile(`(\d{1,2})\s+(?:de\s+)?([a-zçã]+)\.?\s+(?:de\s+)?(\d{4})`)
	clock       = regexp.MustCompile(`(\d{1,2}):(\d{2})(?::(\d{2}))?`)
	hourMark    = regexp.MustCompile(`(\d)h(\d)`)
)

var months = map[string]time.Month{
	"janeiro": time.January, "jan": time.January,
	"fevereiro": time.February, "fev": time.February,
	"março": time.March, "marco": time.March, "mar": time.March,
	"abril": time.April, "abr": time.April,
	"maio": time.May, "mai": time.May,
	"junho": time.June, "jun": time.June,
	"julho": time.July, "jul": time.July,
	"agosto": time.August, "ago": time.August,
	"setembro": time.September, "set": time.September,
	"outubro": time.October, "out": time.October,
	"novembro": time.November, "nov": time.November,
	"dezembro": time.December, "dez": time.December,
}

// Parse converts raw into a timestamp. The publisher's wall clock is kept and
// stored as UTC: an offset, when present, is dropped rather than applied, so
// the calendar day stays the one the publisher printed.
func Parse(raw string, order Order) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &ParseError{Raw: raw, Order: order, Err: fmt.Errorf("empty value")}
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return wallClock(t), nil
		}
	}

	cleaned := clean(s)
	if t, ok := parseNamed(cleaned); ok {
		return t, nil
	}
	if t, ok, err := parseNumeric(cleaned, order); ok || err != nil {
		if err != nil {
			return time.Time{}, &ParseError{Raw: raw, Order: order, Err: err}
		}
		return t, nil
	}

	t, err := dateparse.ParseIn(cleaned, time.UTC, dateparse.PreferMonthFirst(false))
	if err != nil {
		return time.Time{}, &ParseError{Raw: raw, Order: order, Err: err}
	}
	return wallClock(t), nil
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// requestLayout is the only format accepted for request dates. Single-digit
// day and month are allowed.
const requestLayout = "2/1/2006"

// ParseDay reads a request date (dd/mm/YYYY) and returns midnight of that day.
// Unlike Parse it accepts no other layout.
func ParseDay(raw string) (time.Time, error) {
	t, err := time.Parse(requestLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, &ParseError{Raw: raw, Order: DMY, Err: err}
	}
	return t, nil
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameOrBefore reports whether a falls on or before the calendar day of b.
func SameOrBefore(a, b time.Time) bool {
	return !Day(a).After(Day(b))
}

// FormatDMY renders a day the way the newspapers' search endpoints expect it.
func FormatDMY(t time.Time, sep string) string {
	return t.Format("02" + sep + "01" + sep + "2006")
}

func clean(s string) string {
	s = strings.ToLower(s)
	// "10h30" is how some pages print a clock
	s = hourMark.ReplaceAllString(s, "$1:$2")
	for _, sep := range separators {
		s = strings.ReplaceAll(s, sep, " ")
	}
	return strings.Join(strings.Fields(s), " ")
}

func parseNamed(s string) (time.Time, bool) {
	m := namedDate.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := months[m[2]]
	if !ok {
		return time.Time{}, false
	}
	d, _ := strconv.Atoi(m[1])
	y, _ := strconv.Atoi(m[3])
	hh, mm, ss := parseClock(s)
	t, err := build(y, int(month), d, hh, mm, ss)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseNumeric(s string, order Order) (time.Time, bool, error) {
	m := numericDate.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false, nil
	}
	a, b, c := m[1], m[2], m[3]
	var y, mo, d int
	switch {
	case len(a) == 4:
		y, mo, d = atoi(a), atoi(b), atoi(c)
	case len(c) == 4:
		d, mo, y = atoi(a), atoi(b), atoi(c)
	case order == YMD:
		y, mo, d = 2000+atoi(a), atoi(b), atoi(c)
	default:
		d, mo, y = atoi(a), atoi(b), 2000+atoi(c)
	}
	hh, mi, ss := parseClock(s[len(m[0]):])
	t, err := build(y, mo, d, hh, mi, ss)
	if err != nil {
		return time.Time{}, true, err
	}
	return t, true, nil
}

func parseClock(s string) (int, int, int) {
	m := clock.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, 0
	}
	ss := 0
	if m[3] != "" {
		ss = atoi(m[3])
	}
	return atoi(m[1]), atoi(m[2]), ss
}

func build(y, mo, d, hh, mi, ss int) (time.Time, error) {
	if mo < 1 || mo > 12 || d < 1 || d > 31 || hh > 23 || mi > 59 || ss > 59 {
		return time.Time{}, fmt.Errorf("out of range components %04d-%02d-%02d %02d:%02d:%02d", y, mo, d, hh, mi, ss)
	}
	t := time.Date(y, time.Month(mo), d, hh, mi, ss, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, fmt.Errorf("day %d does not exist in %04d-%02d", d, y, mo)
	}
	return t, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
