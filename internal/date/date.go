// Package date provides a day-granular civil date used to index price series
// and interest accrual. A Date carries no clock or timezone; two dates compare
// equal exactly when they name the same calendar day.
package date

import (
	"encoding/json"
	"fmt"
	"time"
)

// Format is the canonical ISO-8601 representation used everywhere a date is
// rendered or persisted.
const Format = "2006-01-02"

// readFormat is permissive on read (allows 2024-7-1).
const readFormat = "2006-1-2"

// Date represents a calendar day.
type Date struct {
	y int
	m time.Month
	d int
}

// New returns a normalized Date for the given year, month and day. Out of
// range components roll over the same way time.Date does.
func New(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.time().Date()
	return d
}

// FromTime truncates t to its calendar day in UTC.
func FromTime(t time.Time) Date { return New(t.UTC().Date()) }

// Today returns the current date in UTC.
func Today() Date { return FromTime(time.Now()) }

// time returns the canonical instant for the day (midnight UTC).
func (d Date) time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// Time returns the canonical instant for the day (midnight UTC).
func (d Date) Time() time.Time { return d.time() }

func (d Date) Year() int         { return d.y }
func (d Date) Month() time.Month { return d.m }
func (d Date) Day() int          { return d.d }

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// Before reports whether d is strictly before x.
func (d Date) Before(x Date) bool { return d.time().Before(x.time()) }

// After reports whether d is strictly after x.
func (d Date) After(x Date) bool { return d.time().After(x.time()) }

// Add returns d shifted by the given number of days.
func (d Date) Add(days int) Date { return New(d.y, d.m, d.d+days) }

// Sub returns the number of whole days from x to d. Positive when d is after x.
func (d Date) Sub(x Date) int { return int(d.time().Sub(x.time()) / (24 * time.Hour)) }

// Compare returns -1, 0 or +1 ordering d against x chronologically.
func (d Date) Compare(x Date) int {
	switch {
	case d.Before(x):
		return -1
	case d.After(x):
		return 1
	default:
		return 0
	}
}

// String formats the date as ISO-8601.
func (d Date) String() string { return d.time().Format(Format) }

// Parse parses an ISO-8601 date. It is lenient about single-digit month and
// day components.
func Parse(s string) (Date, error) {
	t, err := time.Parse(readFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q want format %q: %w", s, Format, err)
	}
	return FromTime(t), nil
}

// MustParse is like Parse but panics on error. Intended for tests and literals.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err.Error())
	}
	return d
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	p, err := Parse(s)
	if err != nil {
		return err
	}
	*d = p
	return nil
}

var _ json.Marshaler = Date{}
var _ json.Unmarshaler = (*Date)(nil)

// Range is an inclusive span of days.
type Range struct{ From, To Date }

// Contains reports whether day falls inside the range, boundaries included.
func (r Range) Contains(day Date) bool { return !day.Before(r.From) && !day.After(r.To) }

// Days returns the number of days in the range, boundaries included.
func (r Range) Days() int { return r.To.Sub(r.From) + 1 }

// Each calls fn for every day in the range in chronological order, stopping
// early when fn returns false.
func (r Range) Each(fn func(Date) bool) {
	for d := r.From; !d.After(r.To); d = d.Add(1) {
		if !fn(d) {
			return
		}
	}
}
