package valuation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pricingcore/internal/date"
)

// Convention converts a calendar span into a year fraction for interest
// purposes.
type Convention string

const (
	// Actual365: actual days divided by 365.
	Actual365 Convention = "ACT/365"
	// Actual360: actual days divided by 360.
	Actual360 Convention = "ACT/360"
	// Thirty360: each month counted as 30 days, divided by 360 (US rule).
	Thirty360 Convention = "30/360"
)

// ParseConvention validates a persisted convention string.
func ParseConvention(s string) (Convention, error) {
	switch Convention(s) {
	case Actual365, Actual360, Thirty360:
		return Convention(s), nil
	default:
		return "", fmt.Errorf("unknown day-count convention %q", s)
	}
}

// Days counts the span from..to under the convention. to must not be before
// from.
func (c Convention) Days(from, to date.Date) int {
	if c == Thirty360 {
		return days30360(from, to)
	}
	return to.Sub(from)
}

// Denominator is the year length the convention divides by.
func (c Convention) Denominator() int {
	if c == Actual365 {
		return 365
	}
	return 360
}

// Fraction returns the year fraction for from..to.
func (c Convention) Fraction(from, to date.Date) decimal.Decimal {
	return decimal.NewFromInt(int64(c.Days(from, to))).
		Div(decimal.NewFromInt(int64(c.Denominator())))
}

// days30360 applies the US 30/360 rule: both month ends are clamped to 30
// before the difference is taken.
func days30360(from, to date.Date) int {
	d1, d2 := from.Day(), to.Day()
	if d1 > 30 {
		d1 = 30
	}
	if d2 == 31 && d1 == 30 {
		d2 = 30
	}
	years := to.Year() - from.Year()
	months := int(to.Month()) - int(from.Month())
	return years*360 + months*30 + (d2 - d1)
}
