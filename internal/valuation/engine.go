// Package valuation computes analytic price points for schedule-valued
// instruments: date-accurate interest accrual under configurable day-count
// and compounding conventions, multi-period rate schedules, maturity, grace
// periods and late-interest penalties. Everything here is pure computation;
// no call does I/O and every Value recomputes from scratch.
package valuation

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pricingcore/internal/date"
)

// Payout is one dividend or coupon already recorded in the transaction
// ledger. Amounts are in the instrument currency.
type Payout struct {
	Date   date.Date
	Amount decimal.Decimal
}

// Engine values one instrument from its schedule and recorded payouts.
type Engine struct {
	sched   Schedule
	payouts []Payout
	log     *logrus.Entry
}

// NewEngine builds an engine. The schedule is assumed validated; payouts may
// arrive in any order. A nil logger falls back to the logrus standard logger.
func NewEngine(sched Schedule, payouts []Payout, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{
		sched:   sched,
		payouts: payouts,
		log:     log.WithField("component", "valuation"),
	}
}

// terms is the resolved accrual setting for one day.
type terms struct {
	rate        decimal.Decimal
	dayCount    Convention
	compounding Compounding
	frequency   Frequency
}

func (t terms) equal(o terms) bool {
	return t.rate.Equal(o.rate) && t.dayCount == o.dayCount &&
		t.compounding == o.compounding && t.frequency == o.frequency
}

// lastPeriodTerms falls back to ACT/365 simple when the schedule is empty.
func (e *Engine) lastPeriodTerms() terms {
	if len(e.sched.Periods) == 0 {
		return terms{rate: decimal.Zero, dayCount: Actual365, compounding: Simple, frequency: Annual}
	}
	p := e.sched.Periods[len(e.sched.Periods)-1]
	return terms{rate: p.Rate, dayCount: p.DayCount, compounding: p.Compounding, frequency: p.Frequency}
}

// activeTerms resolves the accrual terms for one day. ok is false for a
// schedule gap, which accrues nothing.
func (e *Engine) activeTerms(day date.Date) (terms, bool) {
	// Past maturity the late-interest policy takes over: the last scheduled
	// rate holds through the grace window, the penalty rate after it. The
	// penalty accrues simple interest on the outstanding principal.
	if day.After(e.sched.Maturity) && e.sched.Late != nil {
		last := e.lastPeriodTerms()
		if day.Sub(e.sched.Maturity) <= e.sched.Late.GraceDays {
			return last, true
		}
		return terms{rate: e.sched.Late.Rate, dayCount: last.dayCount, compounding: Simple, frequency: last.frequency}, true
	}
	for _, p := range e.sched.Periods {
		if p.Contains(day) {
			return terms{rate: p.Rate, dayCount: p.DayCount, compounding: p.Compounding, frequency: p.Frequency}, true
		}
	}
	// Evaluating exactly at maturity keeps the last in-schedule rate even
	// when the final period stops short of it.
	if day == e.sched.Maturity && len(e.sched.Periods) > 0 {
		return e.lastPeriodTerms(), true
	}
	return terms{}, false
}

// ActiveRate returns the nominal annual rate in force on day. Zero for a
// schedule gap.
func (e *Engine) ActiveRate(day date.Date) decimal.Decimal {
	t, ok := e.activeTerms(day)
	if !ok {
		return decimal.Zero
	}
	return t.rate
}

// AccruedInterest computes the interest earned over [start, end). Simple
// periods accrue on the principal; compound periods accrue on a running
// balance capitalized at the period's frequency. Schedule gaps accrue zero.
func (e *Engine) AccruedInterest(start, end date.Date) decimal.Decimal {
	if !start.Before(end) {
		return decimal.Zero
	}

	interest := decimal.Zero
	balance := e.sched.Principal // compound running balance
	pending := decimal.Zero      // compound interest not yet capitalized
	gapDays := 0

	// Simple spans are accumulated as day runs so the result matches the
	// closed-form rate × days / denominator exactly.
	var runTerms terms
	var runStart date.Date
	runOpen := false

	flushRun := func(upTo date.Date) {
		if !runOpen {
			return
		}
		interest = interest.Add(
			e.sched.Principal.Mul(runTerms.rate).Mul(runTerms.dayCount.Fraction(runStart, upTo)))
		runOpen = false
	}

	prev := terms{}
	havePrev := false

	for day := start; day.Before(end); day = day.Add(1) {
		t, ok := e.activeTerms(day)
		if !ok {
			flushRun(day)
			havePrev = false
			gapDays++
			continue
		}

		if e.sched.ResetBalanceAtPeriodStart && havePrev && !t.equal(prev) {
			// Period boundary: drop the running balance back to principal.
			balance = e.sched.Principal
			pending = decimal.Zero
		}
		prev, havePrev = t, true

		switch t.compounding {
		case Compound:
			flushRun(day)
			daily := balance.Mul(t.rate).Mul(t.dayCount.Fraction(day, day.Add(1)))
			interest = interest.Add(daily)
			pending = pending.Add(daily)
			if capitalizes(day, t.frequency) {
				balance = balance.Add(pending)
				pending = decimal.Zero
			}
		default: // Simple
			if runOpen && !t.equal(runTerms) {
				flushRun(day)
			}
			if !runOpen {
				runTerms, runStart, runOpen = t, day, true
			}
		}
	}
	flushRun(end)

	if gapDays > 0 {
		e.log.WithFields(logrus.Fields{
			"gap_days": gapDays,
			"from":     start.String(),
			"to":       end.String(),
		}).Warn("rate schedule gap, zero accrual for uncovered days")
	}
	return interest
}

// capitalizes reports whether compound interest is folded into the balance
// after the accrual day, i.e. when the next day opens a new frequency bucket.
func capitalizes(day date.Date, f Frequency) bool {
	next := day.Add(1)
	if next.Day() != 1 {
		return false
	}
	switch f {
	case Monthly:
		return true
	case Quarterly:
		return next.Month() == time.January || next.Month() == time.April ||
			next.Month() == time.July || next.Month() == time.October
	default: // Annual
		return next.Month() == time.January
	}
}

// Value returns the analytic value at target: principal plus interest accrued
// from schedule start, minus payouts recorded up to and including target.
// Before the schedule starts the value is the bare principal.
func (e *Engine) Value(target date.Date) decimal.Decimal {
	start := e.sched.Start()
	if start.IsZero() {
		e.log.Warn("schedule has no periods, value is bare principal")
		return e.sched.Principal
	}
	if !target.After(start) {
		// Before the schedule starts (or on its first day) nothing accrued.
		return e.sched.Principal
	}

	v := e.sched.Principal.Add(e.AccruedInterest(start, target))
	for _, p := range e.payouts {
		if !p.Date.After(target) {
			v = v.Sub(p.Amount)
		}
	}
	return v
}
