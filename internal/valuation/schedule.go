package valuation

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"pricingcore/internal/date"
	"pricingcore/internal/pricing"
)

// Compounding selects how a period accrues.
type Compounding string

const (
	// Simple accrual multiplies the nominal rate onto the principal.
	Simple Compounding = "simple"
	// Compound accrual applies the daily rate to a running balance that is
	// capitalized at the period's compounding frequency.
	Compound Compounding = "compound"
)

// Frequency is how often compound interest is capitalized.
type Frequency string

const (
	Annual    Frequency = "annual"
	Quarterly Frequency = "quarterly"
	Monthly   Frequency = "monthly"
)

// Period is one span of a rate schedule. End is nil for an open-ended period.
type Period struct {
	Start       date.Date
	End         *date.Date
	Rate        decimal.Decimal // nominal annual rate, e.g. 0.05
	DayCount    Convention
	Compounding Compounding
	Frequency   Frequency
}

// Contains reports whether day falls inside the period, boundaries included.
func (p Period) Contains(day date.Date) bool {
	if day.Before(p.Start) {
		return false
	}
	return p.End == nil || !day.After(*p.End)
}

// LateInterest is the penalty applied after maturity once the grace period
// has elapsed and principal is still outstanding.
type LateInterest struct {
	Rate      decimal.Decimal
	GraceDays int
}

// Schedule is the full analytic-valuation configuration of one
// schedule-valued instrument.
type Schedule struct {
	Principal decimal.Decimal
	Maturity  date.Date
	Periods   []Period
	Late      *LateInterest

	// ResetBalanceAtPeriodStart switches compound accrual from continuous
	// compounding across the whole schedule (the default) to restarting the
	// running balance at principal on every period boundary.
	ResetBalanceAtPeriodStart bool
}

// Start returns the first period's start date, or the zero date when the
// schedule has no periods.
func (s *Schedule) Start() date.Date {
	if len(s.Periods) == 0 {
		return date.Date{}
	}
	return s.Periods[0].Start
}

// Validate checks the schedule invariants. Overlapping periods break the
// configuration and return an error; gaps between periods are legal (they
// accrue nothing) and come back as warnings.
func (s *Schedule) Validate() (warnings []string, err error) {
	if s.Principal.Sign() <= 0 {
		return nil, pricing.Errorf(pricing.KindInvalidConfiguration, "principal must be positive, got %s", s.Principal)
	}
	if s.Maturity.IsZero() {
		return nil, pricing.Errorf(pricing.KindInvalidConfiguration, "maturity date missing")
	}
	sort.Slice(s.Periods, func(i, j int) bool { return s.Periods[i].Start.Before(s.Periods[j].Start) })

	for i, p := range s.Periods {
		if p.End != nil && p.End.Before(p.Start) {
			return nil, pricing.Errorf(pricing.KindInvalidConfiguration,
				"period %d ends %s before it starts %s", i, p.End, p.Start)
		}
		if p.Rate.Sign() < 0 {
			return nil, pricing.Errorf(pricing.KindInvalidConfiguration, "period %d has negative rate %s", i, p.Rate)
		}
		if i == 0 {
			continue
		}
		prev := s.Periods[i-1]
		if prev.End == nil {
			return nil, pricing.Errorf(pricing.KindInvalidConfiguration,
				"open-ended period %d is followed by period starting %s", i-1, p.Start)
		}
		switch {
		case !p.Start.After(*prev.End):
			return nil, pricing.Errorf(pricing.KindInvalidConfiguration,
				"period starting %s overlaps period ending %s", p.Start, prev.End)
		case p.Start.Sub(*prev.End) > 1:
			warnings = append(warnings, fmt.Sprintf(
				"schedule gap between %s and %s accrues no interest", prev.End, p.Start))
		}
	}
	return warnings, nil
}

// periodConfig is the persisted wire shape of one schedule period.
type periodConfig struct {
	StartDate   date.Date   `json:"start_date"`
	EndDate     *date.Date  `json:"end_date"`
	Rate        json.Number `json:"rate"`
	DayCount    string      `json:"day_count"`
	Compounding string      `json:"compounding"`
	Frequency   string      `json:"compounding_frequency"`
}

// scheduleConfig is the persisted wire shape of a full schedule.
type scheduleConfig struct {
	Principal    json.Number  `json:"principal"`
	MaturityDate date.Date    `json:"maturity_date"`
	Periods      []periodConfig `json:"periods"`
	LateInterest *struct {
		Rate            json.Number `json:"rate"`
		GracePeriodDays int         `json:"grace_period_days"`
	} `json:"late_interest"`
}

// ParseSchedule decodes and validates the persisted schedule configuration.
// Returned warnings are non-fatal configuration gaps.
func ParseSchedule(raw []byte) (*Schedule, []string, error) {
	var cfg scheduleConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, nil, pricing.Wrap(pricing.KindInvalidConfiguration, err, "parse schedule config")
	}

	principal, err := decimal.NewFromString(cfg.Principal.String())
	if err != nil {
		return nil, nil, pricing.Errorf(pricing.KindInvalidConfiguration, "bad principal %q", cfg.Principal)
	}

	s := &Schedule{Principal: principal, Maturity: cfg.MaturityDate}
	for i, pc := range cfg.Periods {
		rate, err := decimal.NewFromString(pc.Rate.String())
		if err != nil {
			return nil, nil, pricing.Errorf(pricing.KindInvalidConfiguration, "period %d: bad rate %q", i, pc.Rate)
		}
		conv, err := ParseConvention(pc.DayCount)
		if err != nil {
			return nil, nil, pricing.Wrap(pricing.KindInvalidConfiguration, err, "period %d", i)
		}
		comp := Compounding(pc.Compounding)
		if comp == "" {
			comp = Simple
		}
		if comp != Simple && comp != Compound {
			return nil, nil, pricing.Errorf(pricing.KindInvalidConfiguration, "period %d: unknown compounding %q", i, pc.Compounding)
		}
		freq := Frequency(pc.Frequency)
		if freq == "" {
			freq = Annual
		}
		if freq != Annual && freq != Quarterly && freq != Monthly {
			return nil, nil, pricing.Errorf(pricing.KindInvalidConfiguration, "period %d: unknown compounding frequency %q", i, pc.Frequency)
		}
		s.Periods = append(s.Periods, Period{
			Start:       pc.StartDate,
			End:         pc.EndDate,
			Rate:        rate,
			DayCount:    conv,
			Compounding: comp,
			Frequency:   freq,
		})
	}
	if cfg.LateInterest != nil {
		rate, err := decimal.NewFromString(cfg.LateInterest.Rate.String())
		if err != nil {
			return nil, nil, pricing.Errorf(pricing.KindInvalidConfiguration, "bad late interest rate %q", cfg.LateInterest.Rate)
		}
		if cfg.LateInterest.GracePeriodDays < 0 {
			return nil, nil, pricing.Errorf(pricing.KindInvalidConfiguration, "negative grace period")
		}
		s.Late = &LateInterest{Rate: rate, GraceDays: cfg.LateInterest.GracePeriodDays}
	}

	warnings, err := s.Validate()
	if err != nil {
		return nil, nil, err
	}
	return s, warnings, nil
}
