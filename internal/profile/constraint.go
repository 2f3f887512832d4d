package profile

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeConstraint is returned for a time constraint that names
// neither a date nor an amount of time.
var ErrInvalidTimeConstraint = errors.New("invalid time constraint")

const day = 24 * time.Hour

// ConstraintBudget converts a requested time constraint into study
// minutes. Amounts of study time ("40 hours", "90 minutes") are taken as
// given. Calendar spans ("6 weeks", "10 days", "2 months") and dates
// ("2026-12-01") are scaled by the preferred hours per week, so ok is
// false for them when no hours per week are set. An empty constraint is
// not an error.
func (sc StudentContext) ConstraintBudget(constraint string) (minutes int, ok bool, err error) {
	s := strings.ToLower(strings.TrimSpace(constraint))
	for _, prefix := range []string{"within ", "in ", "by "} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	if s == "" {
		if strings.TrimSpace(constraint) != "" {
			return 0, false, fmt.Errorf("%w %q", ErrInvalidTimeConstraint, constraint)
		}
		return 0, false, nil
	}

	if d, perr := time.Parse("2006-01-02", s); perr == nil {
		m, ok := sc.spanBudget(d.Sub(sc.AsOf))
		return m, ok, nil
	}

	n, unit, err := splitAmount(s)
	if err != nil {
		return 0, false, fmt.Errorf("%w %q: %w", ErrInvalidTimeConstraint, constraint, err)
	}
	switch unit {
	case "m", "min", "mins", "minute", "minutes":
		return int(n), true, nil
	case "h", "hr", "hrs", "hour", "hours":
		return int(n * 60), true, nil
	case "d", "day", "days":
		m, ok := sc.spanBudget(time.Duration(n * float64(day)))
		return m, ok, nil
	case "w", "wk", "wks", "week", "weeks":
		m, ok := sc.spanBudget(time.Duration(n * 7 * float64(day)))
		return m, ok, nil
	case "mo", "month", "months":
		m, ok := sc.spanBudget(time.Duration(n * 30 * float64(day)))
		return m, ok, nil
	}
	return 0, false, fmt.Errorf("%w %q: unknown unit %q", ErrInvalidTimeConstraint, constraint, unit)
}

// EffectiveBudget is the tighter of the target date budget and the
// requested constraint. On a constraint error the target date budget is
// still returned alongside the error.
func (sc StudentContext) EffectiveBudget(constraint string) (minutes int, ok bool, err error) {
	minutes, ok = sc.BudgetMinutes()
	c, cok, err := sc.ConstraintBudget(constraint)
	if err != nil {
		return minutes, ok, err
	}
	if cok && (!ok || c < minutes) {
		return c, true, nil
	}
	return minutes, ok, nil
}

// ConstraintSummary describes the effective time budget for roadmap
// factors. Without a requested constraint it is TimeConstraintSummary.
func (sc StudentContext) ConstraintSummary(constraint string) string {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return sc.TimeConstraintSummary()
	}
	mins, ok, err := sc.EffectiveBudget(constraint)
	if err != nil || !ok {
		return constraint
	}
	return fmt.Sprintf("%s (%d minute budget)", constraint, mins)
}

func (sc StudentContext) spanBudget(span time.Duration) (int, bool) {
	hpw := sc.Preferences.HoursPerWeek
	if hpw <= 0 {
		return 0, false
	}
	if span <= 0 {
		return 0, true
	}
	weeks := span.Hours() / (24 * 7)
	return int(hpw * 60 * weeks), true
}

// splitAmount splits "6 weeks" or "6w" into its number and unit.
func splitAmount(s string) (float64, string, error) {
	i := strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if i < 0 {
		return 0, "", errors.New("missing unit")
	}
	n, err := strconv.ParseFloat(s[:i], 64)
	if err != nil {
		return 0, "", fmt.Errorf("amount: %w", err)
	}
	if n <= 0 {
		return 0, "", errors.New("amount must be positive")
	}
	return n, strings.TrimSpace(s[i:]), nil
}
