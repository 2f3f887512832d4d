package profile

import (
	"errors"
	"testing"
	"time"
)

func TestConstraintBudget(t *testing.T) {
	midnight := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	sc := StudentContext{AsOf: midnight, Preferences: Preferences{HoursPerWeek: 5}}
	cases := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"", 0, false},
		{"90 minutes", 90, true},
		{"40 hours", 2400, true},
		{"2h", 120, true},
		{"6 weeks", 1800, true},
		{"within 2 weeks", 600, true},
		{"14 days", 600, true},
		{"2026-03-15", 600, true},
		{"2026-02-01", 0, true},
	}
	for _, tc := range cases {
		got, ok, err := sc.ConstraintBudget(tc.in)
		if err != nil {
			t.Errorf("%q: unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("%q = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestConstraintBudget_SpanNeedsHoursPerWeek(t *testing.T) {
	sc := StudentContext{AsOf: t0}
	if _, ok, err := sc.ConstraintBudget("6 weeks"); err != nil || ok {
		t.Errorf("span without hours per week: ok=%v err=%v, want no budget", ok, err)
	}
	if got, ok, _ := sc.ConstraintBudget("3 hours"); !ok || got != 180 {
		t.Errorf("absolute amount = (%d, %v), want (180, true)", got, ok)
	}
}

func TestConstraintBudget_Invalid(t *testing.T) {
	sc := StudentContext{AsOf: t0, Preferences: Preferences{HoursPerWeek: 5}}
	for _, in := range []string{"soon", "6 fortnights", "-3 weeks", "0 hours", "within"} {
		if _, _, err := sc.ConstraintBudget(in); !errors.Is(err, ErrInvalidTimeConstraint) {
			t.Errorf("%q: err = %v, want ErrInvalidTimeConstraint", in, err)
		}
	}
}

func TestEffectiveBudget_TighterWins(t *testing.T) {
	target := t0.Add(4 * 7 * 24 * time.Hour)
	sc := StudentContext{AsOf: t0, Preferences: Preferences{HoursPerWeek: 5, TargetDate: &target}}

	if got, _, _ := sc.EffectiveBudget(""); got != 1200 {
		t.Errorf("target date only = %d, want 1200", got)
	}
	if got, _, _ := sc.EffectiveBudget("10 hours"); got != 600 {
		t.Errorf("tighter request = %d, want 600", got)
	}
	if got, _, _ := sc.EffectiveBudget("100 hours"); got != 1200 {
		t.Errorf("looser request = %d, want target date budget 1200", got)
	}
	got, ok, err := sc.EffectiveBudget("soon")
	if err == nil || !ok || got != 1200 {
		t.Errorf("invalid request = (%d, %v, %v), want target date budget and an error", got, ok, err)
	}
}

func TestConstraintSummary(t *testing.T) {
	sc := StudentContext{AsOf: t0, Preferences: Preferences{HoursPerWeek: 5}}
	if got := sc.ConstraintSummary("10 hours"); got != "10 hours (600 minute budget)" {
		t.Errorf("summary = %q", got)
	}
	if got := sc.ConstraintSummary(""); got != "" {
		t.Errorf("empty summary = %q", got)
	}
}
