package wizard

import (
	"regexp"
	"strconv"
	"strings"
)

// Duration is a parsed timeframe. Months is always below 12.
type Duration struct {
	Years  int `json:"years"`
	Months int `json:"months"`
}

var durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(months?|mos?|years?|yrs?|y)?\b`)

// ParseDuration extracts a magnitude and a month or year unit from free text.
// A number without a unit counts as years. Text without a number parses to
// the zero Duration.
func ParseDuration(s string) Duration {
	m := durationPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Duration{}
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return Duration{}
	}
	if strings.HasPrefix(strings.ToLower(m[2]), "mo") {
		return Duration{Years: n / 12, Months: n % 12}
	}
	return Duration{Years: n}
}

// TotalMonths returns the duration in months.
func (d Duration) TotalMonths() int {
	return d.Years*12 + d.Months
}

// HasMidpoint reports whether the plan asks for a midpoint checkpoint,
// which is the case for exactly six months or exactly one year.
func (d Duration) HasMidpoint() bool {
	total := d.TotalMonths()
	return total == 6 || total == 12
}

// MilestoneCount is the number of yearly milestone fields: one per year
// before the last, for plans of two years or more.
func (d Duration) MilestoneCount() int {
	if d.Years < 2 {
		return 0
	}
	return d.Years - 1
}

// StepsFor derives the step sequence from a timeframe. It is a pure
// function of its input.
func StepsFor(timeframe string) []Step {
	steps := []Step{StepBigGoal, StepTimeframe}
	d := ParseDuration(timeframe)
	switch {
	case d.HasMidpoint():
		steps = append(steps, StepMidpoint)
	case d.MilestoneCount() > 0:
		steps = append(steps, StepYearly)
	}
	return append(steps, StepMonthly, StepWeekly, StepDaily, StepFinish)
}
