package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DevUserID is used whenever no valid user id is supplied.
const DevUserID = "11111111-1111-1111-1111-111111111111"

const (
	SixMonths  Timeframe = "6 months"
	OneYear    Timeframe = "1 year"
	TwoYears   Timeframe = "2 years"
	ThreeYears Timeframe = "3 years"
	FourYears  Timeframe = "4 years"
	FiveYears  Timeframe = "5 years"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
)

type (
	Timeframe string

	Frequency string

	GoalPlan struct {
		ID               string    `json:"id"`
		BigGoal          string    `json:"bigGoal"`
		Timeframe        Timeframe `json:"timeframe,omitempty"`
		Midpoint         string    `json:"midpoint,omitempty"`
		YearlyMilestones []string  `json:"yearlyMilestones"`
		MonthlyActions   []string  `json:"monthlyActions"`
		WeeklyActions    []string  `json:"weeklyActions"`
		DailyActions     []string  `json:"dailyActions"`
	}

	// GoalPlanRecord is one row of the remote goal-plan table.
	GoalPlanRecord struct {
		PlanID           string    `json:"plan_id"`
		UserID           string    `json:"user_id"`
		BigGoal          string    `json:"bigGoal"`
		Timeframe        string    `json:"timeframe"`
		Midpoint         string    `json:"midpoint,omitempty"`
		YearlyMilestones []string  `json:"yearlyMilestones"`
		MonthlyActions   []string  `json:"monthlyActions"`
		WeeklyActions    []string  `json:"weeklyActions"`
		DailyActions     []string  `json:"dailyActions"`
		SavedAt          time.Time `json:"saved_at"`
	}

	// TodoRecord is one row of the remote to-do table.
	TodoRecord struct {
		Key         string    `json:"key"`
		PlanID      string    `json:"plan_id"`
		UserID      string    `json:"user_id"`
		Task        string    `json:"task"`
		Frequency   Frequency `json:"frequency"`
		Completed   bool      `json:"completed"`
		CreatedAt   Date      `json:"created_at"`
		Rollover    bool      `json:"rollover"`
		BigGoalTask bool      `json:"big_goal_task"`
	}
)

var ErrInvalidTimeframe = errors.New("invalid timeframe")

// Timeframes returns the accepted timeframe values in order.
func Timeframes() []Timeframe {
	return []Timeframe{SixMonths, OneYear, TwoYears, ThreeYears, FourYears, FiveYears}
}

// ParseTimeframe validates s against the enumerated timeframes.
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.TrimSpace(s)
	for _, tf := range Timeframes() {
		if strings.EqualFold(string(tf), s) {
			return tf, nil
		}
	}
	return "", &ValidationError{Field: "timeframe", Err: ErrInvalidTimeframe}
}

// NewID returns a random identifier for items, plans and sessions.
func NewID() string {
	return uuid.NewString()
}

// EnsureUserID returns id if it is an RFC 4122 UUID (versions 1-5) and
// DevUserID otherwise.
func EnsureUserID(id string) string {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil || u.Variant() != uuid.RFC4122 || u.Version() < 1 || u.Version() > 5 {
		return DevUserID
	}
	return u.String()
}

// NonEmpty returns the trimmed, non-empty entries of in.
func NonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Record converts the plan into the remote goal-plan row.
func (p GoalPlan) Record(userID string, savedAt time.Time) GoalPlanRecord {
	return GoalPlanRecord{
		PlanID:           p.ID,
		UserID:           userID,
		BigGoal:          strings.TrimSpace(p.BigGoal),
		Timeframe:        string(p.Timeframe),
		Midpoint:         strings.TrimSpace(p.Midpoint),
		YearlyMilestones: NonEmpty(p.YearlyMilestones),
		MonthlyActions:   NonEmpty(p.MonthlyActions),
		WeeklyActions:    NonEmpty(p.WeeklyActions),
		DailyActions:     NonEmpty(p.DailyActions),
		SavedAt:          savedAt.UTC(),
	}
}

// TodoRecords fans the daily and weekly actions out into to-do rows.
// Each row key is derived from the plan id so a resend maps onto the same rows.
func (p GoalPlan) TodoRecords(userID string, today Date) []TodoRecord {
	var rows []TodoRecord
	add := func(freq Frequency, actions []string) {
		for i, task := range NonEmpty(actions) {
			rows = append(rows, TodoRecord{
				Key:         todoKey(p.ID, freq, i),
				PlanID:      p.ID,
				UserID:      userID,
				Task:        task,
				Frequency:   freq,
				CreatedAt:   today,
				Rollover:    true,
				BigGoalTask: true,
			})
		}
	}
	add(Daily, p.DailyActions)
	add(Weekly, p.WeeklyActions)
	return rows
}

func todoKey(planID string, freq Frequency, i int) string {
	return fmt.Sprintf("%s:%s:%d", planID, freq, i)
}
