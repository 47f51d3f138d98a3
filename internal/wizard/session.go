// Package wizard runs the goal decomposition flow: a step sequence whose
// shape follows the chosen timeframe, ending in a commit that stores the plan
// and fans its daily and weekly actions out as to-do rows.
package wizard

import (
	"errors"
	"strings"
	"time"

	"byb/internal/core"
)

const (
	StepBigGoal   Step = "big_goal"
	StepTimeframe Step = "timeframe"
	StepMidpoint  Step = "midpoint"
	StepYearly    Step = "yearly"
	StepMonthly   Step = "monthly"
	StepWeekly    Step = "weekly"
	StepDaily     Step = "daily"
	StepFinish    Step = "finish"
	// StepDone is the closing state after a commit. It is not part of the
	// step sequence.
	StepDone Step = "done"
)

var (
	ErrStepIncomplete  = errors.New("step is incomplete")
	ErrFirstStep       = errors.New("already on the first step")
	ErrCommitRequired  = errors.New("the finish step advances by commit")
	ErrFinished        = errors.New("wizard session already finished")
	ErrNotAtFinish     = errors.New("commit is only possible from the finish step")
	ErrNothingToRetry  = errors.New("no failed commit to retry")
	ErrUnknownActions  = errors.New("unknown action frequency")
	ErrSessionNotFound = errors.New("wizard session not found")
)

type (
	Step string

	// Session is one pass through the wizard. Plan.ID equals the session id
	// and keys every remote row the commit writes.
	Session struct {
		ID        string        `json:"id"`
		Plan      core.GoalPlan `json:"plan"`
		Step      Step          `json:"step"`
		Result    *CommitResult `json:"result,omitempty"`
		CreatedAt time.Time     `json:"createdAt"`
		UpdatedAt time.Time     `json:"updatedAt"`
	}

	// View is a session as presented to callers.
	View struct {
		ID              string        `json:"id"`
		Step            Step          `json:"step"`
		Steps           []Step        `json:"steps"`
		Index           int           `json:"index"`
		MilestoneFields int           `json:"milestoneFields"`
		CanBack         bool          `json:"canBack"`
		CanNext         bool          `json:"canNext"`
		Plan            core.GoalPlan `json:"plan"`
		Result          *CommitResult `json:"result,omitempty"`
	}
)

// NewSession starts a session on the first step.
func NewSession(now time.Time) *Session {
	id := core.NewID()
	return &Session{
		ID:        id,
		Plan:      core.GoalPlan{ID: id},
		Step:      StepBigGoal,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Steps returns the step sequence for the current timeframe.
func (s *Session) Steps() []Step {
	return StepsFor(string(s.Plan.Timeframe))
}

// Done reports whether the session has been committed.
func (s *Session) Done() bool {
	return s.Step == StepDone
}

// MilestoneCount is the number of yearly milestone fields in play.
func (s *Session) MilestoneCount() int {
	return ParseDuration(string(s.Plan.Timeframe)).MilestoneCount()
}

func (s *Session) SetBigGoal(text string) error {
	if s.Done() {
		return ErrFinished
	}
	s.Plan.BigGoal = text
	return nil
}

// SetTimeframe stores tf and resizes the milestone fields to match. Changing
// the timeframe while on the timeframe step moves the cursor to the first
// step after it that still needs input.
func (s *Session) SetTimeframe(tf core.Timeframe) error {
	if s.Done() {
		return ErrFinished
	}
	tf, err := core.ParseTimeframe(string(tf))
	if err != nil {
		return err
	}
	changed := tf != s.Plan.Timeframe
	s.Plan.Timeframe = tf
	s.Plan.YearlyMilestones = resize(s.Plan.YearlyMilestones, s.MilestoneCount())

	switch {
	case changed && s.Step == StepTimeframe:
		s.Step = s.firstUnfilledAfter(StepTimeframe)
	case indexOf(s.Steps(), s.Step) < 0:
		// The cursor was on a conditional step that no longer exists.
		s.Step = s.firstUnfilledAfter(StepTimeframe)
	}
	return nil
}

func (s *Session) SetMidpoint(text string) error {
	if s.Done() {
		return ErrFinished
	}
	s.Plan.Midpoint = text
	return nil
}

// SetMilestones stores the yearly milestones, truncated or padded to the
// number of fields the timeframe allows.
func (s *Session) SetMilestones(list []string) error {
	if s.Done() {
		return ErrFinished
	}
	s.Plan.YearlyMilestones = resize(append([]string(nil), list...), s.MilestoneCount())
	return nil
}

// SetActions replaces the monthly, weekly or daily action list.
func (s *Session) SetActions(freq core.Frequency, list []string) error {
	if s.Done() {
		return ErrFinished
	}
	cp := append([]string{}, list...)
	switch freq {
	case core.Monthly:
		s.Plan.MonthlyActions = cp
	case core.Weekly:
		s.Plan.WeeklyActions = cp
	case core.Daily:
		s.Plan.DailyActions = cp
	default:
		return &core.ValidationError{Field: "frequency", Err: ErrUnknownActions}
	}
	return nil
}

// CanAdvance reports why Next would be rejected, or nil.
func (s *Session) CanAdvance() error {
	switch s.Step {
	case StepDone:
		return ErrFinished
	case StepFinish:
		return ErrCommitRequired
	case StepMidpoint, StepYearly:
		return nil
	}
	if !s.filled(s.Step) {
		return &core.ValidationError{Field: string(s.Step), Err: ErrStepIncomplete}
	}
	return nil
}

// Validate checks every step that asks for input. It moves the cursor to the
// first one left unfilled and reports it.
func (s *Session) Validate() error {
	for _, st := range s.Steps() {
		switch st {
		case StepMidpoint, StepYearly, StepFinish:
			continue
		}
		if !s.filled(st) {
			s.Step = st
			return &core.ValidationError{Field: string(st), Err: ErrStepIncomplete}
		}
	}
	return nil
}

// Next advances to the following step when the current one is satisfied.
func (s *Session) Next() error {
	if err := s.CanAdvance(); err != nil {
		return err
	}
	steps := s.Steps()
	i := indexOf(steps, s.Step)
	if i < 0 || i+1 >= len(steps) {
		return ErrCommitRequired
	}
	s.Step = steps[i+1]
	return nil
}

// Back returns to the previous step. It is rejected on the first step and
// once the session is done.
func (s *Session) Back() error {
	if s.Done() {
		return ErrFinished
	}
	steps := s.Steps()
	i := indexOf(steps, s.Step)
	if i <= 0 {
		return ErrFirstStep
	}
	s.Step = steps[i-1]
	return nil
}

// FinalPlan is the plan as committed: trimmed, with the midpoint and the
// milestones kept only when the timeframe has the matching step.
func (s *Session) FinalPlan() core.GoalPlan {
	p := s.Plan
	p.ID = s.ID
	p.BigGoal = strings.TrimSpace(p.BigGoal)
	d := ParseDuration(string(p.Timeframe))
	p.Midpoint = ""
	if d.HasMidpoint() {
		p.Midpoint = strings.TrimSpace(s.Plan.Midpoint)
	}
	p.YearlyMilestones = []string{}
	if d.MilestoneCount() > 0 {
		p.YearlyMilestones = core.NonEmpty(s.Plan.YearlyMilestones)
	}
	p.MonthlyActions = core.NonEmpty(p.MonthlyActions)
	p.WeeklyActions = core.NonEmpty(p.WeeklyActions)
	p.DailyActions = core.NonEmpty(p.DailyActions)
	return p
}

// View returns a read-only snapshot of the session.
func (s *Session) View() View {
	steps := s.Steps()
	idx := indexOf(steps, s.Step)
	if s.Done() {
		idx = len(steps)
	}
	plan := s.Plan
	plan.YearlyMilestones = append([]string(nil), plan.YearlyMilestones...)
	plan.MonthlyActions = append([]string(nil), plan.MonthlyActions...)
	plan.WeeklyActions = append([]string(nil), plan.WeeklyActions...)
	plan.DailyActions = append([]string(nil), plan.DailyActions...)
	var result *CommitResult
	if s.Result != nil {
		r := *s.Result
		result = &r
	}
	return View{
		ID:              s.ID,
		Step:            s.Step,
		Steps:           steps,
		Index:           idx,
		MilestoneFields: s.MilestoneCount(),
		CanBack:         !s.Done() && idx > 0,
		CanNext:         s.CanAdvance() == nil,
		Plan:            plan,
		Result:          result,
	}
}

// normalize repairs a session decoded from a draft.
func (s *Session) normalize() {
	if s.Plan.ID == "" {
		s.Plan.ID = s.ID
	}
	if s.Step == StepDone && s.Result == nil {
		s.Step = StepFinish
	}
	if s.Step != StepDone && indexOf(s.Steps(), s.Step) < 0 {
		s.Step = StepBigGoal
	}
}

// filled reports whether step already holds the input it asks for.
func (s *Session) filled(step Step) bool {
	p := s.Plan
	switch step {
	case StepBigGoal:
		return strings.TrimSpace(p.BigGoal) != ""
	case StepTimeframe:
		_, err := core.ParseTimeframe(string(p.Timeframe))
		return err == nil
	case StepMidpoint:
		return strings.TrimSpace(p.Midpoint) != ""
	case StepYearly:
		n := s.MilestoneCount()
		return n > 0 && len(core.NonEmpty(p.YearlyMilestones)) >= n
	case StepMonthly:
		return len(core.NonEmpty(p.MonthlyActions)) > 0
	case StepWeekly:
		return len(core.NonEmpty(p.WeeklyActions)) > 0
	case StepDaily:
		return len(core.NonEmpty(p.DailyActions)) > 0
	}
	return false
}

func (s *Session) firstUnfilledAfter(step Step) Step {
	steps := s.Steps()
	for _, st := range steps[indexOf(steps, step)+1:] {
		if !s.filled(st) {
			return st
		}
	}
	return StepFinish
}

func indexOf(steps []Step, step Step) int {
	for i, st := range steps {
		if st == step {
			return i
		}
	}
	return -1
}

func resize(list []string, n int) []string {
	if len(list) > n {
		return list[:n]
	}
	for len(list) < n {
		list = append(list, "")
	}
	if list == nil {
		return []string{}
	}
	return list
}
