package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" 3 Years ")
	if err != nil || tf != ThreeYears {
		t.Fatalf("expected ThreeYears, got %q %v", tf, err)
	}
	if _, err := ParseTimeframe("soon"); !errors.Is(err, ErrInvalidTimeframe) {
		t.Fatalf("expected ErrInvalidTimeframe, got %v", err)
	}
}

func TestEnsureUserID(t *testing.T) {
	valid := "3f2504e0-4f89-41d3-9a0c-0305e82c3301"
	nilUUID := "00000000-0000-0000-0000-000000000000"
	cases := map[string]string{
		valid:     valid,
		"huw-dev": DevUserID,
		"":        DevUserID,
		nilUUID:   DevUserID,
	}
	for in, want := range cases {
		if got := EnsureUserID(in); got != want {
			t.Errorf("EnsureUserID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTodoRecordsFanOut(t *testing.T) {
	p := GoalPlan{
		ID:            "plan-1",
		DailyActions:  []string{"meditate", " ", "journal"},
		WeeklyActions: []string{"review"},
	}
	rows := p.TodoRecords("u", NewDate(2025, 5, 5))
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	daily := 0
	for _, r := range rows {
		if !r.BigGoalTask || !r.Rollover || r.Completed {
			t.Fatalf("unexpected flags: %+v", r)
		}
		if r.Frequency == Daily {
			daily++
		}
	}
	if daily != 2 {
		t.Fatalf("expected 2 daily rows, got %d", daily)
	}
	if rows[1].Key != "plan-1:daily:1" || rows[2].Key != "plan-1:weekly:0" {
		t.Fatalf("unexpected keys: %s %s", rows[1].Key, rows[2].Key)
	}
}

func TestRecordTrimsEmptyEntries(t *testing.T) {
	p := GoalPlan{ID: "p", BigGoal: " run a marathon ", Timeframe: OneYear, MonthlyActions: []string{"", "run 100km"}}
	rec := p.Record("u", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	if rec.BigGoal != "run a marathon" || len(rec.MonthlyActions) != 1 || rec.Timeframe != "1 year" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
