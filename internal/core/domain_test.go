package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2025-03-01 ")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.Prev().String() != "2025-02-28" {
		t.Fatalf("unexpected prev: %s", d.Prev())
	}
	if _, err := ParseDate("03/01/2025"); !IsValidation(err) || !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDateJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		D Date `json:"d"`
	}{NewDate(2025, 7, 4)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"d":"2025-07-04"}` {
		t.Fatalf("unexpected json: %s", b)
	}
	var out struct {
		D Date `json:"d"`
	}
	if err := json.Unmarshal(b, &out); err != nil || out.D.String() != "2025-07-04" {
		t.Fatalf("unexpected unmarshal: %v %v", out.D, err)
	}
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("family")
	if err != nil || c != Family {
		t.Fatalf("expected Family, got %q %v", c, err)
	}
	if _, err := ParseCategory("Work"); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestNormalizeSynthesizesMissingCategories(t *testing.T) {
	day := LedgerDay{
		Date: NewDate(2025, 1, 2),
		Columns: []Column{
			{Category: "family", Items: []Item{{ID: "f1", Text: "call mum"}}},
			{Category: "Unknown", Items: []Item{{ID: "x"}}},
			{Category: Family, Items: []Item{{ID: "f2", Text: "dinner"}}},
		},
	}
	got := day.Normalize()
	if len(got.Columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(got.Columns))
	}
	for i, c := range Categories() {
		if got.Columns[i].Category != c {
			t.Fatalf("column %d = %s, want %s", i, got.Columns[i].Category, c)
		}
		if got.Columns[i].Items == nil {
			t.Fatalf("column %s has nil items", c)
		}
	}
	fam := got.Column(Family)
	if len(fam.Items) != 2 || fam.Items[0].ID != "f1" || fam.Items[1].ID != "f2" {
		t.Fatalf("unexpected family items: %+v", fam.Items)
	}
}

func TestStatsAdjustNeverNegative(t *testing.T) {
	s := Stats{}
	d := NewDate(2025, 1, 1)
	s.Adjust(d, 1, 1)
	s.Adjust(d, -1, -1)
	s.Adjust(d, -1, 0)
	if st := s[d.String()]; st.Completed != 0 || st.GoalStepCompleted != 0 {
		t.Fatalf("expected zero stats, got %+v", st)
	}
}

func TestStatsPrune(t *testing.T) {
	ref := NewDate(2025, 3, 1)
	s := Stats{
		ref.String():              {Completed: 1},
		ref.AddDays(-60).String(): {Completed: 2},
		ref.AddDays(-61).String(): {Completed: 3},
		"garbage":                 {Completed: 4},
	}
	s.Prune(ref, 60)
	if len(s) != 2 {
		t.Fatalf("expected 2 entries after prune, got %v", s)
	}
	if _, ok := s[ref.AddDays(-61).String()]; ok {
		t.Fatalf("entry older than window kept")
	}
}

func TestStatsWindowSumsSevenDays(t *testing.T) {
	end := NewDate(2025, 1, 10)
	s := Stats{
		end.String():             {Completed: 1, GoalStepCompleted: 1},
		end.AddDays(-6).String(): {Completed: 2},
		end.AddDays(-7).String(): {Completed: 100},
		end.AddDays(1).String():  {Completed: 100},
	}
	got := s.Window(end)
	if got.Completed != 3 || got.GoalStepCompleted != 1 {
		t.Fatalf("unexpected window totals: %+v", got)
	}
}
