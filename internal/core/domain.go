package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Fixed ledger categories, in display order.
const (
	Business Category = "Business"
	Personal Category = "Personal"
	Family   Category = "Family"
)

type (
	Category string

	Date struct {
		time.Time
	}

	Item struct {
		ID         string `json:"id"`
		Text       string `json:"text"`
		Done       bool   `json:"done"`
		IsGoalStep bool   `json:"isGoalStep,omitempty"`
		Rolled     bool   `json:"rolled,omitempty"`
		// CarriedFrom is the id of the item this one was rolled over from.
		CarriedFrom string `json:"carriedFrom,omitempty"`
	}

	Column struct {
		Category Category `json:"cat"`
		Items    []Item   `json:"items"`
	}

	LedgerDay struct {
		Date    Date     `json:"date"`
		Columns []Column `json:"columns"`
	}

	DayStats struct {
		Completed         int `json:"completed"`
		GoalStepCompleted int `json:"goalStepCompleted"`
	}

	// Stats maps a date string (YYYY-MM-DD) to the completions recorded that day.
	Stats map[string]DayStats

	Totals struct {
		Completed         int `json:"completed"`
		GoalStepCompleted int `json:"goalStepCompleted"`
	}
)

var (
	ErrEmptyText       = errors.New("empty text")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidDate     = errors.New("invalid date")
)

// Categories returns the fixed categories in display order.
func Categories() []Category {
	return []Category{Business, Personal, Family}
}

// ParseCategory resolves a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories() {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", &ValidationError{Field: "category", Err: ErrUnknownCategory}
}

func (c Category) String() string {
	return string(c)
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Err: ErrInvalidDate}
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

// AddDays returns the calendar date n days after d.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Prev returns the previous calendar day.
func (d Date) Prev() Date {
	return d.AddDays(-1)
}

// MarshalJSON encodes the date as "YYYY-MM-DD", shadowing time.Time's encoding.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// EmptyDay returns a day holding the three fixed categories with no items.
func EmptyDay(d Date) LedgerDay {
	day := LedgerDay{Date: d}
	for _, c := range Categories() {
		day.Columns = append(day.Columns, Column{Category: c, Items: []Item{}})
	}
	return day
}

// Normalize reshapes the day into exactly the fixed categories in order.
// Items of unknown categories are dropped; duplicate columns are merged.
func (d LedgerDay) Normalize() LedgerDay {
	byCat := make(map[Category][]Item, 3)
	for _, col := range d.Columns {
		c, err := ParseCategory(string(col.Category))
		if err != nil {
			continue
		}
		byCat[c] = append(byCat[c], col.Items...)
	}
	out := LedgerDay{Date: d.Date}
	for _, c := range Categories() {
		items := byCat[c]
		if items == nil {
			items = []Item{}
		}
		out.Columns = append(out.Columns, Column{Category: c, Items: items})
	}
	return out
}

// Column returns the column for c, or nil.
func (d *LedgerDay) Column(c Category) *Column {
	for i := range d.Columns {
		if d.Columns[i].Category == c {
			return &d.Columns[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate ledger state.
func (d LedgerDay) Clone() LedgerDay {
	out := LedgerDay{Date: d.Date, Columns: make([]Column, len(d.Columns))}
	for i, col := range d.Columns {
		out.Columns[i] = Column{Category: col.Category, Items: append([]Item{}, col.Items...)}
	}
	return out
}

// Counts returns the number of items and done items across all columns.
func (d LedgerDay) Counts() (total, done int) {
	for _, col := range d.Columns {
		for _, it := range col.Items {
			total++
			if it.Done {
				done++
			}
		}
	}
	return total, done
}

// Percent returns done/total as a rounded percentage; 0 when total is 0.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (done*100 + total/2) / total
}

// Unfinished returns every item not yet done, in column then insertion order.
func (c Column) Unfinished() []Item {
	var out []Item
	for _, it := range c.Items {
		if !it.Done {
			out = append(out, it)
		}
	}
	return out
}

// Adjust applies delta to both counters of date, never going below zero.
func (s Stats) Adjust(date Date, completed, goalStep int) {
	st := s[date.String()]
	st.Completed = max(0, st.Completed+completed)
	st.GoalStepCompleted = max(0, st.GoalStepCompleted+goalStep)
	s[date.String()] = st
}

// Prune drops entries dated more than retentionDays before ref.
func (s Stats) Prune(ref Date, retentionDays int) {
	cutoff := ref.AddDays(-retentionDays)
	for key := range s {
		d, err := ParseDate(key)
		if err != nil || d.Before(cutoff.Time) {
			delete(s, key)
		}
	}
}

// Window sums the 7 calendar days ending at end, inclusive.
func (s Stats) Window(end Date) Totals {
	var t Totals
	for i := 0; i < 7; i++ {
		st := s[end.AddDays(-i).String()]
		t.Completed += st.Completed
		t.GoalStepCompleted += st.GoalStepCompleted
	}
	return t
}
