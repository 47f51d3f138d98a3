package commands

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"

	"byb/internal/core"
	"byb/internal/ledger"
)

var (
	heading  = color.New(color.Bold, color.Underline).SprintFunc()
	doneMark = color.New(color.FgGreen).SprintFunc()
	goalMark = color.New(color.FgYellow).SprintFunc()
	faint    = color.New(color.Faint).SprintFunc()
)

// PrintDay writes the columns of a day as a table.
func PrintDay(w io.Writer, v ledger.View) {
	fmt.Fprintln(w, heading(fmt.Sprintf("%s %s", v.Day.Date.Weekday(), v.Day.Date)))
	fmt.Fprintf(w, "%d/%d done (%d%%)  week: %d completed, %d goal steps\n\n",
		v.Done, v.Total, v.Percent, v.Week.Completed, v.Week.GoalStepCompleted)

	for _, col := range v.Day.Columns {
		fmt.Fprintln(w, heading(string(col.Category)))
		if len(col.Items) == 0 {
			fmt.Fprintln(w, faint("  nothing yet"))
			continue
		}
		tbl := uitable.New()
		tbl.Separator = " "
		for _, it := range col.Items {
			tbl.AddRow(" ", itemMark(it), shortID(it.ID), it.Text, itemTags(it))
		}
		fmt.Fprintln(w, tbl)
	}
}

// PrintWeek writes the weekly totals ending at date.
func PrintWeek(w io.Writer, date core.Date, t core.Totals) {
	start := core.DateOf(date.AddDate(0, 0, -6))
	tbl := uitable.New()
	tbl.AddRow("week", fmt.Sprintf("%s .. %s", start, date))
	tbl.AddRow("completed", t.Completed)
	tbl.AddRow("goal steps", t.GoalStepCompleted)
	fmt.Fprintln(w, tbl)
}

func itemMark(it core.Item) string {
	if it.Done {
		return doneMark("✓")
	}
	return "•"
}

func itemTags(it core.Item) string {
	switch {
	case it.IsGoalStep && it.Rolled:
		return goalMark("goal") + " " + faint("rolled")
	case it.IsGoalStep:
		return goalMark("goal")
	case it.Rolled:
		return faint("rolled")
	}
	return ""
}
