package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"byb/internal/core"
	"byb/internal/records"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	DefaultGoalsSheet = "big_goals"
	DefaultTodosSheet = "todos"
)

// Column headers written on the first row of an empty sheet.
var (
	goalHeader = []any{"plan_id", "user_id", "bigGoal", "timeframe", "midpoint",
		"yearlyMilestones", "monthlyActions", "weeklyActions", "dailyActions", "saved_at"}
	todoHeader = []any{"key", "plan_id", "user_id", "task", "frequency",
		"completed", "created_at", "rollover", "big_goal_task"}
)

type (
	Client struct {
		svc           *gsheet.Service
		spreadsheetID string
		goalsSheet    string
		todosSheet    string
	}

	Config struct {
		SpreadsheetID string
		GoalsSheet    string
		TodosSheet    string
	}
)

var _ records.Writer = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE
// or GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	creds, err := serviceAccountCredentials(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewWithService(svc, cfg), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, cfg Config) *Client {
	goals := strings.TrimSpace(cfg.GoalsSheet)
	if goals == "" {
		goals = DefaultGoalsSheet
	}
	todos := strings.TrimSpace(cfg.TodosSheet)
	if todos == "" {
		todos = DefaultTodosSheet
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		goalsSheet:    goals,
		todosSheet:    todos,
	}
}

func serviceAccountCredentials(ctx context.Context) ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		slog.InfoContext(ctx, "Reading service account credentials", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling returns a client with bounded timeouts and
// keep-alive connection reuse for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// InsertGoalPlans appends one row per plan not yet present in the goals sheet.
func (c *Client) InsertGoalPlans(ctx context.Context, rows []core.GoalPlanRecord) error {
	values := make([][]any, 0, len(rows))
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, goalRow(r))
		keys = append(keys, r.PlanID)
	}
	return c.appendNew(ctx, c.goalsSheet, goalHeader, keys, values)
}

// InsertTodos appends one row per to-do not yet present in the todos sheet.
func (c *Client) InsertTodos(ctx context.Context, rows []core.TodoRecord) error {
	values := make([][]any, 0, len(rows))
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		values = append(values, todoRow(r))
		keys = append(keys, r.Key)
	}
	return c.appendNew(ctx, c.todosSheet, todoHeader, keys, values)
}

// appendNew reads the key column of sheet and appends only the rows whose
// key is missing, so a retried insert does not duplicate rows.
func (c *Client) appendNew(ctx context.Context, sheet string, header []any, keys []string, values [][]any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if len(values) == 0 {
		return nil
	}

	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	existing := make(map[string]struct{}, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) > 0 {
			existing[strings.TrimSpace(fmt.Sprint(row[0]))] = struct{}{}
		}
	}

	var fresh [][]any
	for i, key := range keys {
		if _, dup := existing[key]; dup {
			continue
		}
		existing[key] = struct{}{}
		fresh = append(fresh, values[i])
	}
	if len(fresh) == 0 {
		slog.DebugContext(ctx, "All rows already present", "sheet", sheet, "count", len(keys))
		return nil
	}
	out := fresh
	if len(resp.Values) == 0 {
		out = append([][]any{header}, fresh...)
	}

	vr := &gsheet.ValueRange{Values: out}
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, fmt.Sprintf("%s!A1", sheet), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to sheet %s: %w", sheet, err)
	}

	slog.InfoContext(ctx, "Rows appended to sheet", "sheet", sheet, "count", len(fresh))
	return nil
}

func goalRow(r core.GoalPlanRecord) []any {
	return []any{
		r.PlanID,
		r.UserID,
		r.BigGoal,
		r.Timeframe,
		r.Midpoint,
		jsonList(r.YearlyMilestones),
		jsonList(r.MonthlyActions),
		jsonList(r.WeeklyActions),
		jsonList(r.DailyActions),
		r.SavedAt.UTC().Format(time.RFC3339),
	}
}

func todoRow(r core.TodoRecord) []any {
	return []any{
		r.Key,
		r.PlanID,
		r.UserID,
		r.Task,
		string(r.Frequency),
		r.Completed,
		r.CreatedAt.String(),
		r.Rollover,
		r.BigGoalTask,
	}
}

// jsonList encodes a list cell as a JSON array so it round-trips losslessly.
func jsonList(in []string) string {
	if in == nil {
		in = []string{}
	}
	b, _ := json.Marshal(in)
	return string(b)
}
