package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"byb/internal/kv"
	"byb/internal/ledger"
	applog "byb/internal/log"
	"byb/internal/planner"
)

var testNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func init() {
	color.NoColor = true
}

// memOpener opens a fresh ledger and planner over the same store on every
// call, the way bybctl does across invocations.
func memOpener(store kv.Store) Opener {
	logger := applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	now := func() time.Time { return testNow }
	return func(context.Context) (*Env, func() error, error) {
		led := ledger.New(store, ledger.Options{AutosaveDelay: time.Hour, Logger: logger})
		pl := planner.New(store, planner.Options{AutosaveDelay: time.Hour, Now: now, Logger: logger})
		env := &Env{Ledger: led, Planner: pl, Now: now}
		return env, func() error { return errors.Join(led.Close(), pl.Close()) }, nil
	}
}

func execute(t *testing.T, open Opener, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := New(open)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String() + errOut.String(), err
}

var addedID = regexp.MustCompile(`added ([0-9a-f]{8}) to`)

func TestAddToggleAndShowDay(t *testing.T) {
	open := memOpener(kv.NewMemory())

	out, err := execute(t, open, "add", "business", "call", "the", "accountant")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	m := addedID.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("unexpected add output: %q", out)
	}
	if _, err := execute(t, open, "add", "family", "--goal", "plan", "a", "trip"); err != nil {
		t.Fatalf("add goal step: %v", err)
	}

	if out, err = execute(t, open, "done", "Business", m[1][:4]); err != nil || !strings.Contains(out, "toggled "+m[1]) {
		t.Fatalf("done: %q %v", out, err)
	}

	out, err = execute(t, open, "day")
	if err != nil {
		t.Fatalf("day: %v", err)
	}
	for _, want := range []string{"Monday 2025-03-10", "1/2 done (50%)", "✓", "call the accountant", "plan a trip", "goal", "nothing yet"} {
		if !strings.Contains(out, want) {
			t.Errorf("day output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, open, "week")
	if err != nil || !strings.Contains(out, "2025-03-04 .. 2025-03-10") {
		t.Fatalf("week: %q %v", out, err)
	}

	if out, err = execute(t, open, "clear"); err != nil || !strings.Contains(out, "cleared 1") {
		t.Fatalf("clear: %q %v", out, err)
	}
}

func TestItemCommandErrors(t *testing.T) {
	open := memOpener(kv.NewMemory())
	if _, err := execute(t, open, "add", "work", "x"); err == nil || !strings.Contains(err.Error(), "unknown category") {
		t.Fatalf("expected category error, got %v", err)
	}
	if _, err := execute(t, open, "rm", "personal", "deadbeef"); err == nil || !strings.Contains(err.Error(), "no item") {
		t.Fatalf("expected missing item error, got %v", err)
	}
	if _, err := execute(t, open, "day", "--date", "10/03/2025"); err == nil {
		t.Fatal("expected invalid date error")
	}
}

func TestImportFromPlanner(t *testing.T) {
	store := kv.NewMemory()
	pl := planner.New(store, planner.Options{AutosaveDelay: time.Hour, Now: func() time.Time { return testNow }})
	ctx := context.Background()
	if _, err := pl.SetGoal(ctx, "ship the release"); err != nil {
		t.Fatal(err)
	}
	if _, err := pl.SetTask(ctx, 1, "write notes"); err != nil {
		t.Fatal(err)
	}
	if err := pl.Close(); err != nil {
		t.Fatal(err)
	}

	open := memOpener(store)
	out, err := execute(t, open, "import")
	if err != nil || !strings.Contains(out, "imported 2 goal step(s)") {
		t.Fatalf("import: %q %v", out, err)
	}
	out, _ = execute(t, open, "day")
	if !strings.Contains(out, "ship the release") || !strings.Contains(out, "write notes") {
		t.Fatalf("imported steps missing:\n%s", out)
	}
}

func TestPersistenceFailureIsReportedNotFatal(t *testing.T) {
	store := kv.NewMemory()
	store.Fail(errors.New("disk full"))
	out, err := execute(t, memOpener(store), "day")
	if err != nil {
		t.Fatalf("day should succeed on in-memory state: %v", err)
	}
	if !strings.Contains(out, "warning:") || !strings.Contains(out, "disk full") {
		t.Fatalf("expected a persistence warning, got %q", out)
	}
	if !strings.Contains(out, "0/0 done") {
		t.Fatalf("expected an empty day, got %q", out)
	}
}
