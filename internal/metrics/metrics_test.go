package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCountersExported(t *testing.T) {
	LedgerMutations.WithLabelValues("add").Inc()
	CommitResults.WithLabelValues("goal", ResultLocal).Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`byb_ledger_mutations_total{op="add"}`,
		`byb_wizard_commit_results_total{result="local_only",target="goal"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("%s missing from /metrics output", want)
		}
	}
}

func TestOutcome(t *testing.T) {
	if Outcome(nil) != ResultOK || Outcome(errors.New("x")) != ResultError {
		t.Fatal("unexpected outcome labels")
	}
}
