package http

import (
	"net/http"

	"byb/internal/core"
	"byb/internal/ledger"
)

type (
	addItemRequest struct {
		Category   string `json:"category"`
		Text       string `json:"text"`
		IsGoalStep bool   `json:"isGoalStep"`
	}

	addItemResponse struct {
		Item core.Item   `json:"item"`
		View ledger.View `json:"view"`
	}

	mutationResponse struct {
		// Changed is false when the referenced item no longer exists.
		Changed bool        `json:"changed"`
		View    ledger.View `json:"view"`
	}

	clearResponse struct {
		Removed int         `json:"removed"`
		View    ledger.View `json:"view"`
	}

	importResponse struct {
		Items []core.Item `json:"items"`
		View  ledger.View `json:"view"`
		Picks []string    `json:"picks"`
	}
)

func (s *Server) handleGetDay(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.ledger.View(r.Context(), date)
	if failed(err) {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Warning(err).Body(view).Write(w)
}

func (s *Server) handleWeek(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	totals, err := s.ledger.WeeklyTotals(r.Context(), date)
	if failed(err) {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Warning(err).Body(totals).Write(w)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req addItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	item, err := s.ledger.AddItem(r.Context(), date, core.Category(req.Category), sanitizeInput(req.Text), req.IsGoalStep)
	if failed(err) {
		s.fail(w, r, err)
		return
	}
	s.respondWithDay(w, r, date, http.StatusCreated, err, func(view ledger.View) any {
		return addItemResponse{Item: item, View: view}
	})
}

func (s *Server) handleToggleItem(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	changed, err := s.ledger.ToggleDone(r.Context(), date, core.Category(r.PathValue("category")), r.PathValue("id"))
	if failed(err) {
		s.fail(w, r, err)
		return
	}
	s.respondWithDay(w, r, date, http.StatusOK, err, func(view ledger.View) any {
		return mutationResponse{Changed: changed, View: view}
	})
}

func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	changed, err := s.ledger.RemoveItem(r.Context(), date, core.Category(r.PathValue("category")), r.PathValue("id"))
	if failed(err) {
		s.fail(w, r, err)
		return
	}
	s.respondWithDay(w, r, date, http.StatusOK, err, func(view ledger.View) any {
		return mutationResponse{Changed: changed, View: view}
	})
}

func (s *Server) handleClearCompleted(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	removed, err := s.ledger.ClearCompleted(r.Context(), date)
	if failed(err) {
		s.fail(w, r, err)
		return
	}
	s.respondWithDay(w, r, date, http.StatusOK, err, func(view ledger.View) any {
		return clearResponse{Removed: removed, View: view}
	})
}

// handleImport adds today's planner picks to the Business column as goal steps.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	date, err := parseDate(r, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	picks, perr := s.planner.Picks(r.Context())
	if failed(perr) {
		s.fail(w, r, perr)
		return
	}
	items, err := s.ledger.ImportFromGoalPlan(r.Context(), date, picks)
	if failed(err) {
		s.fail(w, r, err)
		return
	}
	if err == nil {
		err = perr
	}
	if items == nil {
		items = []core.Item{}
	}
	s.respondWithDay(w, r, date, http.StatusOK, err, func(view ledger.View) any {
		return importResponse{Items: items, View: view, Picks: picks}
	})
}

// respondWithDay writes the body built from the day's fresh view. The first
// non-fatal error of the mutation or the view becomes the warning header.
func (s *Server) respondWithDay(w http.ResponseWriter, r *http.Request, date core.Date, status int, mutErr error, build func(ledger.View) any) {
	view, err := s.ledger.View(r.Context(), date)
	if failed(err) {
		s.fail(w, r, err)
		return
	}
	if mutErr != nil {
		err = mutErr
	}
	NewJSONResponse().Status(status).Warning(err).Body(build(view)).Write(w)
}
