package http

import (
	"net/http"

	"byb/internal/core"
	"byb/internal/planner"
	"byb/internal/vision"
)

type (
	plannerResponse struct {
		planner.State
		Progress int      `json:"progress"`
		Picks    []string `json:"picks"`
	}

	visionResponse struct {
		URLs []string `json:"urls"`
		// Today is the image shown for the current day, if any.
		Today string `json:"today,omitempty"`
	}

	addImageRequest struct {
		URL string `json:"url"`
	}

	moveRequest struct {
		// Dir is -1 to move the image up and +1 to move it down.
		Dir int `json:"dir"`
	}
)

func newPlannerResponse(st planner.State) plannerResponse {
	return plannerResponse{State: st, Progress: planner.Progress(st), Picks: planner.Picks(st)}
}

func (s *Server) handleGetPlanner(w http.ResponseWriter, r *http.Request) {
	st, err := s.planner.State(r.Context())
	s.respondPlanner(w, r, st, err)
}

func (s *Server) handleSetPlannerGoal(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.planner.SetGoal(r.Context(), sanitizeInput(req.Text))
	s.respondPlanner(w, r, st, err)
}

func (s *Server) handleSetPlannerTask(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r, "index")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req textRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.planner.SetTask(r.Context(), index, sanitizeInput(req.Text))
	s.respondPlanner(w, r, st, err)
}

func (s *Server) handleTogglePlannerTask(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r, "index")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := s.planner.ToggleTask(r.Context(), index)
	s.respondPlanner(w, r, st, err)
}

func (s *Server) handleResetPlanner(w http.ResponseWriter, r *http.Request) {
	err := s.planner.Reset(r.Context())
	if failed(err) {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Warning(err).Write(w)
}

func (s *Server) respondPlanner(w http.ResponseWriter, r *http.Request, st planner.State, err error) {
	if failed(err) {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Warning(err).Body(newPlannerResponse(st)).Write(w)
}

func (s *Server) handleGetVision(w http.ResponseWriter, r *http.Request) {
	urls, err := s.vision.List(r.Context())
	s.respondVision(w, r, http.StatusOK, urls, err)
}

func (s *Server) handleAddVision(w http.ResponseWriter, r *http.Request) {
	var req addImageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	urls, err := s.vision.Add(r.Context(), sanitizeInput(req.URL))
	s.respondVision(w, r, http.StatusCreated, urls, err)
}

func (s *Server) handleRemoveVision(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r, "index")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	urls, err := s.vision.Remove(r.Context(), index)
	s.respondVision(w, r, http.StatusOK, urls, err)
}

func (s *Server) handleMoveVision(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r, "index")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req moveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	urls, err := s.vision.Move(r.Context(), index, req.Dir)
	s.respondVision(w, r, http.StatusOK, urls, err)
}

func (s *Server) respondVision(w http.ResponseWriter, r *http.Request, status int, urls []string, err error) {
	if failed(err) {
		s.fail(w, r, err)
		return
	}
	if urls == nil {
		urls = []string{}
	}
	resp := visionResponse{URLs: urls}
	if pick, ok := vision.DailyPick(urls, core.DateOf(s.now())); ok {
		resp.Today = pick
	}
	NewJSONResponse().Status(status).Warning(err).Body(resp).Write(w)
}
