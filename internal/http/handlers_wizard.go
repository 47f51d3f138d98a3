package http

import (
	"context"
	"net/http"
	"strings"

	"byb/internal/core"
	"byb/internal/wizard"
)

type (
	textRequest struct {
		Text string `json:"text"`
	}

	timeframeRequest struct {
		Timeframe string `json:"timeframe"`
	}

	listRequest struct {
		Items []string `json:"items"`
	}
)

func (s *Server) handleStartWizard(w http.ResponseWriter, r *http.Request) {
	view := s.wizard.Start(r.Context())
	NewJSONResponse().Status(http.StatusCreated).
		Header("Location", "/api/wizard/"+view.ID).
		Body(view).Write(w)
}

func (s *Server) handleGetWizard(w http.ResponseWriter, r *http.Request) {
	view, err := s.wizard.Get(r.Context(), r.PathValue("id"))
	s.respondWizard(w, r, view, err)
}

func (s *Server) handleDiscardWizard(w http.ResponseWriter, r *http.Request) {
	err := s.wizard.Discard(r.Context(), r.PathValue("id"))
	if failed(err) {
		s.fail(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Warning(err).Write(w)
}

func (s *Server) handleSetBigGoal(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	s.wizardEdit(w, r, &req, func(ctx context.Context, id string) (wizard.View, error) {
		return s.wizard.SetBigGoal(ctx, id, sanitizeInput(req.Text))
	})
}

func (s *Server) handleSetTimeframe(w http.ResponseWriter, r *http.Request) {
	var req timeframeRequest
	s.wizardEdit(w, r, &req, func(ctx context.Context, id string) (wizard.View, error) {
		return s.wizard.SetTimeframe(ctx, id, core.Timeframe(strings.TrimSpace(req.Timeframe)))
	})
}

func (s *Server) handleSetMidpoint(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	s.wizardEdit(w, r, &req, func(ctx context.Context, id string) (wizard.View, error) {
		return s.wizard.SetMidpoint(ctx, id, sanitizeInput(req.Text))
	})
}

func (s *Server) handleSetMilestones(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	s.wizardEdit(w, r, &req, func(ctx context.Context, id string) (wizard.View, error) {
		return s.wizard.SetMilestones(ctx, id, sanitizeAll(req.Items))
	})
}

func (s *Server) handleSetActions(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	freq := core.Frequency(strings.ToLower(r.PathValue("frequency")))
	s.wizardEdit(w, r, &req, func(ctx context.Context, id string) (wizard.View, error) {
		return s.wizard.SetActions(ctx, id, freq, sanitizeAll(req.Items))
	})
}

func (s *Server) handleWizardNext(w http.ResponseWriter, r *http.Request) {
	view, err := s.wizard.Next(r.Context(), r.PathValue("id"))
	s.respondWizard(w, r, view, err)
}

func (s *Server) handleWizardBack(w http.ResponseWriter, r *http.Request) {
	view, err := s.wizard.Back(r.Context(), r.PathValue("id"))
	s.respondWizard(w, r, view, err)
}

// handleWizardCommit finalizes the plan. Remote failures do not fail the
// request; they are reported per target in the result.
func (s *Server) handleWizardCommit(w http.ResponseWriter, r *http.Request) {
	view, err := s.wizard.Commit(r.Context(), r.PathValue("id"))
	s.respondWizard(w, r, view, err)
}

func (s *Server) handleWizardRetry(w http.ResponseWriter, r *http.Request) {
	view, err := s.wizard.RetryCommit(r.Context(), r.PathValue("id"))
	s.respondWizard(w, r, view, err)
}

// wizardEdit decodes the body into req and then applies edit.
func (s *Server) wizardEdit(w http.ResponseWriter, r *http.Request, req any, edit func(ctx context.Context, id string) (wizard.View, error)) {
	if err := decodeJSON(w, r, req); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := edit(r.Context(), r.PathValue("id"))
	s.respondWizard(w, r, view, err)
}

func (s *Server) respondWizard(w http.ResponseWriter, r *http.Request, view wizard.View, err error) {
	if failed(err) {
		if StatusFor(err) >= http.StatusInternalServerError {
			s.fail(w, r, err)
			return
		}
		WizardErrorResponse(err, view).Write(w)
		return
	}
	NewJSONResponse().Warning(err).Body(view).Write(w)
}
