// Package http serves the JSON API over the ledger, the goal wizard, the
// daily planner and the vision board.
//
// This file implements the builder used by every handler to write JSON
// responses and to translate domain errors into status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"byb/internal/core"
	"byb/internal/wizard"
)

// HeaderPersistenceWarning is set when the request succeeded in memory but
// the local store could not be read or written.
const HeaderPersistenceWarning = "X-Persistence-Warning"

// errBadRequest marks malformed request bodies and path values.
var errBadRequest = errors.New("bad request")

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
	// Session is the wizard state left in place by a rejected wizard call.
	Session *wizard.View `json:"session,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Warning records a non-fatal persistence failure in a response header.
// Other errors and nil are ignored.
func (b *JSONResponseBuilder) Warning(err error) *JSONResponseBuilder {
	if err != nil && core.IsPersistence(err) {
		b.headers[HeaderPersistenceWarning] = err.Error()
	}
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorResponse maps err to a status code and an ErrorBody.
func ErrorResponse(err error) *JSONResponseBuilder {
	body := ErrorBody{Error: err.Error()}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	return NewJSONResponse().Status(StatusFor(err)).Body(body)
}

// WizardErrorResponse is ErrorResponse carrying the session view, when the
// session exists.
func WizardErrorResponse(err error, view wizard.View) *JSONResponseBuilder {
	b := ErrorResponse(err)
	if view.ID != "" {
		body := b.body.(ErrorBody)
		body.Session = &view
		b.body = body
	}
	return b
}

// StatusFor returns the status code for a domain error.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case core.IsValidation(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wizard.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, wizard.ErrFinished),
		errors.Is(err, wizard.ErrNotAtFinish),
		errors.Is(err, wizard.ErrNothingToRetry),
		errors.Is(err, wizard.ErrCommitRequired),
		errors.Is(err, wizard.ErrFirstStep):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// failed reports whether err must abort the request. A PersistenceError
// does not: the in-memory state is already updated.
func failed(err error) bool {
	return err != nil && !core.IsPersistence(err)
}
