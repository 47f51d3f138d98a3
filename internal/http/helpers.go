package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"byb/internal/core"
)

// maxBodyBytes bounds request bodies; vision board data URLs are the largest.
const maxBodyBytes = 2 << 20

// parseDate resolves the {date} path value: "today" or YYYY-MM-DD.
func parseDate(r *http.Request, now time.Time) (core.Date, error) {
	v := strings.TrimSpace(r.PathValue("date"))
	if v == "" || strings.EqualFold(v, "today") {
		return core.DateOf(now), nil
	}
	return core.ParseDate(v)
}

// parseIndex reads an integer path value.
func parseIndex(r *http.Request, name string) (int, error) {
	i, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadRequest, name)
	}
	return i, nil
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func sanitizeAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = sanitizeInput(s)
	}
	return out
}
