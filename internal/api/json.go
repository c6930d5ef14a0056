package api

import (
	"encoding/json"
	"net/http"

	"ridedispatch/internal/apperr"
	"ridedispatch/internal/logging"
)

// Problem represents an RFC7807 problem details response body.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	Code     string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}

// writeError converts a service error into a problem response. Errors
// without a classification are logged and masked as a generic 500 so
// internals never leak and the process never crashes a request.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(err)
	detail := err.Error()
	title := http.StatusText(status)
	if code == apperr.CodeInternal {
		log := logging.Component("api")
		log.Error().Str("path", r.URL.Path).Err(err).Msg("unclassified failure")
		detail = "internal error"
	}
	writeJSON(w, status, Problem{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
		Code:     string(code),
	})
}
