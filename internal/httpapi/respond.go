package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/roach88/namehist/internal/history"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
	Code  int    `json:"code,omitempty"`
}

// Error types outside the history taxonomy.
const (
	errTypeRequest  = "request"
	errTypeInternal = "internal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a lookup error to its response status and body:
//
//	fetch-unavailable  503, with the upstream status as code
//	fetch-transport    502
//	fetch-malformed    502
//	storage            500
//
// Anything else, including a caller that went away mid-lookup, is a 500.
func statusFor(err error) (int, errorBody) {
	var he *history.Error
	if errors.As(err, &he) {
		body := errorBody{Type: string(he.Kind), Error: he.Error()}
		switch he.Kind {
		case history.KindFetchUnavailable:
			body.Code = he.Status
			return http.StatusServiceUnavailable, body
		case history.KindFetchTransport, history.KindFetchMalformed:
			return http.StatusBadGateway, body
		case history.KindStorage:
			return http.StatusInternalServerError, body
		}
	}

	return http.StatusInternalServerError, errorBody{Type: errTypeInternal, Error: err.Error()}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := statusFor(err)
	writeJSON(w, status, body)
}
