package httpapi

import (
	"encoding/json"
	"net/http"

	"plotterd/pkg/perrors"
)

// errorPayload is the structured failure body every endpoint returns: a
// human-readable message plus the error kind for clients that branch on it.
type errorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := ""

	if pe, ok := err.(*perrors.Error); ok {
		kind = string(pe.Kind)
		status = statusForKind(pe.Kind)
	}

	writeJSON(w, status, errorPayload{Error: err.Error(), Kind: kind})
}

func statusForKind(kind perrors.Kind) int {
	switch kind {
	case perrors.NotFound:
		return http.StatusNotFound
	case perrors.InvalidState:
		return http.StatusConflict
	case perrors.ParseError:
		return http.StatusBadRequest
	case perrors.Timeout:
		return http.StatusGatewayTimeout
	case perrors.NotReady:
		return http.StatusServiceUnavailable
	case perrors.Cancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
