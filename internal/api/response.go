package api

import (
	"encoding/json"
	"net/http"

	"github.com/leonardcser/addrkv/internal/coordinator"
	"github.com/leonardcser/addrkv/internal/logger"
)

const (
	StatusSuccess = "Success"
	StatusError   = "Error"
)

// Response is the envelope returned by every route. Content carries the
// embedded JSON payload on success and is null on error.
type Response struct {
	Status  string          `json:"status"`
	Reason  string          `json:"reason"`
	Route   string          `json:"route"`
	Code    string          `json:"code,omitempty"`
	Content json.RawMessage `json:"content"`
}

// Codes for requests rejected before reaching the coordinator.
const (
	codeInvalidRequest = "InvalidRequest"
	codeBodyTooLarge   = "RequestBodyTooLarge"
	codeInternal       = "InternalError"
)

func writeOK(w http.ResponseWriter, route, reason string, payload any) {
	content, err := json.Marshal(payload)
	if err != nil {
		writeFailure(w, route, http.StatusInternalServerError, codeInternal, "Failed to encode response")
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: StatusSuccess, Reason: reason, Route: route, Content: content})
}

func writeFailure(w http.ResponseWriter, route string, status int, code, reason string) {
	writeJSON(w, status, Response{Status: StatusError, Reason: reason, Route: route, Code: code, Content: json.RawMessage("null")})
}

// writeError reports a coordinator failure with its code and mapped status.
func writeError(w http.ResponseWriter, route string, err error) {
	code, ok := coordinator.CodeOf(err)
	if !ok {
		logger.Errorf("%s: unclassified error: %v", route, err)
		writeFailure(w, route, http.StatusInternalServerError, codeInternal, "Internal server error")
		return
	}
	writeFailure(w, route, HTTPStatus(code), string(code), code.Message())
}

// HTTPStatus maps coordinator codes to HTTP status codes.
func HTTPStatus(code coordinator.Code) int {
	switch code {
	case coordinator.CodeFilterLookupFailed:
		return http.StatusNotFound
	case coordinator.CodeDataSerializationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("%s: write response: %v", v.Route, err)
	}
}
