// Package response provides helpers for writing consistent JSON HTTP responses.
//
// Every handler in this application sends JSON back to the client.
// Rather than repeating the same three lines (set header, set status,
// encode JSON) in every handler, we centralise them here.
package response

import (
	"encoding/json"
	"net/http"
)

// Response is the standard envelope for error and status replies.
//
//	{ "status": "error", "code": "DUPLICATE_USN", "error": "usn already registered" }
type Response struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Status string constants.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Failure codes. Clients branch on these rather than on the message.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeMissingFields      = "MISSING_FIELDS"
	CodeInvalidEmailDomain = "INVALID_EMAIL_DOMAIN"
	CodeDuplicateUSN       = "DUPLICATE_USN"
	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeNotFound           = "NOT_FOUND"
	CodeInternal           = "INTERNAL_ERROR"
)

// WriteJSON writes data as JSON with the given HTTP status code.
//
// Header() → WriteHeader() → body, in that order: once WriteHeader is
// called, headers are locked.
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// GeneralError wraps err into the error envelope with the given code.
func GeneralError(code string, err error) Response {
	return Response{
		Status: StatusError,
		Code:   code,
		Error:  err.Error(),
	}
}
