// Package student contains all HTTP handlers related to student
// registration and search.
//
// Handlers are built by factory functions that receive their
// dependencies and return the http.HandlerFunc the router needs:
//
//	router.HandleFunc("POST /api/register", student.Register(registrations))
//
// The factory runs once at startup; the returned closure runs on every
// request.
package student

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/aanand-mishra/pace-registry/internal/registration"
	"github.com/aanand-mishra/pace-registry/internal/storage"
	"github.com/aanand-mishra/pace-registry/internal/types"
	"github.com/aanand-mishra/pace-registry/internal/utils/response"
)

// maxBodyBytes caps a registration request body.
const maxBodyBytes = 1 << 20

// Registrar admits registrations. *registration.Service satisfies it.
type Registrar interface {
	Register(ctx context.Context, req registration.Request) (types.Student, error)
}

// Searcher runs search queries. *search.Service satisfies it.
type Searcher interface {
	Search(ctx context.Context, term string) []types.Student
}

// RegisterResponse is the body of a successful registration.
type RegisterResponse struct {
	Status  string        `json:"status"`
	Student types.Student `json:"student"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Register handles POST /api/register
//
// Request body (JSON):
//
//	{ "usn": "4pa21cs001", "name": "Asha", "email": "4PA21CS001@pace.edu.in", "skills": "go,rust" }
//
// Success response (201 Created):
//
//	{ "status": "ok", "student": { "usn": "4PA21CS001", ... } }
//
// Error responses:
//
//	400 BAD_REQUEST               — body is empty or not a JSON object
//	400 MISSING_FIELDS            — a field is blank after trimming
//	400 INVALID_EMAIL_DOMAIN      — email is not 4pa...@pace.edu.in
//	409 DUPLICATE_USN / _EMAIL    — usn or email already registered
//	500 INTERNAL_ERROR            — the record could not be persisted
//
// BAD_REQUEST sits outside the registration outcomes. A body
// that does not decode never reaches registration.Service, so it is not
// counted as an admission attempt and is not reported as MISSING_FIELDS:
// the client sent something that is not a registration at all.
//
// ─────────────────────────────────────────────────────────────────────────────
func Register(reg Registrar) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("registering a student")

		var req registration.Request
		err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
		if errors.Is(err, io.EOF) {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(response.CodeBadRequest, errors.New("request body is empty")))
			return
		}
		if err != nil {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(response.CodeBadRequest, err))
			return
		}

		st, err := reg.Register(r.Context(), req)
		if err != nil {
			status, code := classify(err)
			if status == http.StatusInternalServerError {
				slog.Error("error registering student", slog.String("error", err.Error()))
				// Internal details stay in the log.
				err = errors.New("server error")
			} else {
				slog.Info("registration rejected",
					slog.String("code", code),
					slog.String("error", err.Error()))
			}
			response.WriteJSON(w, status, response.GeneralError(code, err))
			return
		}

		slog.Info("student registered", slog.String("usn", st.USN))
		response.WriteJSON(w, http.StatusCreated,
			RegisterResponse{Status: response.StatusOK, Student: st})
	}
}

// classify maps a registration error to an HTTP status and failure code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, registration.ErrMissingFields):
		return http.StatusBadRequest, response.CodeMissingFields
	case errors.Is(err, registration.ErrInvalidEmailDomain):
		return http.StatusBadRequest, response.CodeInvalidEmailDomain
	case errors.Is(err, storage.ErrDuplicateUSN):
		return http.StatusConflict, response.CodeDuplicateUSN
	case errors.Is(err, storage.ErrDuplicateEmail):
		return http.StatusConflict, response.CodeDuplicateEmail
	default:
		return http.StatusInternalServerError, response.CodeInternal
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Search handles GET /api/search?q=term
//
// The term is read from "q". Without "q", the value of the first query
// parameter is used, whatever its name (the browser page sends ?skill=).
// A missing term matches every student.
//
// Success response (200 OK), in registration order:
//
//	[ { "name": "Asha", "usn": "4PA21CS001", "email": "...", "skills": "go,rust" } ]
//
// ─────────────────────────────────────────────────────────────────────────────
func Search(s Searcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		term := queryTerm(r.URL)
		slog.Info("searching students", slog.String("term", term))

		response.WriteJSON(w, http.StatusOK, s.Search(r.Context(), term))
	}
}

func queryTerm(u *url.URL) string {
	if q := u.Query(); q.Has("q") {
		return q.Get("q")
	}

	first, _, _ := strings.Cut(u.RawQuery, "&")
	_, v, ok := strings.Cut(first, "=")
	if !ok {
		return ""
	}
	term, err := url.QueryUnescape(v)
	if err != nil {
		return v
	}
	return term
}

// ─────────────────────────────────────────────────────────────────────────────
// Index handles GET / by serving the static registration page at path.
// ─────────────────────────────────────────────────────────────────────────────
func Index(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			response.WriteJSON(w, http.StatusNotFound,
				response.GeneralError(response.CodeNotFound, errors.New("not found")))
			return
		}

		if _, err := os.Stat(path); err != nil {
			slog.Warn("static page not available",
				slog.String("path", path),
				slog.String("error", err.Error()))
			response.WriteJSON(w, http.StatusNotFound,
				response.GeneralError(response.CodeNotFound, errors.New("index.html not found")))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeFile(w, r, path)
	}
}

// Recover turns a panic in next into a 500 response so one bad request
// never takes the process down.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic while handling request",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec))
				response.WriteJSON(w, http.StatusInternalServerError,
					response.GeneralError(response.CodeInternal, errors.New("server error")))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
