// Package registration validates untrusted registration input and admits
// it into the record store.
//
// Checks run in a fixed order and stop at the first failure:
//
//  1. usn, name and email must be non-empty after trimming
//  2. email must be a college address (4pa...@pace.edu.in)
//  3. usn and email must not already be registered
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aanand-mishra/pace-registry/internal/metrics"
	"github.com/aanand-mishra/pace-registry/internal/storage"
	"github.com/aanand-mishra/pace-registry/internal/types"
)

// College email rule. Not configurable.
const (
	EmailPrefix = "4pa"
	EmailSuffix = "@pace.edu.in"
)

const paceEmailTag = "pace_email"

var (
	// ErrMissingFields is returned when usn, name or email is blank.
	ErrMissingFields = errors.New("missing fields")

	// ErrInvalidEmailDomain is returned when the email is not a college
	// address.
	ErrInvalidEmailDomain = errors.New("use college email (4pa...@pace.edu.in)")
)

// Request carries the four raw fields of a registration.
type Request struct {
	USN    string `json:"usn"    validate:"required"`
	Name   string `json:"name"   validate:"required"`
	Email  string `json:"email"  validate:"required,pace_email"`
	Skills string `json:"skills"`
}

// Normalize trims every field, uppercases the usn and lowercases the
// email.
func (r Request) Normalize() Request {
	return Request{
		USN:    strings.ToUpper(strings.TrimSpace(r.USN)),
		Name:   strings.TrimSpace(r.Name),
		Email:  strings.ToLower(strings.TrimSpace(r.Email)),
		Skills: strings.TrimSpace(r.Skills),
	}
}

// Admitter is the part of the record store registration depends on.
type Admitter interface {
	Admit(types.Student) error
}

// Service runs registrations against an Admitter.
type Service struct {
	store    Admitter
	validate *validator.Validate
	metrics  metrics.Recorder
}

// NewService returns a Service admitting into store. A nil recorder
// disables metrics.
func NewService(store Admitter, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return &Service{
		store:    store,
		validate: newValidator(),
		metrics:  rec,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// The tag is registered once at construction; an error here is a
	// programming mistake.
	if err := v.RegisterValidation(paceEmailTag, isPaceEmail); err != nil {
		panic(err)
	}
	return v
}

func isPaceEmail(fl validator.FieldLevel) bool {
	email := fl.Field().String()
	return strings.HasPrefix(email, EmailPrefix) && strings.HasSuffix(email, EmailSuffix)
}

// Register normalizes req, validates it and admits the result. The
// returned error is ErrMissingFields, ErrInvalidEmailDomain,
// storage.ErrDuplicateUSN, storage.ErrDuplicateEmail, or any other
// error for an internal failure (use errors.Is to tell them apart).
func (s *Service) Register(ctx context.Context, req Request) (types.Student, error) {
	req = req.Normalize()

	if err := s.check(req); err != nil {
		s.metrics.RecordAdmission(ctx, outcome(err))
		return types.Student{}, err
	}

	st := types.Student{
		USN:    req.USN,
		Name:   req.Name,
		Email:  req.Email,
		Skills: req.Skills,
	}

	if err := s.store.Admit(st); err != nil {
		s.metrics.RecordAdmission(ctx, outcome(err))
		if errors.Is(err, storage.ErrPersist) {
			slog.Error("failed to persist student",
				slog.String("usn", st.USN),
				slog.String("error", err.Error()))
		}
		return types.Student{}, err
	}

	s.metrics.RecordAdmission(ctx, metrics.OutcomeAdmitted)
	return st, nil
}

// check maps validator failures onto the ordered error kinds. Any
// missing field wins over a bad email domain.
func (s *Service) check(req Request) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("registration: validate: %w", err)
	}

	domain := false
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			return ErrMissingFields
		case paceEmailTag:
			domain = true
		}
	}
	if domain {
		return ErrInvalidEmailDomain
	}
	return fmt.Errorf("registration: validate: %w", err)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrMissingFields):
		return metrics.OutcomeMissingFields
	case errors.Is(err, ErrInvalidEmailDomain):
		return metrics.OutcomeInvalidEmail
	case errors.Is(err, storage.ErrDuplicateUSN):
		return metrics.OutcomeDuplicateUSN
	case errors.Is(err, storage.ErrDuplicateEmail):
		return metrics.OutcomeDuplicateEmail
	default:
		return metrics.OutcomeInternalError
	}
}
