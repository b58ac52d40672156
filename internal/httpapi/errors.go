package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/eventstore"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/internal/platform/httpx"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/projection"
	"github.com/convey2karthikshivashankar-cloud/nexus-sub000/schema"
)

var (
	errInvalidBody  = errors.New("request body is not valid JSON")
	errInvalidQuery = errors.New("invalid query parameter")
	errUnknownQueue = errors.New("unknown consumer queue")
	errNoQueues     = errors.New("no standard consumers are configured")
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var conflict *eventstore.ConflictError

	switch {
	case errors.As(err, &conflict), errors.Is(err, eventstore.ErrConcurrencyConflict), errors.Is(err, schema.ErrIncompatibleSchema):
		return http.StatusConflict
	case errors.Is(err, eventstore.ErrPolicyViolation):
		return http.StatusForbidden
	case errors.Is(err, projection.ErrUnknownProjection), errors.Is(err, projection.ErrRecordNotFound),
		errors.Is(err, schema.ErrUnknownSubject), errors.Is(err, errUnknownQueue):
		return http.StatusNotFound
	case errors.Is(err, eventstore.ErrValidationFailed), errors.Is(err, errInvalidBody), errors.Is(err, errInvalidQuery),
		errors.Is(err, schema.ErrInvalidSchema), errors.Is(err, schema.ErrUnknownMode), errors.Is(err, schema.ErrEmptySubject):
		return http.StatusBadRequest
	case errors.Is(err, eventstore.ErrStorageUnavailable), errors.Is(err, errNoQueues),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type conflictDetails struct {
	AggregateID     string `json:"aggregateId"`
	ExpectedVersion uint64 `json:"expectedVersion"`
	ActualVersion   uint64 `json:"actualVersion"`
}

func detailsFor(err error) any {
	var conflict *eventstore.ConflictError
	if errors.As(err, &conflict) {
		return conflictDetails{AggregateID: conflict.AggregateID, ExpectedVersion: conflict.ExpectedVersion, ActualVersion: conflict.ActualVersion}
	}

	var validation *eventstore.ValidationError
	if errors.As(err, &validation) {
		return map[string]any{"source": validation.Source, "violations": validation.Violations}
	}

	return nil
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		s.deps.Logger.ErrorContext(r.Context(), "request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err.Error())
		message = "internal error"
	}

	httpx.WriteJSON(w, status, httpx.ErrorBody{
		Error:   http.StatusText(status),
		Message: message,
		Details: detailsFor(err),
	})
}
