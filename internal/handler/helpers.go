package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/boddenberg/envelope-ledger/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a JSON body into v. Unknown keys are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return &domain.ErrValidation{
				Field:   typeErr.Field,
				Message: fmt.Sprintf("%q must be %s", typeErr.Field, kindName(typeErr.Type)),
			}
		case errors.As(err, &maxErr):
			return &domain.ErrValidation{Field: "body", Message: "request body too large"}
		case errors.Is(err, io.EOF):
			return &domain.ErrValidation{Field: "body", Message: "request body is required"}
		default:
			return &domain.ErrValidation{Field: "body", Message: "invalid request body"}
		}
	}
	return nil
}

func kindName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "an integer"
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Slice, reflect.Array:
		return "an array"
	case reflect.Struct, reflect.Map:
		return "an object"
	}
	return "a " + t.Kind().String()
}

// problems collects every input error of one request so the client sees
// them all at once.
type problems struct {
	msgs []string
}

func (p *problems) add(field, format string, args ...any) {
	p.msgs = append(p.msgs, fmt.Sprintf("%q ", field)+fmt.Sprintf(format, args...))
}

func (p *problems) err() error {
	if len(p.msgs) == 0 {
		return nil
	}
	return &requestError{msg: strings.Join(p.msgs, ", ")}
}

// requestError is a 400 whose message is sent as is.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var request *requestError
	var setup *domain.ErrSetup
	var circuitOpen *domain.ErrCircuitOpen

	switch {
	case errors.As(err, &request):
		logger.Debug("invalid request", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, request.msg)
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &setup):
		logger.Error("setup error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, setup.Message)
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
