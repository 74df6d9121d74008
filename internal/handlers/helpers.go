package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"patashala-backend/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

// decodeJSON reads and validates a request body. An empty body is allowed
// when optional is set. It writes the error response itself.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	var err error
	if r.Body != nil {
		err = json.NewDecoder(r.Body).Decode(dst)
	} else {
		err = io.EOF
	}
	switch {
	case errors.Is(err, io.EOF) && !optional:
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Request body is required", r))
		return false
	case err != nil && !errors.Is(err, io.EOF):
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = describe(fe)
		}
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return false
	}
	return true
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	default:
		return "is invalid"
	}
}

func parseID(w http.ResponseWriter, r *http.Request, param, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid "+what+" ID", r))
		return uuid.Nil, false
	}
	return id, true
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation   *models.ValidationError
		conflict     *models.ConflictError
		notFound     *models.NotFoundError
		unauthorized *models.UnauthorizedError
		forbidden    *models.ForbiddenError
		rateLimit    *models.RateLimitError
		thin         *models.InsufficientContentError
		notAvailable *models.NotAvailableError
		blocked      *models.AttemptBlockedError
		stale        *models.StaleSessionError
		persistence  *models.PersistenceError
	)

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validation.Fields, r))
	case errors.As(err, &stale):
		writeJSON(w, http.StatusConflict, errorResp("STALE_SESSION", stale.Message, r))
	case errors.As(err, &blocked):
		writeJSON(w, http.StatusConflict, errorResp("ATTEMPT_BLOCKED", blocked.Error(), r))
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResp("CONFLICT", conflict.Message, r))
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFound.Message, r))
	case errors.As(err, &unauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauthorized.Message, r))
	case errors.As(err, &notAvailable):
		writeJSON(w, http.StatusForbidden, errorResp("NOT_AVAILABLE", notAvailable.Message, r))
	case errors.As(err, &forbidden):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", forbidden.Message, r))
	case errors.As(err, &rateLimit):
		writeJSON(w, http.StatusTooManyRequests, errorResp("RATE_LIMITED", rateLimit.Message, r))
	case errors.As(err, &thin):
		writeJSON(w, http.StatusUnprocessableEntity, errorResp("INSUFFICIENT_CONTENT", thin.Error(), r))
	case errors.As(err, &persistence):
		log.Printf("ERROR: %s %s: %v", r.Method, r.URL.Path, err)
		resp := errorResp("PERSISTENCE_ERROR", "Storage is temporarily unavailable, please retry", r)
		resp.Error.Retryable = persistence.Retryable
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, resp)
	default:
		log.Printf("ERROR: %s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
