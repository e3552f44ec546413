package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"cuentas/internal/core"
	applog "cuentas/internal/log"
)

// JSONResponseBuilder provides a fluent API for JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{statusCode: http.StatusOK, headers: map[string]string{}}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.payload = v
	return b
}

func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.payload)
}

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// statusFor maps domain errors onto HTTP status codes and a log error type.
func statusFor(err error) (int, string) {
	var fe *fieldErrors
	switch {
	case errors.As(err, &fe), core.IsValidation(err), errors.Is(err, core.ErrUnknownConcept):
		return http.StatusUnprocessableEntity, applog.ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, applog.ErrorTypeNotFound
	case core.IsConsistency(err):
		return http.StatusConflict, applog.ErrorTypeConflict
	case core.IsTransactionFailure(err):
		return http.StatusInternalServerError, applog.ErrorTypeTransaction
	}
	return http.StatusInternalServerError, applog.ErrorTypeInternal
}

// writeError renders err and logs server-side failures. Internal error
// details never reach the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, errType := statusFor(err)
	body := errorBody{Error: err.Error()}
	var fe *fieldErrors
	if errors.As(err, &fe) {
		body.Fields = fe.fields
	}
	if status >= http.StatusInternalServerError {
		s.structured.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op, errType)
		body = errorBody{Error: http.StatusText(status)}
		if errType == applog.ErrorTypeTransaction {
			body.Error = "transaction rolled back, nothing was saved"
		}
	}
	NewJSONResponse().Status(status).Body(body).Write(w)
}
