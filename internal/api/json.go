package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/nota/internal/apperr"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error  string            `json:"error" validate:"required"`
	Kind   apperr.Kind       `json:"kind,omitempty" example:"validation"`
	Fields map[string]string `json:"fields,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotAuthenticated:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindCanceled:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse builds the body for err. Unknown errors are not echoed.
func errorResponse(err error) errResponse {
	kind := apperr.KindOf(err)
	body := errResponse{Error: err.Error(), Kind: kind}
	var verr *apperr.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	if kind == apperr.KindUnknown {
		body.Error = "internal error"
	}
	return body
}

// writeError writes err with the status of its kind. Failures that are not
// the caller's fault are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorResponse(err)
	status := statusFor(body.Kind)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
	}
	writeJSON(w, status, body)
}

// validatable is implemented by request bodies.
type validatable interface {
	Validate() error
}

// decodeJSON reads a JSON body into v and validates it when v supports it.
// An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Invalid("body", fmt.Sprintf("invalid JSON body: %v", err))
	}
	if vv, ok := v.(validatable); ok {
		if err := vv.Validate(); err != nil {
			return fieldErrors(err)
		}
	}
	return nil
}

// fieldErrors converts ozzo validation errors into a ValidationError.
func fieldErrors(err error) error {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return apperr.Invalid("body", err.Error())
	}
	out := &apperr.ValidationError{Fields: make(map[string]string, len(verrs))}
	for field, fe := range verrs {
		out.Fields[field] = fe.Error()
	}
	return out
}
