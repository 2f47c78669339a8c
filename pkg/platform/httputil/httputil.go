// Package httputil holds the JSON envelope helpers shared by every handler.
//
// Successful responses embed Envelope so that "success": true sits next to the
// payload fields. Failures are written as {"success": false, "message": ...}.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "simkyc/pkg/domain-errors"
)

// Envelope is embedded in response structs.
type Envelope struct {
	Success bool `json:"success"`
}

// OK returns a successful envelope.
func OK() Envelope {
	return Envelope{Success: true}
}

type failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteFail writes a failure envelope.
func WriteFail(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, failure{Success: false, Message: message})
}

// WriteError maps a domain error onto a status code and failure envelope.
// Internal errors never expose their message.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	status := StatusFor(code)
	if code == dErrors.CodeInternal {
		WriteFail(w, status, "Internal server error")
		return
	}
	WriteFail(w, status, dErrors.MessageOf(err))
}

// StatusFor returns the HTTP status for a domain error code.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Validatable is implemented by request DTOs.
type Validatable interface {
	Validate() error
}

// DecodeAndValidate decodes the JSON body into T and runs its Validate method.
// An empty body decodes to the zero value so optional-only requests pass.
func DecodeAndValidate[T any, PT interface {
	*T
	Validatable
}](r *http.Request) (PT, error) {
	req := PT(new(T))
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "Invalid JSON request body.")
		}
	}
	if err := req.Validate(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}
	return req, nil
}
