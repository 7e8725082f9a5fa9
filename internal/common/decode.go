package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeJSON reads the request body into dst and runs struct validation.
// Validation failures come back as an AppError with field details so
// handlers can hand them straight to WriteError.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return NewAppError(CodeValidation, "invalid request body", http.StatusBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) {
			details := make(map[string]string, len(fields))
			for _, fe := range fields {
				details[strings.ToLower(fe.Field())] = fe.Tag()
			}
			return &AppError{
				Code:       CodeValidation,
				Message:    "request validation failed",
				HTTPStatus: http.StatusBadRequest,
				Err:        err,
				Details:    details,
			}
		}
		return NewAppError(CodeValidation, "invalid request body", http.StatusBadRequest, err)
	}
	return nil
}

// ValidateStruct runs the shared validator against v.
func ValidateStruct(v any) error {
	return validate.Struct(v)
}
