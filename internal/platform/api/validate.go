package api

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FromValidation converts an ozzo-validation result into a taxonomy
// validation error with per-field details. Field names are sorted so the
// detail order is stable.
func FromValidation(entity string, err error) *Error {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return Validation(entity, err.Error())
	}
	fields := make([]string, 0, len(verrs))
	for f := range verrs {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	apiErr := Validation(entity, "Validation failed")
	for _, f := range fields {
		apiErr.Details = append(apiErr.Details, ErrorDetail{Field: f, Message: verrs[f].Error()})
	}
	return apiErr
}
