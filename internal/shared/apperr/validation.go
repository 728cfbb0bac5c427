package apperr

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// FromValidation converts ozzo-validation errors into a ValidationError that
// names the first failing field. Other errors pass through unchanged.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		var single validation.Error
		if errors.As(err, &single) {
			return &ValidationError{Message: single.Error()}
		}
		return err
	}
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if errs[field] != nil {
			return &ValidationError{Field: field, Message: errs[field].Error()}
		}
	}
	return nil
}
