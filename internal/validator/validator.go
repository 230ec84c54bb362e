// Package validator wraps go-playground/validator with the messages the API reports.
package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// V is the shared validator instance. It is safe for concurrent use.
var V = validator.New(validator.WithRequiredStructEnabled())

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is returned by Struct and Var when validation fails.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, fe := range e {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field, fe.Message))
	}
	return strings.Join(msgs, "; ")
}

// Struct validates v's `validate` tags.
func Struct(v any) error {
	if err := V.Struct(v); err != nil {
		return convert(err, "")
	}
	return nil
}

// Var validates a single value against tag, reporting failures under field.
func Var(field string, value any, tag string) error {
	if err := V.Var(value, tag); err != nil {
		return convert(err, field)
	}
	return nil
}

func convert(err error, field string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		name := field
		if name == "" {
			name = lowerFirst(fe.Field())
		}
		out = append(out, FieldError{Field: name, Message: message(fe)})
	}
	return out
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", e.Param())
	default:
		return fmt.Sprintf("failed validation: %s", e.Tag())
	}
}
