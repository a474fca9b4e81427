package application

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/ngds/geobridge/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields under the names callers send them as.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// prepare fills defaults on req, which must be a pointer to a request
// struct, and validates it.
func prepare(req interface{}) error {
	if err := defaults.Set(req); err != nil {
		return fmt.Errorf("applying request defaults: %w", err)
	}
	return check(req)
}

// check validates req and converts failures into domain.ValidationErrors.
func check(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validating request: %w", err)
	}

	out := make(domain.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, &domain.ValidationError{
			Field:      fe.Field(),
			Value:      fe.Value(),
			Constraint: fe.Tag(),
			Message:    message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Missing value"
	case "url", "uri":
		return "Must be a URL"
	case "numeric":
		return "Must be a number"
	case "hostname_rfc1123|ip":
		return "Must be a host name or IP address"
	default:
		return fmt.Sprintf("Invalid value (%s)", fe.Tag())
	}
}

// fieldError builds a single-field validation error.
func fieldError(field, msg string) domain.ValidationErrors {
	return domain.ValidationErrors{{Field: field, Message: msg}}
}
