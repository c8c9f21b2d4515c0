package api

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ideavolution/coordinator/internal/lifecycle"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json names so nested errors read food_items[0].quantity
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("alert_status", func(fl validator.FieldLevel) bool {
		return lifecycle.Status(fl.Field().String()).Valid()
	})
	return v
}

// Validate validates a struct using go-playground/validator tags.
// Returns nil on success or a map of field path → error message.
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errs := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		errs[fieldPath(fe)] = validationMessage(fe)
	}
	return errs
}

// fieldPath drops the struct name from the namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	if ns == "" {
		return toSnakeCase(fe.Field())
	}
	return ns
}

// validationMessage returns a human-readable message for a validation error.
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "latitude":
		return "must be a valid latitude"
	case "longitude":
		return "must be a valid longitude"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "alert_status":
		return "is not a known alert status"
	case "email":
		return "must be a valid email"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// toSnakeCase converts a CamelCase field name to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				result.WriteByte('_')
			}
			result.WriteRune(r + 32)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
