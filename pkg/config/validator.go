package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports fields by their koanf path.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// registration only fails on an empty tag or nil func
	_ = RegisterCustomValidators(v)
	return v
}

// RegisterCustomValidators registers custom validation functions
func RegisterCustomValidators(v *validator.Validate) error {
	return v.RegisterValidation("url_scheme", validateURLScheme)
}

// validateURLScheme checks that the field starts with one of the space
// separated prefixes given as the tag parameter.
func validateURLScheme(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	for _, prefix := range strings.Fields(fl.Param()) {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

// fieldPath strips the root struct name from a validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func quoteAll(params []string) string {
	quoted := make([]string, len(params))
	for i, p := range params {
		quoted[i] = "'" + p + "'"
	}
	return strings.Join(quoted, " or ")
}

// describeFieldError renders one validation failure naming the koanf path.
func describeFieldError(fe validator.FieldError) string {
	path := fieldPath(fe)
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", path)
	case "gt":
		return fmt.Sprintf("%s must be > %s", path, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be >= %s", path, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be <= %s", path, fe.Param())
	case "ltefield":
		return fmt.Sprintf("%s cannot exceed max_connections", path)
	case "url_scheme":
		return fmt.Sprintf("%s must start with %s", path, quoteAll(strings.Fields(fe.Param())))
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", path, fe.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with '%s'", path, fe.Param())
	default:
		return fmt.Sprintf("%s failed on the '%s' rule", path, fe.Tag())
	}
}

// translateValidationError turns validator output into readable messages.
func translateValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}
