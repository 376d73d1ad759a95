package config

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// describe renders a field error using the YAML key path, e.g. "smtp.port".
func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_if":
		return field + " is required when " + strings.Replace(param, " ", " is ", 1)
	case "oneof":
		return field + " must be one of [" + param + "]"
	case "min", "gte":
		return field + " must be at least " + param
	case "max", "lte":
		return field + " must be at most " + param
	case "gt":
		return field + " must be greater than " + param
	case "email":
		return field + " must be a valid email"
	case "url":
		return field + " must be a valid URL"
	case "hostname_port":
		return field + " must be host:port"
	case "hostname_rfc1123":
		return field + " must be a valid host name"
	default:
		return field + " is invalid"
	}
}
