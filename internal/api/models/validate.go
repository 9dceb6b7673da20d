package models

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks v against its validate tags and returns one FieldError
// per violation, named by JSON path. It returns nil when v is valid.
func Validate(v interface{}) []FieldError {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "", Message: err.Error(), Code: "INVALID"}}
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: message(fe),
			Code:    code(fe.Tag()),
		})
	}
	return out
}

// fieldPath drops the struct type name that leads every namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "lt":
		return "must be less than " + fe.Param()
	case "min":
		return "must have at least " + fe.Param() + " " + unit(fe)
	case "max":
		return "must have at most " + fe.Param() + " " + unit(fe)
	case "oneof":
		return "must be one of: " + fe.Param()
	case "bcp47_language_tag":
		return "must be a BCP 47 language tag"
	}
	return "is invalid"
}

func unit(fe validator.FieldError) string {
	if fe.Kind() == reflect.String {
		return "characters"
	}
	return "items"
}

func code(tag string) string {
	switch tag {
	case "required":
		return "REQUIRED"
	case "gte", "lte", "lt", "min", "max":
		return "OUT_OF_RANGE"
	case "oneof", "bcp47_language_tag":
		return "INVALID_VALUE"
	}
	return "INVALID"
}
