package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// Transaction history filter: admin-managed, regular or everything
	validate.RegisterValidation("cause_class", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "", "all", "admin", "regular":
			return true
		}
		return false
	})

	// Point deltas are signed but never zero
	validate.RegisterValidation("nonzero", func(fl validator.FieldLevel) bool {
		return fl.Field().Int() != 0
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errors := make(map[string]string)
	for _, err := range verrs {
		field := err.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too small (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too large (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "lte":
			errors[field] = "Value must be at most " + err.Param()
		case "uuid":
			errors[field] = "Invalid identifier"
		case "nonzero":
			errors[field] = "Value must not be zero"
		case "cause_class":
			errors[field] = "Invalid class. Must be: all, admin, or regular"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}
