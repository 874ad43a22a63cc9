package catalog

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "catalog-graph/backend/pkg/errors"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]

		// ignore unexported or explicitly ignored
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = validate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
}

// fieldMessages are the user-facing problems reported per field, whatever rule failed.
var fieldMessages = map[string]string{
	"name":  "Name is required",
	"price": "Price must be a positive number",
	"stock": "Stock must be a positive integer",
}

// validateStruct runs the struct tags and folds every failure into one ValidationError.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return fmt.Errorf("failed to validate input: %w", err)
	}
	problems := make([]string, 0, len(ve))
	seen := make(map[string]bool)
	for _, fe := range ve {
		msg := formatFieldError(fe)
		if !seen[msg] {
			seen[msg] = true
			problems = append(problems, msg)
		}
	}
	return apperrors.NewValidationError(problems...)
}

func formatFieldError(e validator.FieldError) string {
	if msg, ok := fieldMessages[e.Field()]; ok {
		return msg
	}
	switch e.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", e.Field())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", e.Field(), e.Param())
	default:
		return fmt.Sprintf("%s failed on '%s'", e.Field(), e.Tag())
	}
}
