package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ajitpratap0/gridfeed/pkg/scheme"
)

// Global validator instance; field names are reported by their yaml keys.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// ValidationError represents a field-level validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors holds multiple validation errors
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// Error implements the error interface for ValidationErrors
func (v *ValidationErrors) Error() string {
	if len(v.Errors) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(v.Errors))
	for i, e := range v.Errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

func (v *ValidationErrors) add(field, message string) {
	v.Errors = append(v.Errors, ValidationError{Field: field, Message: message})
}

// Validate checks the configuration. It reports struct rule violations,
// malformed input names and scheme arguments required on create.
func (c *RunConfig) Validate() error {
	errs := &ValidationErrors{}

	if err := validate.Struct(c); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		for _, e := range fieldErrs {
			errs.add(trimRoot(e.Namespace()), formatValidationMessage(e))
		}
	}

	gm := scheme.GridManager()
	for _, name := range c.InputNames() {
		if _, _, err := ParseInputName(name); err != nil {
			errs.add("inputs", err.Error())
			continue
		}
		for _, arg := range gm.CheckRequired(c.Inputs[name].Args()) {
			errs.add(fmt.Sprintf("inputs[%s].%s", name, arg), "required on create")
		}
	}

	if len(errs.Errors) > 0 {
		return errs
	}
	return nil
}

// ValidateInput checks a single input against the struct rules
func ValidateInput(in InputConfig) error {
	if err := validate.Struct(in); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		errs := &ValidationErrors{}
		for _, e := range fieldErrs {
			errs.add(trimRoot(e.Namespace()), formatValidationMessage(e))
		}
		return errs
	}
	return nil
}

func trimRoot(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// formatValidationMessage creates human-readable error messages
func formatValidationMessage(e validator.FieldError) string {
	field := e.Field()
	switch e.Tag() {
	case "required", "required_unless":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s entries", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "excludesall":
		return fmt.Sprintf("%s must not contain any of %q", field, e.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, e.Tag())
	}
}
