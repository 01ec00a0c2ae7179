// Package validator wraps go-playground/validator with domain-specific
// validations for scan requests and budget policies.
package validator

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/traceprint/api/pkg/domain/finding"
	"github.com/traceprint/api/pkg/domain/provider"
	"github.com/traceprint/api/pkg/domain/scan"
)

// Validator wraps the go-playground validator with custom validations.
type Validator struct {
	validate *validator.Validate
}

// ValidationError is a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, e := range v {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return sb.String()
}

// New creates a Validator with the domain validators registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("identifier_type", validateIdentifierType)
	_ = v.RegisterValidation("tier", validateTier)
	_ = v.RegisterValidation("severity", validateSeverity)
	_ = v.RegisterValidation("schedule_type", validateScheduleType)

	return &Validator{validate: v}
}

// Struct validates a struct and converts failures into ValidationErrors.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if stderrors.As(err, &invalid) {
		return fmt.Errorf("invalid validation target: %w", err)
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Message: messageFor(fe),
		})
	}
	return out
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "identifier_type":
		return "must be one of: username, email, phone, domain, ip, image, name"
	case "tier":
		return "must be one of: free, starter, pro, enterprise"
	case "severity":
		return "must be one of: low, medium, high, critical"
	case "schedule_type":
		return "must be one of: none, daily, weekly, crontab"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "uuid":
		return "must be a valid UUID"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func validateIdentifierType(fl validator.FieldLevel) bool {
	return provider.IdentifierType(fl.Field().String()).IsValid()
}

func validateTier(fl validator.FieldLevel) bool {
	return provider.Tier(fl.Field().String()).IsValid()
}

func validateSeverity(fl validator.FieldLevel) bool {
	return finding.Severity(fl.Field().String()).IsValid()
}

func validateScheduleType(fl validator.FieldLevel) bool {
	return scan.ScheduleType(fl.Field().String()).IsValid()
}
