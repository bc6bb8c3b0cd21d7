package application

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/go-sqm/internal/domain"
)

// maxProjectNameLength bounds project names so the project directory stays
// a reasonable path component.
const maxProjectNameLength = 128

// RegisterProjectValidators registers custom validation functions with
// the validator instance for use in project configuration validation.
// RegisterProjectValidators adds projectname and sqmmode validators
// that can be referenced in struct tags.
// RegisterProjectValidators returns an error if any validator registration
// fails.
func RegisterProjectValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("projectname", validateProjectName); err != nil {
		return fmt.Errorf("failed to register projectname validator: %w", err)
	}

	if err := v.RegisterValidation("sqmmode", validateMode); err != nil {
		return fmt.Errorf("failed to register sqmmode validator: %w", err)
	}

	return nil
}

// NewProjectValidator returns a validator with the project validators
// registered.
func NewProjectValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := RegisterProjectValidators(v); err != nil {
		return nil, err
	}
	return v, nil
}

// validateProjectName accepts names usable as a single directory component:
// letters, digits, '.', '_' and '-', not starting with a dot.
func validateProjectName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" || len(name) > maxProjectNameLength || strings.HasPrefix(name, ".") {
		return false
	}
	for _, ch := range name {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '.', ch == '_', ch == '-':
		default:
			return false
		}
	}
	return true
}

// validateMode accepts every spelling ParseMode accepts.
func validateMode(fl validator.FieldLevel) bool {
	_, err := domain.ParseMode(fl.Field().String())
	return err == nil
}

// validationToDomain converts validator field errors into a single
// ValidationError so that callers can classify them as configuration errors.
func validationToDomain(entity string, err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%s validation failed: %w", entity, err)
	}

	verr := domain.NewValidationError(entity)
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "projectname":
			verr.AddError(fmt.Sprintf("%s %q must contain only letters, digits, '.', '_' or '-' and not start with '.'", fe.Namespace(), fe.Value()))
		case "sqmmode":
			verr.AddError(fmt.Sprintf("%s %q is not a mode (valid: %s)", fe.Namespace(), fe.Value(), strings.Join(domain.ModeNames(), ", ")))
		case "required":
			verr.AddError(fmt.Sprintf("%s is required", fe.Namespace()))
		default:
			verr.AddError(fmt.Sprintf("%s failed %q constraint (param %q, value %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return verr
}
