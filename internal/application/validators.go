package application

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/softscore/internal/domain"
)

// modelPattern matches "provider/model" and "provider/model@version".
var modelPattern = regexp.MustCompile(`^[a-z0-9]+/[A-Za-z0-9\-_\.]+(@[A-Za-z0-9\-_\.]+)?$`)

// RegisterConfigValidators registers the custom validation functions used in
// EngineConfig struct tags.
// It returns an error if any validator registration fails.
func RegisterConfigValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}

	if err := v.RegisterValidation("modelformat", validateModelFormat); err != nil {
		return fmt.Errorf("failed to register modelformat validator: %w", err)
	}

	if err := v.RegisterValidation("scorescale", validateScoreScale); err != nil {
		return fmt.Errorf("failed to register scorescale validator: %w", err)
	}

	return nil
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3 && major >= 0 && minor >= 0 && patch >= 0
}

// validateModelFormat validates that a model string matches
// ^[a-z0-9]+/[A-Za-z0-9\-_\.]+(@[A-Za-z0-9\-_\.]+)?$
// The empty string is accepted so the tag composes with omitempty.
func validateModelFormat(fl validator.FieldLevel) bool {
	model := fl.Field().String()
	if model == "" {
		return true
	}
	return modelPattern.MatchString(model)
}

// validateScoreScale validates a "min-max" score range such as "1-5".
func validateScoreScale(fl validator.FieldLevel) bool {
	_, err := domain.ParseScoreScale(fl.Field().String())
	return err == nil
}
