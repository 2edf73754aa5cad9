package validation

import (
	"fmt"
	"time"

	poolerrors "github.com/vnykmshr/elasticpool/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
// Returns a ValidationError if the value is not positive.
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return poolerrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidatePositiveDuration validates that a duration is positive (> 0).
func ValidatePositiveDuration(module, field string, value time.Duration) error {
	if value <= 0 {
		return poolerrors.NewValidationError(module, field, value, "must be positive").
			WithHint("use a duration such as 500ms or 3s")
	}
	return nil
}

// ValidateAtMost validates that value does not exceed the value of limitField.
func ValidateAtMost(module, field string, value int, limitField string, limit int) error {
	if value > limit {
		return poolerrors.NewValidationError(module, field, value,
			fmt.Sprintf("must not exceed %s (%d)", limitField, limit)).
			WithHint(fmt.Sprintf("lower %s or raise %s", field, limitField))
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil.
// Returns a ValidationError if the value is nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return poolerrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
// Returns a ValidationError if the string is empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return poolerrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}

// ValidateNonNegative validates that an integer value is zero or greater.
func ValidateNonNegative(module, field string, value int) error {
	if value < 0 {
		return poolerrors.NewValidationError(module, field, value, "must not be negative")
	}
	return nil
}
