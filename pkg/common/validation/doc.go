// Package validation provides common validation utilities for configuration
// parameters across the elasticpool packages.
//
// Every helper returns a *errors.ValidationError so callers can report the
// offending module, field and value uniformly, and match failures with
// errors.Is(err, errors.ErrInvalidConfiguration).
package validation
