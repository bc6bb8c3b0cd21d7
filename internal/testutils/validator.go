package testutils

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

// NewTestValidator creates a new validator instance for testing with the
// given custom validators registered. This provides a consistent validator
// configuration across all tests.
func NewTestValidator(t testing.TB, register ...func(*validator.Validate) error) *validator.Validate {
	t.Helper()
	v := validator.New()
	for _, r := range register {
		if err := r(v); err != nil {
			t.Fatalf("register validators: %v", err)
		}
	}
	return v
}
