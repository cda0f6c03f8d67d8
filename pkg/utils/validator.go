package utils

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps go-playground/validator so handlers can call a single
// Validate method on bound request structs.
type CustomValidator struct {
	validator *validator.Validate
}

var (
	validatorOnce     sync.Once
	validatorInstance *CustomValidator
)

// GetValidator returns the shared validator instance.
func GetValidator() *CustomValidator {
	validatorOnce.Do(func() {
		validatorInstance = &CustomValidator{validator: validator.New()}
	})
	return validatorInstance
}

// Validate runs struct tag validation and returns the first error encountered.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
